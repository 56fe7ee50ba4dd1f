// Package export writes generated questions as JSON, Markdown or XLSX files.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lzyq-hntvu/browsecomp-V3/question"
	"github.com/lzyq-hntvu/browsecomp-V3/reasoning"
)

// Output formats accepted by Save.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatXLSX     = "xlsx"
	FormatBoth     = "both" // json and markdown
	FormatAll      = "all"
)

var ErrUnknownFormat = errors.New("export: unknown output format")

// Options controls the written content.
type Options struct {
	IncludeChain bool `json:"include_reasoning_chain" yaml:"include_reasoning_chain"`
	Pretty       bool `json:"pretty_print" yaml:"pretty_print"`
}

// ConstraintRecord is the export form of one constraint.
type ConstraintRecord struct {
	ID          string `json:"constraint_id"`
	Type        string `json:"constraint_type"`
	Description string `json:"description"`
	Condition   string `json:"filter_condition,omitempty"`
}

// Record is the flat export form of a question.
type Record struct {
	ID             string               `json:"question_id"`
	Text           string               `json:"question_text"`
	Answer         string               `json:"answer"`
	AnswerEntityID string               `json:"answer_entity_id,omitempty"`
	TemplateID     string               `json:"template_id"`
	Difficulty     string               `json:"difficulty"`
	Confidence     float64              `json:"confidence"`
	Valid          bool                 `json:"validity"`
	Constraints    []ConstraintRecord   `json:"constraints"`
	Chain          *reasoning.ChainJSON `json:"reasoning_chain,omitempty"`
	GeneratedAt    time.Time            `json:"generated_at"`
}

// document is the top-level JSON file shape.
type document struct {
	GeneratedAt time.Time `json:"generated_at"`
	Count       int       `json:"count"`
	Questions   []Record  `json:"questions"`
}

// NewRecord flattens q.
func NewRecord(q *question.Question, includeChain bool) Record {
	r := Record{
		ID:             q.ID,
		Text:           q.Text,
		Answer:         q.Answer.Text,
		AnswerEntityID: q.Answer.EntityID,
		TemplateID:     q.TemplateID,
		Difficulty:     string(q.Difficulty),
		Confidence:     q.Confidence,
		Valid:          q.Valid,
		Constraints:    []ConstraintRecord{},
		GeneratedAt:    q.GeneratedAt,
	}
	if q.Constraints != nil {
		for _, c := range q.Constraints.Constraints {
			r.Constraints = append(r.Constraints, ConstraintRecord{
				ID:          c.ID,
				Type:        c.Type,
				Description: c.Description,
				Condition:   c.Condition.String(),
			})
		}
	}
	if includeChain && q.Chain != nil {
		chain := reasoning.FormatJSON(q.Chain)
		r.Chain = &chain
	}
	return r
}

// WriteJSON writes qs as one JSON document.
func WriteJSON(w io.Writer, qs []*question.Question, opts Options) error {
	doc := document{
		GeneratedAt: time.Now().UTC(),
		Count:       len(qs),
		Questions:   make([]Record, 0, len(qs)),
	}
	for _, q := range qs {
		doc.Questions = append(doc.Questions, NewRecord(q, opts.IncludeChain))
	}
	enc := json.NewEncoder(w)
	if opts.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("export.WriteJSON: %w", err)
	}
	return nil
}

// WriteMarkdown writes qs as a Markdown document.
func WriteMarkdown(w io.Writer, qs []*question.Question, opts Options) error {
	var b strings.Builder
	b.WriteString("# Generated questions\n\n")
	fmt.Fprintf(&b, "Total: %d\n\n", len(qs))

	for i, q := range qs {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, q.Text)
		fmt.Fprintf(&b, "- **ID**: %s\n", q.ID)
		fmt.Fprintf(&b, "- **Answer**: %s\n", q.Answer.Text)
		fmt.Fprintf(&b, "- **Template**: %s\n", q.TemplateID)
		fmt.Fprintf(&b, "- **Difficulty**: %s\n", q.Difficulty)
		fmt.Fprintf(&b, "- **Confidence**: %.2f\n", q.Confidence)
		if q.Constraints != nil && len(q.Constraints.Constraints) > 0 {
			b.WriteString("- **Constraints**:\n")
			for _, c := range q.Constraints.Constraints {
				fmt.Fprintf(&b, "  - `%s` (%s): %s\n", c.ID, c.Type, c.Description)
			}
		}
		b.WriteString("\n")
		if opts.IncludeChain && q.Chain != nil {
			b.WriteString(reasoning.FormatMarkdown(q.Chain))
			b.WriteString("\n")
		}
		b.WriteString("---\n\n")
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("export.WriteMarkdown: %w", err)
	}
	return nil
}

// Filename returns dir/prefix_YYYYMMDD_HHMMSS.ext.
func Filename(dir, prefix, ext string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", prefix, now.Format("20060102_150405"), ext))
}

// Save writes qs to timestamped files in dir and returns their paths.
func Save(dir, format string, qs []*question.Question, opts Options) ([]string, error) {
	var formats []string
	switch format {
	case FormatJSON, FormatMarkdown, FormatXLSX:
		formats = []string{format}
	case FormatBoth:
		formats = []string{FormatJSON, FormatMarkdown}
	case FormatAll:
		formats = []string{FormatJSON, FormatMarkdown, FormatXLSX}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export.Save: creating %s: %w", dir, err)
	}

	now := time.Now()
	var paths []string
	for _, f := range formats {
		var path string
		var err error
		switch f {
		case FormatJSON:
			path = Filename(dir, "questions", "json", now)
			err = writeFile(path, func(w io.Writer) error { return WriteJSON(w, qs, opts) })
		case FormatMarkdown:
			path = Filename(dir, "questions", "md", now)
			err = writeFile(path, func(w io.Writer) error { return WriteMarkdown(w, qs, opts) })
		case FormatXLSX:
			path = Filename(dir, "questions", "xlsx", now)
			err = WriteXLSX(path, qs)
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
