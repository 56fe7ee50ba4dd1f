package question

import (
	"fmt"

	"github.com/lzyq-hntvu/browsecomp-V3/graph"
)

// Phrase renders one constraint as an English verb phrase that completes
// "Which paper ...". Types without a dedicated rendering use the
// constraint's description.
func Phrase(c *graph.Constraint) string {
	op, v := c.Condition.First()

	switch c.Type {
	case "temporal":
		return temporalPhrase(op, v)
	case "author_count":
		return countPhrase(op, v)
	case "citation":
		return citationPhrase(op, v)
	case "title_format":
		return titlePhrase(op, v)
	case "paper_structure":
		return structurePhrase(c.FilterAttribute, op, v)

	case "person_name":
		if s, ok := v.(string); ok && op == graph.OpEq {
			return "was written by " + s
		}
		if op == graph.OpContains {
			return fmt.Sprintf("has an author whose name contains '%v'", v)
		}
		return "has a specific author"
	case "author_order":
		if n, ok := toInt(v); ok {
			return fmt.Sprintf("has a known %s author", ordinal(n))
		}
		return "has an author at a specific position"
	case "institution_affiliation":
		if s, ok := v.(string); ok {
			return "has an author affiliated with " + s
		}
		return "has an author from a specific institution"
	case "coauthor":
		if s, ok := v.(string); ok {
			return "was written by a co-author of " + s
		}
	case "cited_by_author":
		if s, ok := v.(string); ok {
			return "is cited by a paper of " + s
		}
	case "publication_venue":
		if s, ok := v.(string); ok {
			return "appeared in " + s
		}
	case "research_topic":
		if s, ok := v.(string); ok {
			return "studies " + s
		}
		return "covers a specific topic"
	case "technical_entity":
		if s, ok := v.(string); ok {
			return "mentions " + s
		}
		return "mentions a specific technology"
	}
	return c.Description
}

func temporalPhrase(op graph.Op, v any) string {
	switch op {
	case graph.OpEq:
		return fmt.Sprintf("was published in %v", v)
	case graph.OpGt:
		return fmt.Sprintf("was published after %v", v)
	case graph.OpLt:
		return fmt.Sprintf("was published before %v", v)
	case graph.OpGe:
		return fmt.Sprintf("was published in or after %v", v)
	case graph.OpLe:
		return fmt.Sprintf("was published in or before %v", v)
	case graph.OpBetween:
		if lo, hi, ok := bounds(v); ok {
			return fmt.Sprintf("was published between %v and %v", lo, hi)
		}
	}
	return "was published at a specific time"
}

func countPhrase(op graph.Op, v any) string {
	switch op {
	case graph.OpEq:
		return fmt.Sprintf("was co-authored by %v authors", v)
	case graph.OpGt:
		return fmt.Sprintf("has more than %v authors", v)
	case graph.OpLt:
		return fmt.Sprintf("has fewer than %v authors", v)
	case graph.OpGe:
		return fmt.Sprintf("has at least %v authors", v)
	}
	return "has multiple authors"
}

func citationPhrase(op graph.Op, v any) string {
	switch op {
	case graph.OpGt:
		return fmt.Sprintf("has been cited more than %v times", v)
	case graph.OpLt:
		return fmt.Sprintf("has been cited fewer than %v times", v)
	case graph.OpEq:
		return fmt.Sprintf("has been cited exactly %v times", v)
	}
	return "has a specific citation count"
}

func titlePhrase(op graph.Op, v any) string {
	switch op {
	case graph.OpEndsWith:
		return fmt.Sprintf("has a title ending with '%v'", v)
	case graph.OpStartsWith:
		return fmt.Sprintf("has a title starting with '%v'", v)
	case graph.OpContains:
		return fmt.Sprintf("has a title containing '%v'", v)
	}
	return "has a distinctive title"
}

func structurePhrase(attr string, op graph.Op, v any) string {
	if op == graph.OpExists {
		return "has a specific structure"
	}
	switch attr {
	case "reference_count":
		if op == graph.OpGt {
			return fmt.Sprintf("cites more than %v references", v)
		}
		return fmt.Sprintf("cites %v references", v)
	case "title_word_count":
		return fmt.Sprintf("has a title of %v words", v)
	case "author_count":
		return countPhrase(op, v)
	}
	return "has a specific structure"
}

func bounds(v any) (any, any, bool) {
	b, ok := v.([]any)
	if !ok || len(b) != 2 {
		return nil, nil, false
	}
	return b[0], b[1], true
}

var ordinals = []string{"", "first", "second", "third", "fourth", "fifth", "sixth", "seventh", "eighth", "ninth", "tenth"}

func ordinal(n int) string {
	if n > 0 && n < len(ordinals) {
		return ordinals[n]
	}
	if n < 0 {
		return "last"
	}
	return fmt.Sprintf("%dth", n)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
