// Package constraint turns abstract constraint rules into executable graph
// constraints. It owns the template catalog, the value sampler that draws
// concrete values from the live graph, the instantiator and the
// constraint-set generator.
package constraint

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lzyq-hntvu/browsecomp-V3/graph"
)

var (
	ErrTemplateNotFound = errors.New("constraint: template not found")
	ErrRuleNotFound     = errors.New("constraint: rule not found")
	ErrNoConstraints    = errors.New("constraint: no constraints survived generation")
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Template is a reasoning-chain template: a start node type plus the rule ids
// that may constrain it.
type Template struct {
	ID                    string         `yaml:"id" json:"id"`
	Name                  string         `yaml:"name" json:"name"`
	Description           string         `yaml:"description" json:"description"`
	StartNode             graph.NodeType `yaml:"start_node" json:"start_node"`
	Frequency             float64        `yaml:"frequency" json:"frequency"`
	ApplicableConstraints []string       `yaml:"applicable_constraints" json:"applicable_constraints"`
	BaseReasoningPath     []string       `yaml:"base_reasoning_path" json:"base_reasoning_path,omitempty"`
	QuestionPatterns      []string       `yaml:"question_patterns" json:"question_patterns,omitempty"`
}

// Operation is a rule's graph-operation descriptor. Fields stay raw strings
// and are parsed when the rule is instantiated.
type Operation struct {
	Action          string `yaml:"action" json:"action"`
	TargetNode      string `yaml:"target_node" json:"target_node,omitempty"`
	EdgeType        string `yaml:"edge_type" json:"edge_type,omitempty"`
	FilterAttribute string `yaml:"filter_attribute" json:"filter_attribute,omitempty"`
}

// Rule maps a constraint id to its semantic type and graph operation.
type Rule struct {
	ID              string    `yaml:"id" json:"constraint_id"`
	Type            string    `yaml:"type" json:"constraint_type"`
	Name            string    `yaml:"name" json:"constraint_name"`
	TriggerKeywords []string  `yaml:"trigger_keywords" json:"trigger_keywords,omitempty"`
	Operation       Operation `yaml:"graph_operation" json:"graph_operation"`
}

// Catalog is the read-only template and rule lookup.
type Catalog struct {
	SchemaVersion string      `yaml:"schema_version"`
	TemplateList  []*Template `yaml:"templates"`
	RuleList      []*Rule     `yaml:"rules"`

	templates map[string]*Template
	rules     map[string]*Rule
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalogFile reads a catalog from a YAML file.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("constraint.LoadCatalogFile: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// LoadCatalog reads a catalog from r.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and indexes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	c.templates = make(map[string]*Template, len(c.TemplateList))
	for _, t := range c.TemplateList {
		if t.ID == "" {
			return nil, fmt.Errorf("parsing catalog: template without id")
		}
		if _, ok := graph.ParseNodeType(string(t.StartNode)); !ok {
			return nil, fmt.Errorf("parsing catalog: template %s: unknown start node %q", t.ID, t.StartNode)
		}
		c.templates[t.ID] = t
	}
	c.rules = make(map[string]*Rule, len(c.RuleList))
	for _, r := range c.RuleList {
		if r.ID == "" || r.Type == "" {
			return nil, fmt.Errorf("parsing catalog: rule %q without id or type", r.ID)
		}
		c.rules[r.ID] = r
	}
	return &c, nil
}

// Template returns the template with the given id.
func (c *Catalog) Template(id string) (*Template, error) {
	t, ok := c.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
	}
	return t, nil
}

// Templates returns all templates in catalog order.
func (c *Catalog) Templates() []*Template { return c.TemplateList }

// TemplateIDs returns the sorted template ids.
func (c *Catalog) TemplateIDs() []string {
	ids := make([]string, 0, len(c.templates))
	for id := range c.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ApplicableConstraints returns the rule ids a template may use.
func (c *Catalog) ApplicableConstraints(templateID string) ([]string, error) {
	t, err := c.Template(templateID)
	if err != nil {
		return nil, err
	}
	return t.ApplicableConstraints, nil
}

// StartNodeType returns the node type a template starts from.
func (c *Catalog) StartNodeType(templateID string) (graph.NodeType, error) {
	t, err := c.Template(templateID)
	if err != nil {
		return "", err
	}
	nt, _ := graph.ParseNodeType(string(t.StartNode))
	return nt, nil
}

// Rule returns the mapping rule for a constraint id.
func (c *Catalog) Rule(id string) (*Rule, error) {
	r, ok := c.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRuleNotFound, id)
	}
	return r, nil
}

// Rules returns all rules in catalog order.
func (c *Catalog) Rules() []*Rule { return c.RuleList }

// RulesByType returns the rules of one constraint type.
func (c *Catalog) RulesByType(constraintType string) []*Rule {
	var out []*Rule
	for _, r := range c.RuleList {
		if r.Type == constraintType {
			out = append(out, r)
		}
	}
	return out
}

// LookupByKeywords returns the rules with a trigger keyword contained in
// text, compared case-insensitively.
func (c *Catalog) LookupByKeywords(text string) []*Rule {
	text = strings.ToLower(text)
	var out []*Rule
	for _, r := range c.RuleList {
		for _, kw := range r.TriggerKeywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Selection modes for SelectTemplate.
const (
	SelectWeighted = "random"
	SelectUniform  = "uniform"
	SelectSpecific = "specific"
)

// SelectTemplate picks a template id. Weighted mode draws by template
// frequency, uniform mode draws evenly, specific mode returns templateID if it
// exists and is not excluded.
func (c *Catalog) SelectTemplate(rng *rand.Rand, mode, templateID string, exclude []string) (string, error) {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	var available []*Template
	for _, t := range c.TemplateList {
		if !excluded[t.ID] {
			available = append(available, t)
		}
	}
	if len(available) == 0 {
		return "", fmt.Errorf("%w: no templates left after exclusion", ErrTemplateNotFound)
	}

	switch mode {
	case SelectSpecific:
		if templateID == "" {
			return "", fmt.Errorf("constraint.SelectTemplate: specific mode needs a template id")
		}
		for _, t := range available {
			if t.ID == templateID {
				return t.ID, nil
			}
		}
		return "", fmt.Errorf("%w: %q (missing or excluded)", ErrTemplateNotFound, templateID)
	case SelectUniform:
		return available[rng.Intn(len(available))].ID, nil
	case SelectWeighted, "":
		var total float64
		for _, t := range available {
			total += weight(t)
		}
		x := rng.Float64() * total
		for _, t := range available {
			x -= weight(t)
			if x < 0 {
				return t.ID, nil
			}
		}
		return available[len(available)-1].ID, nil
	}
	return "", fmt.Errorf("constraint.SelectTemplate: unknown mode %q", mode)
}

// weight defaults a missing frequency to 0.1.
func weight(t *Template) float64 {
	if t.Frequency <= 0 {
		return 0.1
	}
	return t.Frequency
}
