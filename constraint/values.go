package constraint

import (
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/lzyq-hntvu/browsecomp-V3/graph"
)

// Unknown is the sentinel value meaning "no data available". A constraint
// carrying it must be dropped.
const Unknown = "unknown"

// maxAttributeSamples caps how many nodes feed one attribute cache entry.
const maxAttributeSamples = 500

// Domain vocabularies for categories that are rarely first-class node
// attributes. Graph values are preferred when the attribute exists.
var vocabularies = map[string][]any{
	"research_topic": {"machine learning", "deep learning", "computer vision", "natural language processing",
		"quantum computing", "materials science", "nanotechnology", "climate change"},
	"method_technique": {"neural networks", "reinforcement learning", "convolutional neural networks",
		"transformer", "BERT", "GPT", "molecular dynamics", "density functional theory"},
	"location": {"California", "New York", "Massachusetts", "Beijing", "Shanghai",
		"Tokyo", "London", "Paris", "Berlin", "Singapore"},
	"position_title": {"Professor", "Associate Professor", "Assistant Professor",
		"Postdoctoral Researcher", "PhD Student", "Research Scientist"},
	"award_honor": {"Nobel Prize", "Turing Award", "Fields Medal", "Best Paper Award",
		"NSF CAREER Award", "IEEE Fellow", "ACM Fellow"},
	"editorial_role":   {"Editor-in-Chief", "Associate Editor", "Editorial Board Member", "Reviewer", "Area Chair"},
	"conference_event": {"NeurIPS", "ICML", "ACL", "CVPR", "ICCV", "AAAI", "IJCAI", "ICLR"},
}

var fallbackVenues = []string{"Nature", "Science", "Cell", "PNAS", "Nature Communications"}

// Sampler draws concrete constraint values from the live graph. All
// randomness comes from the injected generator. Attribute samples are cached
// per node type and attribute for the sampler's lifetime; the graph is
// immutable after load so entries never go stale.
type Sampler struct {
	store graph.Store
	tr    *graph.Traverser
	rng   *rand.Rand

	mu    sync.Mutex
	cache map[string][]any
}

// NewSampler creates a sampler over s.
func NewSampler(s graph.Store, rng *rand.Rand) *Sampler {
	return &Sampler{
		store: s,
		tr:    graph.NewTraverser(s),
		rng:   rng,
		cache: make(map[string][]any),
	}
}

// Value returns a condition for rule. It returns the Unknown sentinel (as a
// bare-scalar condition) when no meaningful value exists.
func (s *Sampler) Value(rule *Rule, target graph.NodeType) graph.Condition {
	attr := rule.Operation.FilterAttribute
	switch rule.Type {
	case "temporal":
		return s.temporal()
	case "author_count":
		return s.authorCount()
	case "person_name", "coauthor", "cited_by_author":
		return graph.Eq(s.PersonName())
	case "author_order":
		return graph.Eq(s.AuthorOrder())
	case "institution_affiliation":
		return graph.Eq(s.InstitutionName())
	case "institution_founding":
		return graph.Between(1800, 2000)
	case "citation":
		return s.citation()
	case "title_format":
		return s.titleFormat()
	case "technical_entity":
		return graph.Eq(s.entityName())
	case "paper_structure":
		return s.paperStructure(attr)
	case "birth_info":
		if v := s.attributeSample(target, attr); v != nil {
			return graph.Eq(v)
		}
		return graph.Between(1950, 1995)
	case "publication_venue":
		return graph.Eq(s.VenueName())
	}

	if v := s.attributeSample(target, attr); v != nil {
		return graph.Eq(v)
	}
	if pool, ok := vocabularies[rule.Type]; ok {
		return graph.Eq(pool[s.rng.Intn(len(pool))])
	}
	return defaultValue(rule.Type)
}

// defaultValue covers constraint types the sampler has no strategy for.
func defaultValue(constraintType string) graph.Condition {
	switch {
	case strings.Contains(constraintType, "count"):
		return graph.Where(graph.OpGt, 1)
	case strings.Contains(constraintType, "year"), strings.Contains(constraintType, "temporal"):
		return graph.Between(2010, 2022)
	}
	return graph.Eq(Unknown)
}

// IsUnknown reports whether c carries the Unknown sentinel.
func IsUnknown(c graph.Condition) bool {
	if len(c.Clauses) == 0 {
		s, ok := c.Scalar.(string)
		return ok && s == Unknown
	}
	for _, cl := range c.Clauses {
		if s, ok := cl.Operand.(string); ok && s == Unknown {
			return true
		}
	}
	return false
}

func (s *Sampler) temporal() graph.Condition {
	var years []int
	for _, id := range s.store.NodesByType(graph.NodePaper) {
		n, _ := s.store.Node(id)
		if y, ok := graph.PublicationYear(n).(int); ok {
			years = append(years, y)
		}
	}
	if len(years) == 0 {
		return graph.Where(graph.OpEq, 2022)
	}
	lo, hi := years[0], years[0]
	for _, y := range years {
		lo = min(lo, y)
		hi = max(hi, y)
	}

	mode := s.rng.Intn(4)
	if lo == hi {
		mode = 0
	}
	switch mode {
	case 1:
		start := lo + s.rng.Intn(hi-lo)
		end := start + 1 + s.rng.Intn(hi-start)
		return graph.Between(start, end)
	case 2:
		return graph.Where(graph.OpLt, lo+1+s.rng.Intn(hi-lo))
	case 3:
		return graph.Where(graph.OpGt, lo+s.rng.Intn(hi-lo))
	}
	return graph.Where(graph.OpEq, years[s.rng.Intn(len(years))])
}

func (s *Sampler) authorCount() graph.Condition {
	var counts []int
	for _, id := range s.store.NodesByType(graph.NodePaper) {
		if c := s.tr.CountEdges(id, graph.EdgeHasAuthor); c > 0 {
			counts = append(counts, c)
		}
	}
	if len(counts) == 0 {
		return graph.Where(graph.OpEq, 1+s.rng.Intn(20))
	}
	return graph.Where(graph.OpEq, counts[s.rng.Intn(len(counts))])
}

func (s *Sampler) citation() graph.Condition {
	var counts []any
	for _, id := range s.store.NodesByType(graph.NodePaper) {
		n, _ := s.store.Node(id)
		if v := n.Attr("citation_count"); graph.Evaluate(v, graph.Where(graph.OpGt, 0)) {
			counts = append(counts, v)
		}
	}
	if len(counts) == 0 {
		return graph.Where(graph.OpGt, 10)
	}
	return graph.Where(graph.OpGt, counts[s.rng.Intn(len(counts))])
}

func (s *Sampler) titleFormat() graph.Condition {
	papers := s.store.NodesByType(graph.NodePaper)
	if len(papers) > 0 {
		n, _ := s.store.Node(papers[s.rng.Intn(len(papers))])
		title, _ := n.Attr("title").(string)
		if words := strings.Fields(title); len(words) > 0 {
			return graph.Where(graph.OpEndsWith, strings.TrimRight(words[len(words)-1], "."))
		}
	}
	return graph.Where(graph.OpEndsWith, "problems")
}

func (s *Sampler) paperStructure(attr string) graph.Condition {
	switch attr {
	case "reference_count":
		var counts []int
		for _, id := range s.store.NodesByType(graph.NodePaper) {
			if c, _ := s.tr.Attribute(id, "reference_count").(int); c > 0 {
				counts = append(counts, c)
			}
		}
		if len(counts) == 0 {
			return graph.Where(graph.OpGt, 10)
		}
		return graph.Where(graph.OpGt, counts[s.rng.Intn(len(counts))])
	case "title_word_count":
		var counts []int
		for _, id := range s.store.NodesByType(graph.NodePaper) {
			if c, _ := s.tr.Attribute(id, "title_word_count").(int); c > 0 {
				counts = append(counts, c)
			}
		}
		if len(counts) == 0 {
			return graph.Where(graph.OpEq, 5+s.rng.Intn(11))
		}
		return graph.Where(graph.OpEq, counts[s.rng.Intn(len(counts))])
	case "author_count":
		return s.authorCount()
	}
	return graph.Where(graph.OpExists, true)
}

// PersonName samples a real author name, "John Doe" when the graph has no
// authors.
func (s *Sampler) PersonName() string {
	return s.nodeName(graph.NodeAuthor, "John Doe")
}

// InstitutionName samples a real institution name.
func (s *Sampler) InstitutionName() string {
	return s.nodeName(graph.NodeInstitution, "Stanford University")
}

// VenueName samples a real venue name, falling back to well-known journals.
func (s *Sampler) VenueName() string {
	var names []string
	for _, id := range s.store.NodesByType(graph.NodeVenue) {
		n, _ := s.store.Node(id)
		if name := n.Name(); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fallbackVenues[s.rng.Intn(len(fallbackVenues))]
	}
	return names[s.rng.Intn(len(names))]
}

func (s *Sampler) entityName() string {
	entities := s.store.NodesByType(graph.NodeEntity)
	if len(entities) <= 10 {
		return "silicon"
	}
	if len(entities) > 100 {
		entities = entities[:100]
	}
	n, _ := s.store.Node(entities[s.rng.Intn(len(entities))])
	if name := n.Name(); name != "" {
		return name
	}
	return "silicon"
}

// nodeName picks a random node of type t and returns its name. A node
// without a name yields the Unknown sentinel so the attempt is dropped.
func (s *Sampler) nodeName(t graph.NodeType, fallback string) string {
	ids := s.store.NodesByType(t)
	if len(ids) == 0 {
		return fallback
	}
	n, _ := s.store.Node(ids[s.rng.Intn(len(ids))])
	if name := n.Name(); name != "" {
		return name
	}
	return Unknown
}

// AuthorOrder samples an author position: first author with weight 8,
// second and last with weight 1 each. Last is the largest author_order seen
// on any HAS_AUTHOR edge, or 3 when the graph records none above 2.
func (s *Sampler) AuthorOrder() int {
	x := s.rng.Intn(10)
	switch {
	case x < 8:
		return 1
	case x < 9:
		return 2
	}
	return s.lastAuthorOrder()
}

func (s *Sampler) lastAuthorOrder() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	const key = "HAS_AUTHOR/author_order/max"
	if v, ok := s.cache[key]; ok {
		return v[0].(int)
	}
	last := 0
	for _, id := range s.store.NodesByType(graph.NodePaper) {
		for _, dst := range s.store.Successors(id) {
			e, ok := s.store.EdgeFromTo(id, dst)
			if !ok || e.Type != graph.EdgeHasAuthor {
				continue
			}
			if c, ok := e.Attr("author_order").(float64); ok && int(c) > last {
				last = int(c)
			} else if c, ok := e.Attr("author_order").(int); ok && c > last {
				last = c
			}
		}
	}
	if last <= 2 {
		last = 3
	}
	s.cache[key] = []any{last}
	return last
}

// attributeSample returns a random observed value of attr on nodes of type
// t, or nil when no such node carries it.
func (s *Sampler) attributeSample(t graph.NodeType, attr string) any {
	if attr == "" {
		return nil
	}
	values := s.attributeValues(t, attr)
	if len(values) == 0 {
		return nil
	}
	return values[s.rng.Intn(len(values))]
}

func (s *Sampler) attributeValues(t graph.NodeType, attr string) []any {
	key := string(t) + "/" + attr
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache[key]; ok {
		return v
	}

	var ids []string
	if t != "" {
		ids = s.store.NodesByType(t)
	} else {
		for _, nt := range graph.NodeTypes {
			ids = append(ids, s.store.NodesByType(nt)...)
		}
		sort.Strings(ids)
	}
	if len(ids) > maxAttributeSamples {
		ids = ids[:maxAttributeSamples]
	}
	var values []any
	for _, id := range ids {
		n, _ := s.store.Node(id)
		switch v := n.Attr(attr).(type) {
		case nil:
		case string:
			if v != "" && v != Unknown {
				values = append(values, v)
			}
		default:
			values = append(values, v)
		}
	}
	s.cache[key] = values
	return values
}
