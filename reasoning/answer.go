package reasoning

import (
	"errors"
	"fmt"

	"github.com/lzyq-hntvu/browsecomp-V3/graph"
)

// ErrAnswerNotFound is returned when the answer node is not in the graph.
var ErrAnswerNotFound = errors.New("reasoning: answer node not found")

// Answer is the entity a question resolves to.
type Answer struct {
	Text       string         `json:"text"`
	EntityID   string         `json:"entity_id,omitempty"`
	EntityType graph.NodeType `json:"entity_type,omitempty"`
}

// ExtractAnswer reads the answer text for node id: the title of a paper, the
// name of anything else, falling back to the id.
func ExtractAnswer(s graph.Store, id string) (Answer, error) {
	n, ok := s.Node(id)
	if !ok {
		return Answer{}, fmt.Errorf("%w: %q", ErrAnswerNotFound, id)
	}
	return Answer{Text: answerText(n), EntityID: id, EntityType: n.Type}, nil
}

func answerText(n *graph.Node) string {
	str := func(attr, fallback string) string {
		if v, ok := n.Attr(attr).(string); ok && v != "" {
			return v
		}
		return fallback
	}
	switch n.Type {
	case graph.NodePaper:
		return str("title", "Unknown Title")
	case graph.NodeAuthor:
		return str("name", "Unknown Name")
	case graph.NodeInstitution:
		return str("name", "Unknown Institution")
	}
	return str("name", n.ID)
}
