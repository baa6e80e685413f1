package serializer

import (
	"fmt"

	"github.com/ZanzyTHEbar/tagstore/tagstore/trees"
)

// Document is the wire shape shared by every codec
type Document struct {
	Tags    []trees.Tag `json:"tags" yaml:"tags"`
	Payload string      `json:"payload,omitempty" yaml:"payload,omitempty"`
	Members []Document  `json:"members,omitempty" yaml:"members,omitempty"`
}

// ToDocument converts a node tree into its wire shape
func ToDocument(n *trees.Node) (Document, error) {
	return toDocument(n, 0)
}

func toDocument(n *trees.Node, depth int) (Document, error) {
	if n == nil {
		return Document{}, trees.ErrNilMember
	}
	if depth > trees.MaxDepth {
		return Document{}, trees.ErrTooDeep
	}

	doc := Document{
		Tags:    n.Tags().Tags(),
		Payload: n.Payload(),
	}
	members := n.Members()
	if len(members) > 0 {
		doc.Members = make([]Document, 0, len(members))
		for i, member := range members {
			child, err := toDocument(member, depth+1)
			if err != nil {
				return Document{}, fmt.Errorf("member %d: %w", i, err)
			}
			doc.Members = append(doc.Members, child)
		}
	}
	return doc, nil
}

// FromDocument rebuilds a node tree through f
func FromDocument(f trees.Factory, doc Document) *trees.Node {
	var members []*trees.Node
	if len(doc.Members) > 0 {
		members = make([]*trees.Node, 0, len(doc.Members))
		for _, child := range doc.Members {
			members = append(members, FromDocument(f, child))
		}
	}
	return f.Create(trees.NewTagSet(doc.Tags...), doc.Payload, members)
}
