package trees

import (
	"errors"
	"fmt"
)

var ErrProvenanceForbidden = errors.New("PERSISTENCE_FILE tags are attached by the store, not by callers")

// NodeBuilder provides a fluent interface for building validated nodes
type NodeBuilder struct {
	factory         Factory
	tags            TagSet
	payload         string
	members         []*Node
	allowProvenance bool
	err             error
}

// NewNodeBuilder creates a builder that constructs through f
func NewNodeBuilder(f Factory) *NodeBuilder {
	return &NodeBuilder{factory: f}
}

// WithTags adds tags to the node
func (b *NodeBuilder) WithTags(tags ...Tag) *NodeBuilder {
	if b.err != nil {
		return b
	}
	for _, t := range tags {
		if !t.Valid() {
			b.err = fmt.Errorf("%w: %s", ErrUnknownTag, t)
			return b
		}
		b.tags = b.tags.With(t)
	}
	return b
}

// WithTagNames adds tags by name
func (b *NodeBuilder) WithTagNames(names ...string) *NodeBuilder {
	if b.err != nil {
		return b
	}
	set, err := ParseTagSet(names...)
	if err != nil {
		b.err = err
		return b
	}
	b.tags = b.tags.Union(set)
	return b
}

// WithPayload sets the payload text
func (b *NodeBuilder) WithPayload(payload string) *NodeBuilder {
	if b.err != nil {
		return b
	}
	b.payload = payload
	return b
}

// WithMembers appends children in order
func (b *NodeBuilder) WithMembers(members ...*Node) *NodeBuilder {
	if b.err != nil {
		return b
	}
	for i, m := range members {
		if m == nil {
			b.err = fmt.Errorf("member %d: %w", len(b.members)+i, ErrNilMember)
			return b
		}
	}
	if b.members == nil {
		b.members = make([]*Node, 0, len(members))
	}
	b.members = append(b.members, members...)
	return b
}

// AllowProvenance permits PERSISTENCE_FILE on the built node itself.
func (b *NodeBuilder) AllowProvenance() *NodeBuilder {
	b.allowProvenance = true
	return b
}

// Build creates the final node
func (b *NodeBuilder) Build() (*Node, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.factory == nil {
		return nil, errors.New("factory must be set before building the node")
	}
	if b.tags.Has(TagPersistenceFile) && !b.allowProvenance {
		return nil, ErrProvenanceForbidden
	}

	node := b.factory.Create(b.tags, b.payload, b.members)
	if err := node.Validate(); err != nil {
		return nil, fmt.Errorf("invalid node: %w", err)
	}
	return node, nil
}
