package trees

import (
	"errors"
	"fmt"
	"strings"
)

// MaxDepth bounds Validate, Walk and serialization: the root sits at depth 0
// and no member may sit deeper than MaxDepth.
const MaxDepth = 1024

var (
	ErrEmptyPayload  = errors.New("payload cannot be empty")
	ErrTooDeep       = errors.New("node tree exceeds maximum depth")
	ErrCycleDetected = errors.New("node tree contains a cycle")
	ErrNilMember     = errors.New("member cannot be nil")
)

// Node is the tagged-tree value. Its tag set selects how payload and members are read.
// Nodes are created through a Factory and are not modified afterwards, except by
// AttachProvenance.
type Node struct {
	tags    TagSet
	payload string
	members []*Node
}

func (n *Node) Tags() TagSet {
	return n.tags
}

func (n *Node) HasTag(t Tag) bool {
	return n != nil && n.tags.Has(t)
}

// Payload returns the payload text; empty means absent
func (n *Node) Payload() string {
	return n.payload
}

// Members returns a copy of the ordered child list, or nil for a leaf
func (n *Node) Members() []*Node {
	if n.members == nil {
		return nil
	}
	out := make([]*Node, len(n.members))
	copy(out, n.members)
	return out
}

func (n *Node) Len() int {
	return len(n.members)
}

func (n *Node) IsLeaf() bool {
	return len(n.members) == 0
}

// Equal compares two trees structurally. Nil and empty member lists are equal.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.tags != other.tags || n.payload != other.payload || len(n.members) != len(other.members) {
		return false
	}
	for i := range n.members {
		if !n.members[i].Equal(other.members[i]) {
			return false
		}
	}
	return true
}

// Walk visits n and its descendants depth-first, pre-order. Returning an error stops the walk.
func (n *Node) Walk(fn func(node *Node, depth int) error) error {
	return n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int) error, depth int) error {
	if depth > MaxDepth {
		return ErrTooDeep
	}
	if err := fn(n, depth); err != nil {
		return err
	}
	for _, member := range n.members {
		if member == nil {
			continue
		}
		if err := member.walk(fn, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the tag-driven payload rules on n and every descendant.
func (n *Node) Validate() error {
	return n.validate(make(map[*Node]bool), 0)
}

func (n *Node) validate(onPath map[*Node]bool, depth int) error {
	if depth > MaxDepth {
		return ErrTooDeep
	}
	if onPath[n] {
		return ErrCycleDetected
	}

	for _, t := range n.tags.Tags() {
		switch t {
		case TagDirectoryPath, TagPersistenceFile:
			if strings.TrimSpace(n.payload) == "" {
				return fmt.Errorf("%s node: %w", t, ErrEmptyPayload)
			}
		case TagString:
		default:
			return fmt.Errorf("%w: %s", ErrUnknownTag, t)
		}
	}

	onPath[n] = true
	defer delete(onPath, n)

	for i, member := range n.members {
		if member == nil {
			return fmt.Errorf("member %d: %w", i, ErrNilMember)
		}
		if err := member.validate(onPath, depth+1); err != nil {
			return fmt.Errorf("member %d: %w", i, err)
		}
	}
	return nil
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	var sb strings.Builder
	n.writeTo(&sb, 0)
	return sb.String()
}

func (n *Node) writeTo(sb *strings.Builder, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(n.tags.String())
	if n.payload != "" {
		fmt.Fprintf(sb, " %q", n.payload)
	}
	if depth >= MaxDepth {
		return
	}
	for _, member := range n.members {
		sb.WriteByte('\n')
		if member == nil {
			sb.WriteString(strings.Repeat("  ", depth+1) + "<nil>")
			continue
		}
		member.writeTo(sb, depth+1)
	}
}
