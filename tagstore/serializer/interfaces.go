package serializer

import (
	"context"

	"github.com/ZanzyTHEbar/tagstore/tagstore/trees"
)

// Serializer encodes nodes to files and decodes them back.
// The store is agnostic to the wire format; it only needs a lossless round trip
// of tags, payload and members.
type Serializer interface {
	// Encode writes n to a new file at path. An existing file is never overwritten.
	Encode(ctx context.Context, path string, n *trees.Node) error
	// Decode reads the node stored at path. It returns (nil, nil) when the file holds no value.
	Decode(ctx context.Context, path string) (*trees.Node, error)
	// Extension is the file suffix, including the dot, used for new files.
	Extension() string
}
