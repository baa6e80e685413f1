package store

import (
	"context"

	"github.com/ZanzyTHEbar/tagstore/tagstore/trees"
)

// DAO is the persistence contract for nodes.
// References are nodes tagged PERSISTENCE_FILE whose payload is a file path.
type DAO interface {
	Save(ctx context.Context, n *trees.Node) (*trees.Node, error)
	Get(ctx context.Context, ref *trees.Node) (*trees.Node, error)
	GetAll(ctx context.Context) ([]*trees.Node, error)
	Delete(ctx context.Context, ref *trees.Node) error
	Update(ctx context.Context, ref *trees.Node, n *trees.Node) error
}

var _ DAO = (*FileStore)(nil)
