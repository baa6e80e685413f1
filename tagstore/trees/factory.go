package trees

// Factory is the single construction point for nodes.
// It performs no validation: higher-level rules belong to whoever consumes the node.
type Factory interface {
	Create(tags TagSet, payload string, members []*Node) *Node
}

// DefaultFactory builds plain nodes
type DefaultFactory struct{}

// NewFactory returns the factory that copies member slices on Create
func NewFactory() DefaultFactory {
	return DefaultFactory{}
}

// Create copies members so the new node owns its list exclusively.
// A nil members slice produces a leaf.
func (DefaultFactory) Create(tags TagSet, payload string, members []*Node) *Node {
	var owned []*Node
	if members != nil {
		owned = make([]*Node, len(members))
		copy(owned, members)
	}
	return &Node{
		tags:    tags,
		payload: payload,
		members: owned,
	}
}

// NewDirectoryNode describes a directory, e.g. the store's root folder
func NewDirectoryNode(f Factory, path string) *Node {
	return f.Create(NewTagSet(TagDirectoryPath), path, nil)
}

// NewFileReference describes a file previously written by the store
func NewFileReference(f Factory, path string) *Node {
	return f.Create(NewTagSet(TagPersistenceFile), path, nil)
}

// NewStringNode creates a STRING node holding text with the given members
func NewStringNode(f Factory, text string, members ...*Node) *Node {
	return f.Create(NewTagSet(TagString), text, members)
}
