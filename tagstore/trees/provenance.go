package trees

// IsProvenance reports whether n is a file reference produced by the store
func IsProvenance(n *Node) bool {
	return n.HasTag(TagPersistenceFile)
}

// StripProvenance returns a shallow clone of n without immediate PERSISTENCE_FILE children.
// Deeper descendants are left untouched. A leaf stays a leaf.
func StripProvenance(f Factory, n *Node) *Node {
	if n == nil {
		return nil
	}

	var members []*Node
	if n.members != nil {
		members = make([]*Node, 0, len(n.members))
		for _, member := range n.members {
			if IsProvenance(member) {
				continue
			}
			members = append(members, member)
		}
	}

	return f.Create(n.tags, n.payload, members)
}

// AttachProvenance appends a PERSISTENCE_FILE child recording path. It mutates n in place,
// so it must only be applied to a node no one else holds, such as a freshly decoded one.
func AttachProvenance(f Factory, n *Node, path string) {
	n.members = append(n.members, NewFileReference(f, path))
}

// ProvenanceOf returns the path recorded by the last provenance child of n
func ProvenanceOf(n *Node) (string, bool) {
	if n == nil {
		return "", false
	}
	for i := len(n.members) - 1; i >= 0; i-- {
		if IsProvenance(n.members[i]) {
			return n.members[i].payload, true
		}
	}
	return "", false
}
