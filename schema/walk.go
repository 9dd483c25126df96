package schema

import "strings"

// Path is the dotted field path from the root of a schema tree to a node.
// Array, optional and union wrappers do not contribute path segments; only
// object field names do.
type Path []string

// String returns the dotted form of the path.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Visitor receives callbacks from Walk. Either callback may be nil.
// Enter is called before a node's children are visited, Leave after.
// Returning an error from either halts the walk and propagates the error.
type Visitor struct {
	Enter func(path Path, n *Node) error
	Leave func(path Path, n *Node) error
}

// Walk traverses the node tree depth-first, invoking the visitor's
// callbacks for every node. It is the single traversal core shared by
// path listing, index extraction and document validation.
func Walk(root *Node, v Visitor) error {
	return walk(root, nil, v)
}

func walk(n *Node, path Path, v Visitor) error {
	if n == nil {
		return nil
	}

	if v.Enter != nil {
		if err := v.Enter(path, n); err != nil {
			return err
		}
	}

	switch n.Kind {
	case KindObject:
		for _, f := range n.Fields {
			child := append(append(Path{}, path...), f.Name)
			if err := walk(f.Node, child, v); err != nil {
				return err
			}
		}
	case KindArray, KindOptional:
		if err := walk(n.Elem, path, v); err != nil {
			return err
		}
	case KindUnion:
		for _, variant := range n.Variants {
			if err := walk(variant, path, v); err != nil {
				return err
			}
		}
	}

	if v.Leave != nil {
		return v.Leave(path, n)
	}
	return nil
}

// Paths returns the dotted paths of all leaf nodes in the tree, in
// declaration order.
func Paths(root *Node) []string {
	var out []string
	_ = Walk(root, Visitor{
		Enter: func(path Path, n *Node) error {
			if n.Kind == KindLeaf {
				out = append(out, path.String())
			}
			return nil
		},
	})
	return out
}

// IndexedNode pairs a node carrying index metadata with its path.
type IndexedNode struct {
	Path Path
	Node *Node
}

// IndexedNodes returns every node in the tree which carries index
// metadata, in declaration order.
func IndexedNodes(root *Node) []IndexedNode {
	var out []IndexedNode
	_ = Walk(root, Visitor{
		Enter: func(path Path, n *Node) error {
			if n.Index != nil {
				out = append(out, IndexedNode{Path: append(Path{}, path...), Node: n})
			}
			return nil
		},
	})
	return out
}
