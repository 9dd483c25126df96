// Package schema models the declared structural contract of a document
// database: field trees for plain collections, per-type trees for shared
// collections, and the index metadata attached to individual nodes.
//
// Nodes form a small closed set of kinds (object, array, union, optional,
// leaf) discovered by a generic visitor (see Walk). Index metadata is an
// explicit optional field on the node rather than ambient runtime markers,
// so extraction is a plain tree walk.
package schema

// Kind enumerates the closed set of node kinds.
type Kind int

const (
	KindLeaf Kind = iota
	KindObject
	KindArray
	KindUnion
	KindOptional
)

// String returns a string representation for a node kind.
func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindUnion:
		return "union"
	case KindOptional:
		return "optional"
	default:
		return "unknown"
	}
}

// LeafType enumerates the primitive types a leaf node can declare.
type LeafType int

const (
	LeafAny LeafType = iota
	LeafString
	LeafInt
	LeafDouble
	LeafBool
	LeafTime
	LeafObjectID
)

// String returns a string representation for a leaf type.
func (t LeafType) String() string {
	switch t {
	case LeafString:
		return "string"
	case LeafInt:
		return "int"
	case LeafDouble:
		return "double"
	case LeafBool:
		return "bool"
	case LeafTime:
		return "time"
	case LeafObjectID:
		return "objectid"
	default:
		return "any"
	}
}

// Collation describes index collation options. The zero value means
// "no collation declared".
type Collation struct {
	Locale   string
	Strength int
}

// DefaultStrength is the server-side default collation strength, used to
// canonicalize unset strength values before comparison.
const DefaultStrength = 3

// Canonical returns the collation in canonical form: a nil or empty-locale
// collation canonicalizes to nil, and an unset strength canonicalizes to
// DefaultStrength. All comparisons of collations must go through this form
// to avoid spurious index recreation.
func (c *Collation) Canonical() *Collation {
	if c == nil || c.Locale == "" {
		return nil
	}
	out := &Collation{Locale: c.Locale, Strength: c.Strength}
	if out.Strength == 0 {
		out.Strength = DefaultStrength
	}
	return out
}

// Equal reports whether two collations are equal in canonical form.
func (c *Collation) Equal(other *Collation) bool {
	a, b := c.Canonical(), other.Canonical()
	if a == nil || b == nil {
		return a == b
	}
	return a.Locale == b.Locale && a.Strength == b.Strength
}

// IndexMetadata declares a secondary index on the node carrying it.
// Absence of metadata means "no index".
type IndexMetadata struct {
	Unique    bool
	Collation *Collation
}

// Equal reports whether two metadata declarations are equal, treating
// "option present and false/empty" as equal to "option absent".
func (m *IndexMetadata) Equal(other *IndexMetadata) bool {
	if m == nil && other == nil {
		return true
	}
	var a, b IndexMetadata
	if m != nil {
		a = *m
	}
	if other != nil {
		b = *other
	}
	return a.Unique == b.Unique && a.Collation.Equal(b.Collation)
}

// Field is a named child of an object node. Field order is declaration
// order and is not significant for equality.
type Field struct {
	Name string
	Node *Node
}

// Node is one node of a field schema tree.
type Node struct {
	Kind     Kind
	Leaf     LeafType // meaningful for KindLeaf
	Fields   []Field  // meaningful for KindObject
	Elem     *Node    // meaningful for KindArray and KindOptional
	Variants []*Node  // meaningful for KindUnion
	Index    *IndexMetadata
}

// Object constructs an object node from the provided fields.
func Object(fields ...Field) *Node {
	return &Node{Kind: KindObject, Fields: fields}
}

// F constructs a named field for use with Object.
func F(name string, n *Node) Field {
	return Field{Name: name, Node: n}
}

// Array constructs an array node over the provided element schema.
func Array(elem *Node) *Node {
	return &Node{Kind: KindArray, Elem: elem}
}

// Union constructs a union node over the provided variants.
func Union(variants ...*Node) *Node {
	return &Node{Kind: KindUnion, Variants: variants}
}

// Optional marks the provided schema as optional.
func Optional(elem *Node) *Node {
	return &Node{Kind: KindOptional, Elem: elem}
}

// String constructs a string leaf.
func String() *Node { return &Node{Kind: KindLeaf, Leaf: LeafString} }

// Int constructs an integer leaf.
func Int() *Node { return &Node{Kind: KindLeaf, Leaf: LeafInt} }

// Double constructs a double leaf.
func Double() *Node { return &Node{Kind: KindLeaf, Leaf: LeafDouble} }

// Bool constructs a boolean leaf.
func Bool() *Node { return &Node{Kind: KindLeaf, Leaf: LeafBool} }

// Time constructs a timestamp leaf.
func Time() *Node { return &Node{Kind: KindLeaf, Leaf: LeafTime} }

// ObjectID constructs an object-id leaf.
func ObjectID() *Node { return &Node{Kind: KindLeaf, Leaf: LeafObjectID} }

// Any constructs a leaf which accepts any value.
func Any() *Node { return &Node{Kind: KindLeaf, Leaf: LeafAny} }

// Indexed attaches plain index metadata to the node and returns it.
func (n *Node) Indexed() *Node {
	if n.Index == nil {
		n.Index = &IndexMetadata{}
	}
	return n
}

// Unique attaches unique index metadata to the node and returns it.
func (n *Node) Unique() *Node {
	n.Indexed().Index.Unique = true
	return n
}

// WithCollation attaches a collation to the node's index metadata and
// returns the node.
func (n *Node) WithCollation(locale string, strength int) *Node {
	n.Indexed().Index.Collation = &Collation{Locale: locale, Strength: strength}
	return n
}

// FieldNode returns the child node for the named field of an object node.
func (n *Node) FieldNode(name string) (*Node, bool) {
	if n == nil || n.Kind != KindObject {
		return nil, false
	}
	for _, f := range n.Fields {
		if f.Name == name {
			return f.Node, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the node tree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Kind: n.Kind, Leaf: n.Leaf}
	if n.Index != nil {
		md := *n.Index
		if md.Collation != nil {
			c := *md.Collation
			md.Collation = &c
		}
		out.Index = &md
	}
	if n.Elem != nil {
		out.Elem = n.Elem.Clone()
	}
	for _, f := range n.Fields {
		out.Fields = append(out.Fields, Field{Name: f.Name, Node: f.Node.Clone()})
	}
	for _, v := range n.Variants {
		out.Variants = append(out.Variants, v.Clone())
	}
	return out
}

// Equal reports field-by-field structural equality of two node trees,
// including index metadata. Field order within objects is not significant.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.Kind != other.Kind || !n.Index.Equal(other.Index) {
		return false
	}
	switch n.Kind {
	case KindLeaf:
		return n.Leaf == other.Leaf
	case KindArray, KindOptional:
		return n.Elem.Equal(other.Elem)
	case KindUnion:
		if len(n.Variants) != len(other.Variants) {
			return false
		}
		for i := range n.Variants {
			if !n.Variants[i].Equal(other.Variants[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(n.Fields) != len(other.Fields) {
			return false
		}
		for _, f := range n.Fields {
			fn, ok := other.FieldNode(f.Name)
			if !ok || !f.Node.Equal(fn) {
				return false
			}
		}
		return true
	}
	return false
}
