package schema

import "sort"

// Snapshot is the full declared schema state a migration unit produces:
// plain collections, shared collections grouped by type tag, and reusable
// templates from which shared-collection instances are created.
type Snapshot struct {
	Collections map[string]*Node
	Shared      map[string]map[string]*Node
	Templates   map[string]map[string]*Node
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Collections: map[string]*Node{},
		Shared:      map[string]map[string]*Node{},
		Templates:   map[string]map[string]*Node{},
	}
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := NewSnapshot()
	for name, n := range s.Collections {
		out.Collections[name] = n.Clone()
	}
	for name, types := range s.Shared {
		out.Shared[name] = cloneTypes(types)
	}
	for name, types := range s.Templates {
		out.Templates[name] = cloneTypes(types)
	}
	return out
}

func cloneTypes(types map[string]*Node) map[string]*Node {
	out := make(map[string]*Node, len(types))
	for tag, n := range types {
		out[tag] = n.Clone()
	}
	return out
}

// Equal reports structural equality of two snapshots, including index
// metadata on every node.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	if !nodesEqual(s.Collections, other.Collections) {
		return false
	}
	if !typeMapsEqual(s.Shared, other.Shared) {
		return false
	}
	return typeMapsEqual(s.Templates, other.Templates)
}

func nodesEqual(a, b map[string]*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for name, n := range a {
		o, ok := b[name]
		if !ok || !n.Equal(o) {
			return false
		}
	}
	return true
}

func typeMapsEqual(a, b map[string]map[string]*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for name, types := range a {
		o, ok := b[name]
		if !ok || !nodesEqual(types, o) {
			return false
		}
	}
	return true
}

// CollectionNames returns the names of all plain collections, sorted.
func (s *Snapshot) CollectionNames() []string {
	return sortedKeys(s.Collections)
}

// SharedNames returns the names of all shared collections, sorted.
func (s *Snapshot) SharedNames() []string {
	return sortedKeys(s.Shared)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
