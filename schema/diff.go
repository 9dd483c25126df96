package schema

import "fmt"

// DriftKind classifies a single difference between two snapshots.
type DriftKind int

const (
	// DriftAdditive covers differences which only add structure: new
	// collections, new fields, new union variants.
	DriftAdditive DriftKind = iota
	// DriftDestructive covers differences which remove or retype
	// structure and therefore require a data transform.
	DriftDestructive
	// DriftIndex covers index metadata changes, which converge through
	// reconciliation rather than through a data transform.
	DriftIndex
)

// String returns a string representation for a drift kind.
func (k DriftKind) String() string {
	switch k {
	case DriftDestructive:
		return "destructive"
	case DriftIndex:
		return "index"
	default:
		return "additive"
	}
}

// Drift is one difference found between a parent snapshot and the
// snapshot derived from it.
type Drift struct {
	Kind       DriftKind
	Collection string
	Path       string
	Msg        string
}

// Diff compares a parent snapshot against the child snapshot declared to
// be derived from it and returns every structural difference, classified
// as additive or destructive. A len=0 result means the snapshots are
// structurally identical.
func Diff(parent, child *Snapshot) []Drift {
	if parent == nil {
		parent = NewSnapshot()
	}
	if child == nil {
		child = NewSnapshot()
	}

	var drifts []Drift

	drifts = append(drifts, diffNodeMaps("collection", parent.Collections, child.Collections)...)

	drifts = append(drifts, diffGroupMaps("shared collection", parent.Shared, child.Shared)...)
	drifts = append(drifts, diffGroupMaps("template", parent.Templates, child.Templates)...)

	return drifts
}

func diffNodeMaps(label string, parent, child map[string]*Node) []Drift {
	var drifts []Drift

	for _, name := range sortedKeys(child) {
		pn, ok := parent[name]
		if !ok {
			drifts = append(drifts, Drift{
				Kind:       DriftAdditive,
				Collection: name,
				Msg:        fmt.Sprintf("%s %s added", label, name),
			})
			continue
		}
		nc := nodeComparison{collection: name}
		nc.diff(nil, pn, child[name])
		drifts = append(drifts, nc.drifts...)
	}

	for _, name := range sortedKeys(parent) {
		if _, ok := child[name]; !ok {
			drifts = append(drifts, Drift{
				Kind:       DriftDestructive,
				Collection: name,
				Msg:        fmt.Sprintf("%s %s removed", label, name),
			})
		}
	}

	return drifts
}

func diffGroupMaps(label string, parent, child map[string]map[string]*Node) []Drift {
	var drifts []Drift

	for _, name := range sortedKeys(child) {
		ptypes, ok := parent[name]
		if !ok {
			drifts = append(drifts, Drift{
				Kind:       DriftAdditive,
				Collection: name,
				Msg:        fmt.Sprintf("%s %s added", label, name),
			})
			continue
		}
		for _, tag := range sortedKeys(child[name]) {
			pn, ok := ptypes[tag]
			if !ok {
				drifts = append(drifts, Drift{
					Kind:       DriftAdditive,
					Collection: name,
					Msg:        fmt.Sprintf("%s %s: type %s added", label, name, tag),
				})
				continue
			}
			nc := nodeComparison{collection: name, typeTag: tag}
			nc.diff(nil, pn, child[name][tag])
			drifts = append(drifts, nc.drifts...)
		}
		for _, tag := range sortedKeys(ptypes) {
			if _, ok := child[name][tag]; !ok {
				drifts = append(drifts, Drift{
					Kind:       DriftDestructive,
					Collection: name,
					Msg:        fmt.Sprintf("%s %s: type %s removed", label, name, tag),
				})
			}
		}
	}

	for _, name := range sortedKeys(parent) {
		if _, ok := child[name]; !ok {
			drifts = append(drifts, Drift{
				Kind:       DriftDestructive,
				Collection: name,
				Msg:        fmt.Sprintf("%s %s removed", label, name),
			})
		}
	}

	return drifts
}

// nodeComparison accumulates drifts while descending a pair of node
// trees which are declared to describe the same collection.
type nodeComparison struct {
	collection string
	typeTag    string
	drifts     []Drift
}

func (nc *nodeComparison) add(kind DriftKind, path Path, format string, args ...interface{}) {
	target := nc.collection
	if nc.typeTag != "" {
		target = nc.collection + "/" + nc.typeTag
	}
	nc.drifts = append(nc.drifts, Drift{
		Kind:       kind,
		Collection: nc.collection,
		Path:       path.String(),
		Msg:        fmt.Sprintf("%s: %s", target, fmt.Sprintf(format, args...)),
	})
}

func (nc *nodeComparison) diff(path Path, parent, child *Node) {
	if parent == nil || child == nil {
		if parent != child {
			nc.add(DriftDestructive, path, "node presence changed")
		}
		return
	}

	if parent.Kind != child.Kind {
		nc.add(DriftDestructive, path, "kind changed from %s to %s", parent.Kind, child.Kind)
		return
	}

	if !parent.Index.Equal(child.Index) {
		nc.add(DriftIndex, path, "index metadata changed")
	}

	switch parent.Kind {
	case KindLeaf:
		if parent.Leaf != child.Leaf {
			nc.add(DriftDestructive, path, "type changed from %s to %s", parent.Leaf, child.Leaf)
		}
	case KindArray, KindOptional:
		nc.diff(path, parent.Elem, child.Elem)
	case KindUnion:
		if len(parent.Variants) != len(child.Variants) {
			if len(child.Variants) > len(parent.Variants) {
				nc.add(DriftAdditive, path, "union variant added")
			} else {
				nc.add(DriftDestructive, path, "union variant removed")
			}
			return
		}
		for i := range parent.Variants {
			nc.diff(path, parent.Variants[i], child.Variants[i])
		}
	case KindObject:
		for _, f := range child.Fields {
			pf, ok := parent.FieldNode(f.Name)
			childPath := append(append(Path{}, path...), f.Name)
			if !ok {
				nc.add(DriftAdditive, childPath, "field added")
				continue
			}
			nc.diff(childPath, pf, f.Node)
		}
		for _, f := range parent.Fields {
			if _, ok := child.FieldNode(f.Name); !ok {
				childPath := append(append(Path{}, path...), f.Name)
				nc.add(DriftDestructive, childPath, "field removed")
			}
		}
	}
}
