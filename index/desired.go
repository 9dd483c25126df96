package index

import (
	"sort"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/schema"
)

// Declaration is one index extracted from a schema tree: the field path
// carrying index metadata, the derived deterministic name, and for shared
// collections the type tag scoping it.
type Declaration struct {
	Name        string
	Path        string
	TypeTag     string
	Unique      bool
	Collation   *schema.Collation
	ScopeFilter map[string]string
}

// Descriptor returns the live-index form of the declaration.
func (d Declaration) Descriptor() docshift.IndexDescriptor {
	return docshift.IndexDescriptor{
		Name:        d.Name,
		Keys:        []docshift.IndexKey{{Path: d.Path, Direction: 1}},
		Unique:      d.Unique,
		Collation:   d.Collation,
		ScopeFilter: d.ScopeFilter,
	}
}

// Declarations walks a plain collection's schema tree and collects one
// declaration per node carrying index metadata.
func Declarations(root *schema.Node) []Declaration {
	var out []Declaration
	for _, in := range schema.IndexedNodes(root) {
		path := in.Path.String()
		out = append(out, Declaration{
			Name:      Name("", path),
			Path:      path,
			Unique:    in.Node.Index.Unique,
			Collation: in.Node.Index.Collation,
		})
	}
	return out
}

// SharedDeclarations collects declarations for every type of a shared
// collection. Each type tag produces its own independently named set,
// implicitly scoped by a filter on the type discriminator field.
func SharedDeclarations(types map[string]*schema.Node, typeField string) []Declaration {
	tags := make([]string, 0, len(types))
	for tag := range types {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	var out []Declaration
	for _, tag := range tags {
		for _, in := range schema.IndexedNodes(types[tag]) {
			path := in.Path.String()
			out = append(out, Declaration{
				Name:        Name(tag, path),
				Path:        path,
				TypeTag:     tag,
				Unique:      in.Node.Index.Unique,
				Collation:   in.Node.Index.Collation,
				ScopeFilter: map[string]string{typeField: tag},
			})
		}
	}
	return out
}
