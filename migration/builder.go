package migration

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/docshift/docshift"
)

// Builder is the declarative DSL a unit's migrate function uses to
// describe intent without performing I/O. Each call appends a structured
// operation descriptor; Compile finalizes and freezes the list. The
// indirection is what makes operations simulatable before they are
// executed for real.
//
//	b.CreateCollection("users")
//	b.Collection("users").Transform(migration.Transform{Up: up, Down: down})
//	b.CreateSharedCollection("items").
//	    Type("user").Seed(docs...).
//	    Type("product").
//	    End()
//	b.CreateTemplateInstance("eu_catalog", "catalog")
type Builder struct {
	ops      OperationList
	compiled bool
	errs     *multierror.Error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) append(op Operation) {
	if b.compiled {
		panic("migration: builder used after Compile")
	}
	b.ops = append(b.ops, op)
}

func (b *Builder) errorf(format string, args ...interface{}) {
	b.errs = multierror.Append(b.errs, fmt.Errorf(format, args...))
}

// CreateCollection declares creation of a plain collection.
func (b *Builder) CreateCollection(name string) *Builder {
	if name == "" {
		b.errorf("createCollection: empty collection name")
		return b
	}
	b.append(Operation{Kind: OpCreateCollection, Collection: name})
	return b
}

// Collection opens a stage scoped to one collection.
func (b *Builder) Collection(name string) *CollectionStage {
	return &CollectionStage{b: b, name: name}
}

// CreateSharedCollection opens a stage declaring document types of a
// shared collection.
func (b *Builder) CreateSharedCollection(name string) *SharedStage {
	return &SharedStage{b: b, name: name}
}

// CreateTemplateInstance declares creation of a shared collection from a
// reusable template.
func (b *Builder) CreateTemplateInstance(instanceName, templateName string) *Builder {
	if instanceName == "" || templateName == "" {
		b.errorf("createTemplateInstance: empty instance or template name")
		return b
	}
	b.append(Operation{Kind: OpCreateTemplateInstance, Collection: instanceName, Template: templateName})
	return b
}

// Compile finalizes and freezes the operation list. Builder misuse
// (empty names, incomplete stages) surfaces here rather than at the
// individual call sites.
func (b *Builder) Compile() (OperationList, error) {
	if err := b.errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	b.compiled = true
	out := make(OperationList, len(b.ops))
	copy(out, b.ops)
	return out, nil
}

// CollectionStage scopes builder calls to one collection.
type CollectionStage struct {
	b    *Builder
	name string
}

// Transform declares a data transform over the collection's documents.
func (s *CollectionStage) Transform(t Transform) *Builder {
	if s.name == "" {
		s.b.errorf("transform: empty collection name")
		return s.b
	}
	if t.Up == nil {
		s.b.errorf("transform on %s: missing up function", s.name)
		return s.b
	}
	tt := t
	s.b.append(Operation{Kind: OpTransformCollection, Collection: s.name, Transform: &tt})
	return s.b
}

// SharedStage declares the document types of a shared collection.
type SharedStage struct {
	b    *Builder
	name string
}

// Type opens a declaration for one document type.
func (s *SharedStage) Type(tag string) *SharedTypeStage {
	return &SharedTypeStage{shared: s, tag: tag}
}

// End closes the shared-collection declaration without declaring types.
func (s *SharedStage) End() *Builder {
	if s.name == "" {
		s.b.errorf("createSharedCollection: empty collection name")
	}
	return s.b
}

// SharedTypeStage declares one document type, optionally with seed data.
type SharedTypeStage struct {
	shared *SharedStage
	tag    string
	seed   []docshift.Document
}

// Seed attaches seed documents inserted when the type is created.
func (ts *SharedTypeStage) Seed(docs ...docshift.Document) *SharedTypeStage {
	ts.seed = append(ts.seed, docs...)
	return ts
}

func (ts *SharedTypeStage) close() {
	s := ts.shared
	if s.name == "" || ts.tag == "" {
		s.b.errorf("createSharedType: empty collection name or type tag")
		return
	}
	s.b.append(Operation{
		Kind:       OpCreateSharedType,
		Collection: s.name,
		TypeTag:    ts.tag,
		Seed:       ts.seed,
	})
}

// Type closes the current type declaration and opens the next one.
func (ts *SharedTypeStage) Type(tag string) *SharedTypeStage {
	ts.close()
	return ts.shared.Type(tag)
}

// End closes the type declaration and the shared-collection stage.
func (ts *SharedTypeStage) End() *Builder {
	ts.close()
	return ts.shared.b
}
