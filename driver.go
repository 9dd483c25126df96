package docshift

import (
	"context"

	"github.com/docshift/docshift/schema"
)

// Document is a single database document.
type Document map[string]interface{}

// Clone returns a deep copy of the document. Nested documents and arrays
// are copied; leaf values are shared.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(Document(t).Clone())
	case Document:
		return t.Clone()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// TransformFunc rewrites a single document. Returning a nil document
// deletes it.
type TransformFunc func(Document) (Document, error)

// IndexKey is one component of an index key specification.
type IndexKey struct {
	Path      string
	Direction int32 // 1 ascending, -1 descending
}

// IndexDescriptor describes a secondary index, either as declared from a
// schema or as read live from the database.
type IndexDescriptor struct {
	Name      string
	Keys      []IndexKey
	Unique    bool
	Collation *schema.Collation

	// ScopeFilter restricts the index to documents matching the given
	// field values. Shared-collection indexes are scoped by a filter on
	// the type discriminator field.
	ScopeFilter map[string]string
}

// KeysEqual reports whether two descriptors cover the same key
// specification, in order.
func (d IndexDescriptor) KeysEqual(other IndexDescriptor) bool {
	if len(d.Keys) != len(other.Keys) {
		return false
	}
	for i, k := range d.Keys {
		o := other.Keys[i]
		if k.Path != o.Path || normalizeDirection(k.Direction) != normalizeDirection(o.Direction) {
			return false
		}
	}
	return true
}

func normalizeDirection(d int32) int32 {
	if d < 0 {
		return -1
	}
	return 1
}

// Collection is the handle the executor and index reconciler use to
// operate on one live collection. Filters are top-level equality matches;
// a nil filter matches every document.
type Collection interface {
	Name() string

	Find(ctx context.Context, filter Document) ([]Document, error)
	InsertMany(ctx context.Context, docs []Document) error
	DeleteMany(ctx context.Context, filter Document) (int64, error)

	// UpdateMany applies fn to every document matching the filter and
	// persists the result. A nil document returned by fn deletes the
	// original.
	UpdateMany(ctx context.Context, filter Document, fn TransformFunc) (int64, error)

	ListIndexes(ctx context.Context) ([]IndexDescriptor, error)
	CreateIndex(ctx context.Context, idx IndexDescriptor) error

	// DropIndex removes the named index. Implementations return an error
	// carrying the not-found code when the index is already absent; the
	// reconciler tolerates that case.
	DropIndex(ctx context.Context, name string) error
}

// Driver is the collection driver boundary. Structural operations are
// idempotent: creating a collection that already exists is a no-op.
type Driver interface {
	CreateCollection(ctx context.Context, name string, validator interface{}) error
	DropCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	Collection(name string) Collection

	// UpdateValidator replaces the validator on an existing collection so
	// the enforced rules track the declared schema as later migrations
	// change it. A nil validator is a no-op.
	UpdateValidator(ctx context.Context, name string, validator interface{}) error
}

// ValidatorCompiler turns declared schemas into database-enforced
// validator documents. The compiler itself is an external collaborator;
// a nil compiler means collections are created without validators.
type ValidatorCompiler interface {
	// CompileCollection compiles the validator for a plain collection.
	CompileCollection(root *schema.Node) (interface{}, error)

	// CompileShared compiles the validator for a shared collection
	// holding the given document types, discriminated by typeField.
	CompileShared(types map[string]*schema.Node, typeField string) (interface{}, error)
}
