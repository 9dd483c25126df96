package migration

import (
	"fmt"

	"github.com/docshift/docshift"
)

// OpKind enumerates the structural operation kinds a migration unit can
// declare.
type OpKind int

const (
	// OpCreateCollection creates a plain collection.
	OpCreateCollection OpKind = iota
	// OpTransformCollection rewrites a collection's documents.
	OpTransformCollection
	// OpCreateSharedType declares a document type in a shared collection
	// and optionally seeds it.
	OpCreateSharedType
	// OpCreateTemplateInstance creates a shared collection from a
	// reusable template.
	OpCreateTemplateInstance
)

// String returns a string representation for an operation kind.
func (k OpKind) String() string {
	switch k {
	case OpCreateCollection:
		return "createCollection"
	case OpTransformCollection:
		return "transform"
	case OpCreateSharedType:
		return "createSharedType"
	case OpCreateTemplateInstance:
		return "createTemplateInstance"
	default:
		return "unknown"
	}
}

// Transform is a reversible (or explicitly lossy) data transform. Up is
// applied on forward migration, Down on rollback. A transform whose
// inverse cannot reconstruct the original data must set Lossy; a missing
// Down is only permitted on the head migration and must also be flagged
// Lossy.
type Transform struct {
	Up    docshift.TransformFunc
	Down  docshift.TransformFunc
	Lossy bool
}

// Operation is one structural operation descriptor. Descriptors perform
// no I/O themselves; the same list is interpreted by the simulator
// against the in-memory model and by the executor against the real
// database.
type Operation struct {
	Kind       OpKind
	Collection string
	TypeTag    string
	Template   string
	Seed       []docshift.Document
	Transform  *Transform
}

// String describes the operation for logs and error messages.
func (op Operation) String() string {
	switch op.Kind {
	case OpCreateSharedType:
		return fmt.Sprintf("%s %s/%s", op.Kind, op.Collection, op.TypeTag)
	case OpCreateTemplateInstance:
		return fmt.Sprintf("%s %s from %s", op.Kind, op.Collection, op.Template)
	default:
		return fmt.Sprintf("%s %s", op.Kind, op.Collection)
	}
}

// OperationList is a unit's frozen, ordered list of operations.
type OperationList []Operation
