package migration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/index"
	"github.com/docshift/docshift/kit/errors"
	"github.com/docshift/docshift/schema"
)

// applier interprets a unit's operation list against a driver. The same
// interpreter serves the simulator (in-memory driver) and the executor
// (real driver); only the driver differs.
type applier struct {
	log        *zap.Logger
	driver     docshift.Driver
	reconciler *index.Reconciler
	compiler   docshift.ValidatorCompiler
}

func newApplier(log *zap.Logger, driver docshift.Driver, reconciler *index.Reconciler, compiler docshift.ValidatorCompiler) *applier {
	if reconciler == nil {
		reconciler = index.NewReconciler(log)
	}
	return &applier{
		log:        log,
		driver:     driver,
		reconciler: reconciler,
		compiler:   compiler,
	}
}

// applyUnit executes the unit's operations in order, then converges the
// indexes of every collection the unit's snapshot declares.
func (a *applier) applyUnit(ctx context.Context, u *Unit) error {
	ops, err := u.Operations()
	if err != nil {
		return err
	}

	for _, op := range ops {
		a.log.Debug("Executing structural operation",
			zap.String("migration_id", string(u.ID)),
			zap.String("operation", op.String()))

		if err := a.applyOperation(ctx, u, op); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return a.converge(ctx, u.Snapshot)
}

func (a *applier) applyOperation(ctx context.Context, u *Unit, op Operation) error {
	switch op.Kind {
	case OpCreateCollection:
		node, ok := u.Snapshot.Collections[op.Collection]
		if !ok {
			return &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("collection %s is not declared in the schema snapshot", op.Collection),
			}
		}
		validator, err := a.compileCollection(node)
		if err != nil {
			return err
		}
		return a.driver.CreateCollection(ctx, op.Collection, validator)

	case OpTransformCollection:
		coll := a.driver.Collection(op.Collection)
		_, err := coll.UpdateMany(ctx, nil, op.Transform.Up)
		return err

	case OpCreateSharedType:
		types, ok := u.Snapshot.Shared[op.Collection]
		if !ok {
			return &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("shared collection %s is not declared in the schema snapshot", op.Collection),
			}
		}
		node, ok := types[op.TypeTag]
		if !ok {
			return &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("type %s is not declared for shared collection %s", op.TypeTag, op.Collection),
			}
		}
		validator, err := a.compileShared(types)
		if err != nil {
			return err
		}
		if err := a.driver.CreateCollection(ctx, op.Collection, validator); err != nil {
			return err
		}
		return a.seed(ctx, op, node)

	case OpCreateTemplateInstance:
		if _, ok := u.Snapshot.Templates[op.Template]; !ok {
			return &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("template %s is not declared in the schema snapshot", op.Template),
			}
		}
		types, ok := u.Snapshot.Shared[op.Collection]
		if !ok {
			return &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("template instance %s is not declared as a shared collection in the schema snapshot", op.Collection),
			}
		}
		validator, err := a.compileShared(types)
		if err != nil {
			return err
		}
		return a.driver.CreateCollection(ctx, op.Collection, validator)

	default:
		return &errors.Error{
			Code: errors.EInternal,
			Msg:  fmt.Sprintf("unknown operation kind %d", op.Kind),
		}
	}
}

// seed validates the operation's seed documents against the declared type
// schema, stamps the type discriminator and inserts them.
func (a *applier) seed(ctx context.Context, op Operation, node *schema.Node) error {
	if len(op.Seed) == 0 {
		return nil
	}

	docs := make([]docshift.Document, 0, len(op.Seed))
	for i, doc := range op.Seed {
		if err := schema.ValidateDocument(node, doc); err != nil {
			return &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("seed document %d for %s/%s fails schema validation", i, op.Collection, op.TypeTag),
				Err:  err,
			}
		}
		clone := doc.Clone()
		clone[docshift.TypeField] = op.TypeTag
		docs = append(docs, clone)
	}

	return a.driver.Collection(op.Collection).InsertMany(ctx, docs)
}

// revertUnit executes the inverse of the unit's operations in reverse
// order, then converges indexes to the parent snapshot. Irreversibility
// is checked up front, before any mutation happens.
func (a *applier) revertUnit(ctx context.Context, u *Unit, parent *schema.Snapshot, force bool) error {
	ops, err := u.Operations()
	if err != nil {
		return err
	}

	if !force {
		for _, op := range ops {
			if op.Kind != OpTransformCollection {
				continue
			}
			if op.Transform.Down == nil || op.Transform.Lossy {
				return &errors.Error{
					Code: errors.EIrreversible,
					Msg: fmt.Sprintf("migration %s: transform on %s cannot be reversed without data loss",
						u.ID, op.Collection),
				}
			}
		}
	}

	if parent == nil {
		parent = schema.NewSnapshot()
	}

	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		a.log.Debug("Reverting structural operation",
			zap.String("migration_id", string(u.ID)),
			zap.String("operation", op.String()))

		if err := a.revertOperation(ctx, op, parent); err != nil {
			return fmt.Errorf("reverting %s: %w", op, err)
		}
	}

	return a.converge(ctx, parent)
}

func (a *applier) revertOperation(ctx context.Context, op Operation, parent *schema.Snapshot) error {
	switch op.Kind {
	case OpCreateCollection:
		// drop only what this unit created
		if _, ok := parent.Collections[op.Collection]; ok {
			return nil
		}
		return a.driver.DropCollection(ctx, op.Collection)

	case OpTransformCollection:
		if op.Transform.Down == nil {
			// reachable only under force
			return nil
		}
		_, err := a.driver.Collection(op.Collection).UpdateMany(ctx, nil, op.Transform.Down)
		return err

	case OpCreateSharedType:
		coll := a.driver.Collection(op.Collection)
		for _, doc := range op.Seed {
			filter := doc.Clone()
			filter[docshift.TypeField] = op.TypeTag
			if _, err := coll.DeleteMany(ctx, filter); err != nil {
				return err
			}
		}
		if _, ok := parent.Shared[op.Collection]; !ok {
			return a.driver.DropCollection(ctx, op.Collection)
		}
		return nil

	case OpCreateTemplateInstance:
		if _, ok := parent.Shared[op.Collection]; !ok {
			return a.driver.DropCollection(ctx, op.Collection)
		}
		return nil

	default:
		return &errors.Error{
			Code: errors.EInternal,
			Msg:  fmt.Sprintf("unknown operation kind %d", op.Kind),
		}
	}
}

// converge reconciles the live indexes and validators of every collection
// the snapshot declares. Collections the snapshot declares but which do
// not exist yet are skipped; a later unit creates them.
func (a *applier) converge(ctx context.Context, snap *schema.Snapshot) error {
	for _, name := range snap.CollectionNames() {
		exists, err := a.driver.CollectionExists(ctx, name)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		validator, err := a.compileCollection(snap.Collections[name])
		if err != nil {
			return err
		}
		if err := a.driver.UpdateValidator(ctx, name, validator); err != nil {
			return err
		}
		if _, err := a.reconciler.Reconcile(ctx, a.driver.Collection(name), snap.Collections[name]); err != nil {
			return err
		}
	}

	for _, name := range snap.SharedNames() {
		exists, err := a.driver.CollectionExists(ctx, name)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		validator, err := a.compileShared(snap.Shared[name])
		if err != nil {
			return err
		}
		if err := a.driver.UpdateValidator(ctx, name, validator); err != nil {
			return err
		}
		if _, err := a.reconciler.ReconcileShared(ctx, a.driver.Collection(name), snap.Shared[name]); err != nil {
			return err
		}
	}

	return nil
}

func (a *applier) compileCollection(node *schema.Node) (interface{}, error) {
	if a.compiler == nil {
		return nil, nil
	}
	return a.compiler.CompileCollection(node)
}

func (a *applier) compileShared(types map[string]*schema.Node) (interface{}, error) {
	if a.compiler == nil {
		return nil, nil
	}
	return a.compiler.CompileShared(types, docshift.TypeField)
}
