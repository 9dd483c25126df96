// Package index converges a collection's live secondary indexes to the
// index metadata declared on its schema.
//
// The reconciler extracts the desired declarations by walking the schema
// tree, reads the live index catalog, and computes a minimal drop/create
// plan. Matching is by deterministic name first, then by key-spec equality
// as a fallback, so renamed-but-equivalent indexes are left alone. Index
// options are normalized before comparison ("present and false/empty"
// equals "absent") to avoid spurious recreation loops. Live indexes which
// match the naming convention but are no longer declared are pruned.
//
// Reconciling twice in a row with an unchanged schema performs zero
// database mutations on the second call.
package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/docshift/docshift"
	kiterrors "github.com/docshift/docshift/kit/errors"
	"github.com/docshift/docshift/pkg/queue"
	"github.com/docshift/docshift/schema"
)

// Plan is the set of index mutations needed to converge a collection.
// Drops are executed before creates so a renamed or retyped index frees
// its name and key spec first.
type Plan struct {
	Drops   []string
	Creates []docshift.IndexDescriptor
}

// Empty reports whether the plan performs no mutations.
func (p Plan) Empty() bool {
	return len(p.Drops) == 0 && len(p.Creates) == 0
}

// BuildPlan diffs desired declarations against the live index catalog.
// typeTags is nil for plain collections; for shared collections it names
// the tags whose prefixes bound the managed namespace.
func BuildPlan(desired []Declaration, current []docshift.IndexDescriptor, typeTags []string) Plan {
	var plan Plan

	claimed := make(map[string]bool, len(current))
	byName := make(map[string]docshift.IndexDescriptor, len(current))
	for _, live := range current {
		byName[live.Name] = live
	}

	for _, decl := range desired {
		want := decl.Descriptor()

		live, ok := byName[decl.Name]
		if !ok {
			// fall back to key-spec equality to cover
			// renamed-but-equivalent indexes; the scope filter is part
			// of an index's identity, so it must match as well
			for _, candidate := range current {
				if claimed[candidate.Name] {
					continue
				}
				if want.KeysEqual(candidate) && scopeFiltersEqual(want.ScopeFilter, candidate.ScopeFilter) {
					live, ok = candidate, true
					break
				}
			}
		}

		if !ok {
			plan.Creates = append(plan.Creates, want)
			continue
		}

		claimed[live.Name] = true
		if !want.KeysEqual(live) || !optionsEqual(want, live) {
			plan.Drops = append(plan.Drops, live.Name)
			plan.Creates = append(plan.Creates, want)
		}
	}

	// prune orphans: live indexes in the managed namespace which no
	// declaration claims anymore
	for _, live := range current {
		if claimed[live.Name] {
			continue
		}
		if managed(live.Name, typeTags) {
			plan.Drops = append(plan.Drops, live.Name)
		}
	}

	return plan
}

// optionsEqual compares {unique, collation, scopeFilter} in canonical
// form: false/empty options equal absent ones.
func optionsEqual(a, b docshift.IndexDescriptor) bool {
	if a.Unique != b.Unique {
		return false
	}
	if !a.Collation.Equal(b.Collation) {
		return false
	}
	return scopeFiltersEqual(a.ScopeFilter, b.ScopeFilter)
}

func scopeFiltersEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Reconciler drives collections' live indexes to their declared schemas.
// It has no knowledge of migrations; the executor invokes it per
// structural operation and the collection-open path invokes it on every
// application startup.
type Reconciler struct {
	log   *zap.Logger
	queue *queue.Queue
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithQueue sets the shared operation queue used for index mutations.
func WithQueue(q *queue.Queue) Option {
	return func(r *Reconciler) {
		r.queue = q
	}
}

// NewReconciler constructs and configures a new Reconciler.
func NewReconciler(log *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		log: log,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.queue == nil {
		r.queue = queue.New()
	}
	return r
}

// Reconcile converges a plain collection to its schema tree.
func (r *Reconciler) Reconcile(ctx context.Context, coll docshift.Collection, root *schema.Node) (Plan, error) {
	return r.reconcile(ctx, coll, Declarations(root), nil)
}

// ReconcileShared converges a shared collection to its per-type schema
// trees. Each type's declarations are scoped by a filter on the type
// discriminator field.
func (r *Reconciler) ReconcileShared(ctx context.Context, coll docshift.Collection, types map[string]*schema.Node) (Plan, error) {
	desired := SharedDeclarations(types, docshift.TypeField)
	tags := make([]string, 0, len(types))
	for tag := range types {
		tags = append(tags, tag)
	}
	return r.reconcile(ctx, coll, desired, tags)
}

func (r *Reconciler) reconcile(ctx context.Context, coll docshift.Collection, desired []Declaration, typeTags []string) (Plan, error) {
	current, err := coll.ListIndexes(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("listing indexes for %s: %w", coll.Name(), err)
	}

	plan := BuildPlan(desired, current, typeTags)
	if plan.Empty() {
		return plan, nil
	}

	r.log.Info("Reconciling indexes",
		zap.String("collection", coll.Name()),
		zap.Int("drops", len(plan.Drops)),
		zap.Int("creates", len(plan.Creates)))

	if err := r.apply(ctx, coll, plan); err != nil {
		return plan, err
	}
	return plan, nil
}

// apply executes the plan: the drop phase completes fully before the
// create phase begins, each phase running through the bounded queue.
func (r *Reconciler) apply(ctx context.Context, coll docshift.Collection, plan Plan) error {
	drops := make([]queue.Task, 0, len(plan.Drops))
	for _, name := range plan.Drops {
		name := name
		drops = append(drops, func(ctx context.Context) error {
			err := coll.DropIndex(ctx, name)
			if err != nil && kiterrors.ErrorCode(err) == kiterrors.ENotFound {
				// already absent counts as dropped
				r.log.Debug("Index already absent",
					zap.String("collection", coll.Name()),
					zap.String("index", name))
				return nil
			}
			if err != nil {
				return fmt.Errorf("dropping index %s on %s: %w", name, coll.Name(), err)
			}
			return nil
		})
	}
	if err := r.queue.Do(ctx, drops...); err != nil {
		return err
	}

	creates := make([]queue.Task, 0, len(plan.Creates))
	for _, idx := range plan.Creates {
		idx := idx
		creates = append(creates, func(ctx context.Context) error {
			if err := coll.CreateIndex(ctx, idx); err != nil {
				return fmt.Errorf("creating index %s on %s: %w", idx.Name, coll.Name(), err)
			}
			return nil
		})
	}
	return r.queue.Do(ctx, creates...)
}
