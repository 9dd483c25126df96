package migration

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/index"
	"github.com/docshift/docshift/inmem"
	"github.com/docshift/docshift/kit/errors"
	"github.com/docshift/docshift/schema"
)

// Strictness controls how additive schema drift is reported. Destructive
// drift without a covering transform is always an error.
type Strictness int

const (
	// StrictnessWarn reports unaccounted additive drift as a warning.
	StrictnessWarn Strictness = iota
	// StrictnessError promotes unaccounted additive drift to an error.
	StrictnessError
)

// Finding is one validation message attributed to a migration unit. Code
// classifies the finding with an error code from kit/errors.
type Finding struct {
	MigrationID docshift.ID
	Code        string
	Msg         string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.MigrationID, f.Msg)
}

// Result aggregates the findings of a validation run.
type Result struct {
	Errors   []Finding
	Warnings []Finding
}

// OK reports whether the chain passed validation.
func (r *Result) OK() bool {
	return len(r.Errors) == 0
}

// Err collapses the error findings into a single error, or nil when the
// chain passed.
func (r *Result) Err() error {
	var err *multierror.Error
	for _, f := range r.Errors {
		err = multierror.Append(err, &errors.Error{Code: f.Code, Msg: f.String()})
	}
	return err.ErrorOrNil()
}

func (r *Result) errorf(id docshift.ID, code, format string, args ...interface{}) {
	r.Errors = append(r.Errors, Finding{MigrationID: id, Code: code, Msg: fmt.Sprintf(format, args...)})
}

func (r *Result) warnf(id docshift.ID, code, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, Finding{MigrationID: id, Code: code, Msg: fmt.Sprintf(format, args...)})
}

// Validator checks a chain before anything touches a real database. It
// verifies that every unit's declared schema drift is accounted for by
// its operations, that every non-head unit can be rolled back through,
// and that the whole chain applies cleanly against an in-memory model.
type Validator struct {
	log        *zap.Logger
	strictness Strictness
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithStrictness sets how additive drift findings are classified.
func WithStrictness(s Strictness) ValidatorOption {
	return func(v *Validator) {
		v.strictness = s
	}
}

// NewValidator constructs a validator with the given options.
func NewValidator(log *zap.Logger, opts ...ValidatorOption) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	v := &Validator{log: log, strictness: StrictnessWarn}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs every static check and the dry-run simulation over the
// chain and returns the accumulated findings. It performs no real I/O.
func (v *Validator) Validate(ctx context.Context, chain *Chain) *Result {
	result := &Result{}

	units := chain.Units()
	for i, u := range units {
		ops, err := u.Operations()
		if err != nil {
			result.errorf(u.ID, errors.EInvalid, "operations do not compile: %v", err)
			continue
		}

		v.checkDrift(result, chain, u, ops)
		v.checkDownCoverage(result, u, ops, i == len(units)-1)
	}

	if result.OK() {
		v.simulate(ctx, result, units)
	}

	v.log.Debug("Chain validation finished",
		zap.Int("units", len(units)),
		zap.Int("errors", len(result.Errors)),
		zap.Int("warnings", len(result.Warnings)))

	return result
}

// checkDrift verifies that the difference between the unit's snapshot and
// its parent's is accounted for by the unit's operations. New collections
// need a create operation, destructive drift needs a transform on the
// drifting collection, and unaccounted additive drift is reported per the
// configured strictness. Index metadata drift needs no operation; the
// reconciler converges it.
func (v *Validator) checkDrift(result *Result, chain *Chain, u *Unit, ops OperationList) {
	parent := chain.ParentSnapshot(u)
	if parent == nil {
		parent = schema.NewSnapshot()
	}

	creates := map[string]bool{}
	sharedTypes := map[string]map[string]bool{}
	transforms := map[string]bool{}
	for _, op := range ops {
		switch op.Kind {
		case OpCreateCollection, OpCreateTemplateInstance:
			creates[op.Collection] = true
		case OpCreateSharedType:
			creates[op.Collection] = true
			if sharedTypes[op.Collection] == nil {
				sharedTypes[op.Collection] = map[string]bool{}
			}
			sharedTypes[op.Collection][op.TypeTag] = true
		case OpTransformCollection:
			transforms[op.Collection] = true
		}
	}

	for _, name := range u.Snapshot.CollectionNames() {
		if _, ok := parent.Collections[name]; !ok && !creates[name] {
			result.errorf(u.ID, errors.ESchemaDrift, "collection %s is declared in the snapshot but never created", name)
		}
	}
	for _, name := range u.Snapshot.SharedNames() {
		ptypes, existed := parent.Shared[name]
		if !existed && !creates[name] {
			result.errorf(u.ID, errors.ESchemaDrift, "shared collection %s is declared in the snapshot but never created", name)
			continue
		}
		for tag := range u.Snapshot.Shared[name] {
			if _, ok := ptypes[tag]; !ok && !creates[name] && !sharedTypes[name][tag] {
				result.errorf(u.ID, errors.ESchemaDrift, "type %s of shared collection %s is declared in the snapshot but never created", tag, name)
			}
		}
	}

	for _, op := range ops {
		switch op.Kind {
		case OpCreateCollection:
			if _, ok := u.Snapshot.Collections[op.Collection]; !ok {
				result.errorf(u.ID, errors.EInvalid, "%s: collection is not declared in the snapshot", op)
			}
		case OpCreateSharedType:
			if _, ok := u.Snapshot.Shared[op.Collection][op.TypeTag]; !ok {
				result.errorf(u.ID, errors.EInvalid, "%s: type is not declared in the snapshot", op)
			}
		case OpCreateTemplateInstance:
			if _, ok := u.Snapshot.Templates[op.Template]; !ok {
				result.errorf(u.ID, errors.EInvalid, "%s: template is not declared in the snapshot", op)
			}
			if _, ok := u.Snapshot.Shared[op.Collection]; !ok {
				result.errorf(u.ID, errors.EInvalid, "%s: instance is not declared as a shared collection in the snapshot", op)
			}
		}
	}

	for _, d := range schema.Diff(parent, u.Snapshot) {
		switch d.Kind {
		case schema.DriftIndex:
			// converged by reconciliation

		case schema.DriftDestructive:
			if transforms[d.Collection] {
				continue
			}
			result.errorf(u.ID, errors.ESchemaDrift, "destructive drift without a transform on %s: %s", d.Collection, d.Msg)

		case schema.DriftAdditive:
			if creates[d.Collection] || transforms[d.Collection] {
				continue
			}
			// template declarations carry no data until instantiated
			if _, ok := u.Snapshot.Templates[d.Collection]; ok {
				continue
			}
			if v.strictness == StrictnessError {
				result.errorf(u.ID, errors.ESchemaDrift, "additive drift on %s: %s", d.Collection, d.Msg)
			} else {
				result.warnf(u.ID, errors.ESchemaDrift, "additive drift on %s: %s", d.Collection, d.Msg)
			}
		}
	}
}

// checkDownCoverage enforces rollback coverage. Every transform in a
// non-head unit must carry a down function, since later units can only be
// rolled back through it. The head may omit the down function, but only
// when the transform is explicitly flagged lossy.
func (v *Validator) checkDownCoverage(result *Result, u *Unit, ops OperationList, head bool) {
	for _, op := range ops {
		if op.Kind != OpTransformCollection {
			continue
		}
		if op.Transform.Down != nil {
			continue
		}
		if !head {
			result.errorf(u.ID, errors.EIrreversible, "transform on %s has no down function; non-head migrations must be reversible", op.Collection)
			continue
		}
		if !op.Transform.Lossy {
			result.errorf(u.ID, errors.EIrreversible, "transform on %s has no down function and is not flagged lossy", op.Collection)
		}
	}
}

// simulate dry-runs the whole chain, in order, against an in-memory
// model. Any failure is attributed to the failing unit; simulation stops
// there since later units build on the failed state.
func (v *Validator) simulate(ctx context.Context, result *Result, units []*Unit) {
	sim := newApplier(v.log, inmem.NewDriver(), index.NewReconciler(v.log), nil)
	for _, u := range units {
		if err := sim.applyUnit(ctx, u); err != nil {
			result.errorf(u.ID, errors.ESimulation, "simulation failed: %v", err)
			return
		}
	}
}
