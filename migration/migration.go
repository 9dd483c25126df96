// Package migration implements the migration chain engine: discovery and
// linking of migration units into a single ordered chain, dry-run
// validation against an in-memory model, and sequential forward/backward
// execution against a live database with persisted history.
package migration

import (
	"sync"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/kit/errors"
	"github.com/docshift/docshift/schema"
)

// Unit is one immutable node of the migration chain: its identity, the
// identity of its parent (empty for the root), the full schema snapshot
// the unit produces, and the migrate function declaring the structural
// operations which realize it.
type Unit struct {
	ID       docshift.ID
	ParentID docshift.ID
	Snapshot *schema.Snapshot
	Migrate  func(b *Builder)

	once sync.Once
	ops  OperationList
	err  error
}

// Validate checks the unit's self-description.
func (u *Unit) Validate() error {
	if err := u.ID.Validate(); err != nil {
		return err
	}
	if u.ParentID != "" {
		if err := u.ParentID.Validate(); err != nil {
			return err
		}
	}
	if u.Snapshot == nil {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "migration " + string(u.ID) + ": missing schema snapshot",
		}
	}
	if u.Migrate == nil {
		return &errors.Error{
			Code: errors.EInvalid,
			Msg:  "migration " + string(u.ID) + ": missing migrate function",
		}
	}
	return nil
}

// Operations runs the unit's migrate function against a fresh builder and
// returns the compiled, frozen operation list. The list is computed once
// and cached; units are immutable after registration.
func (u *Unit) Operations() (OperationList, error) {
	u.once.Do(func() {
		b := NewBuilder()
		u.Migrate(b)
		u.ops, u.err = b.Compile()
	})
	if u.err != nil {
		return nil, &errors.Error{
			Code: errors.EInvalid,
			Msg:  "migration " + string(u.ID) + ": compiling operations",
			Err:  u.err,
		}
	}
	return u.ops, nil
}

// Registry collects migration units at init time. Migration files
// register themselves in their package's registry; the chain builder
// consumes the collected units in unspecified order.
type Registry struct {
	mu    sync.Mutex
	units []*Unit
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a unit to the registry.
func (r *Registry) Register(u *Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units = append(r.units, u)
}

// Units returns the registered units in registration order.
func (r *Registry) Units() []*Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Unit, len(r.units))
	copy(out, r.units)
	return out
}
