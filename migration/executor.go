package migration

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/index"
	"github.com/docshift/docshift/kit/errors"
)

// State describes what the executor is currently doing. The executor is a
// sequential state machine; it is in exactly one state at a time and runs
// one migration at a time.
type State int

const (
	// StateIdle means no run is in progress.
	StateIdle State = iota
	// StatePlanning means history is being compared against the chain.
	StatePlanning
	// StateApplying means a unit's operations are executing forward.
	StateApplying
	// StateRecording means a history record is being persisted.
	StateRecording
	// StateRollingBack means a unit's operations are being reverted.
	StateRollingBack
	// StateFailed means the last run stopped on an error.
	StateFailed
)

// String returns a string representation for a state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateApplying:
		return "applying"
	case StateRecording:
		return "recording"
	case StateRollingBack:
		return "rolling back"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Executor applies and rolls back migration chains against a live
// database, persisting every step in the history store. Runs are
// serialized; concurrent calls block.
type Executor struct {
	log     *zap.Logger
	driver  docshift.Driver
	history docshift.HistoryStore
	applier *applier
	metrics *executorMetrics
	clock   clock.Clock

	running chan struct{}

	stateMu sync.RWMutex
	state   State
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithReconciler replaces the default index reconciler.
func WithReconciler(r *index.Reconciler) ExecutorOption {
	return func(e *Executor) {
		e.applier.reconciler = r
	}
}

// WithValidatorCompiler installs a compiler translating schema snapshots
// into database-native document validators.
func WithValidatorCompiler(c docshift.ValidatorCompiler) ExecutorOption {
	return func(e *Executor) {
		e.applier.compiler = c
	}
}

// WithMetrics registers execution metrics on the given registerer.
func WithMetrics(reg prometheus.Registerer) ExecutorOption {
	return func(e *Executor) {
		e.metrics = newExecutorMetrics(reg)
	}
}

// WithExecutorClock replaces the wall clock, for tests.
func WithExecutorClock(c clock.Clock) ExecutorOption {
	return func(e *Executor) {
		e.clock = c
	}
}

// NewExecutor constructs an executor over the given driver and history
// store.
func NewExecutor(log *zap.Logger, driver docshift.Driver, history docshift.HistoryStore, opts ...ExecutorOption) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Executor{
		log:     log,
		driver:  driver,
		history: history,
		applier: newApplier(log, driver, nil, nil),
		clock:   clock.New(),
		running: make(chan struct{}, 1),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the executor's current state.
func (e *Executor) State() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

func (e *Executor) setState(s State, fields ...zap.Field) {
	e.stateMu.Lock()
	e.state = s
	e.stateMu.Unlock()

	e.log.Info("Executor state changed",
		append([]zap.Field{zap.String("migration_event", s.String())}, fields...)...)
}

func (e *Executor) lock(ctx context.Context) error {
	select {
	case e.running <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) unlock() {
	<-e.running
}

// plan compares recorded history against the chain and returns the count
// of applied units. Recorded history must be a prefix of the chain;
// anything else means the code and the database disagree about the past.
func (e *Executor) plan(ctx context.Context, chain *Chain) (int, error) {
	e.setState(StatePlanning)

	applied, err := e.history.GetApplied(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading migration history: %w", err)
	}

	units := chain.Units()
	if len(applied) > len(units) {
		return 0, &errors.Error{
			Code: errors.EConflict,
			Msg:  fmt.Sprintf("history records %d applied migrations but the chain has only %d", len(applied), len(units)),
		}
	}
	for i, id := range applied {
		if units[i].ID != id {
			return 0, &errors.Error{
				Code: errors.EConflict,
				Msg: fmt.Sprintf("history diverges from the chain at position %d: recorded %s, chain has %s",
					i, id, units[i].ID),
			}
		}
	}
	return len(applied), nil
}

// Migrate applies every pending unit of the chain in order and returns
// the identities it applied. A chain that is already fully applied is a
// no-op.
func (e *Executor) Migrate(ctx context.Context, chain *Chain) ([]docshift.ID, error) {
	if err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.unlock()

	appliedCount, err := e.plan(ctx, chain)
	if err != nil {
		e.setState(StateFailed)
		return nil, err
	}

	var applied []docshift.ID
	for _, u := range chain.Units()[appliedCount:] {
		idField := zap.String("migration_id", string(u.ID))

		e.setState(StateApplying, idField, zap.String("direction", "up"))
		start := e.clock.Now()
		if err := e.applier.applyUnit(ctx, u); err != nil {
			e.setState(StateFailed, idField)
			e.metrics.Failed("up")
			return applied, fmt.Errorf("applying migration %s: %w", u.ID, err)
		}

		e.setState(StateRecording, idField)
		if err := e.history.RecordApplied(ctx, u.ID); err != nil {
			e.setState(StateFailed, idField)
			e.metrics.Failed("up")
			return applied, &errors.Error{
				Code: errors.EHistoryWrite,
				Msg:  fmt.Sprintf("migration %s applied but recording it failed; do not retry blindly", u.ID),
				Err:  err,
			}
		}

		e.metrics.Applied(e.clock.Since(start).Seconds())
		applied = append(applied, u.ID)
	}

	e.setState(StateIdle, zap.Int("applied", len(applied)))
	return applied, nil
}

// RollbackOptions control how far a rollback goes and whether it may pass
// irreversible transforms.
type RollbackOptions struct {
	// To names the migration that should remain applied afterwards. Empty
	// with All unset rolls back a single unit.
	To docshift.ID
	// All rolls back to an empty database.
	All bool
	// Force skips the irreversibility check, accepting data loss for
	// transforms without a down function.
	Force bool
}

// RollbackOption configures a rollback run.
type RollbackOption func(*RollbackOptions)

// RollbackTo rolls back until the named migration is the last applied.
func RollbackTo(id docshift.ID) RollbackOption {
	return func(o *RollbackOptions) { o.To = id }
}

// RollbackAll rolls back every applied migration.
func RollbackAll() RollbackOption {
	return func(o *RollbackOptions) { o.All = true }
}

// RollbackForce permits rolling back through lossy or irreversible
// transforms.
func RollbackForce() RollbackOption {
	return func(o *RollbackOptions) { o.Force = true }
}

// Rollback reverts applied units from the tail of the chain and returns
// the identities it rolled back. Without options it rolls back exactly
// one unit. Rolling back an empty history is a no-op.
func (e *Executor) Rollback(ctx context.Context, chain *Chain, opts ...RollbackOption) ([]docshift.ID, error) {
	var options RollbackOptions
	for _, opt := range opts {
		opt(&options)
	}

	if err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.unlock()

	appliedCount, err := e.plan(ctx, chain)
	if err != nil {
		e.setState(StateFailed)
		return nil, err
	}
	if appliedCount == 0 {
		e.setState(StateIdle)
		return nil, nil
	}

	keep, err := e.rollbackTarget(chain, appliedCount, options)
	if err != nil {
		e.setState(StateFailed)
		return nil, err
	}

	units := chain.Units()
	var rolledBack []docshift.ID
	for i := appliedCount - 1; i >= keep; i-- {
		u := units[i]
		idField := zap.String("migration_id", string(u.ID))

		e.setState(StateRollingBack, idField, zap.String("direction", "down"))
		start := e.clock.Now()
		if err := e.applier.revertUnit(ctx, u, chain.ParentSnapshot(u), options.Force); err != nil {
			e.setState(StateFailed, idField)
			e.metrics.Failed("down")
			return rolledBack, fmt.Errorf("rolling back migration %s: %w", u.ID, err)
		}

		e.setState(StateRecording, idField)
		if err := e.history.RecordRolledBack(ctx, u.ID); err != nil {
			e.setState(StateFailed, idField)
			e.metrics.Failed("down")
			return rolledBack, &errors.Error{
				Code: errors.EHistoryWrite,
				Msg:  fmt.Sprintf("migration %s rolled back but recording it failed; do not retry blindly", u.ID),
				Err:  err,
			}
		}

		e.metrics.RolledBack(e.clock.Since(start).Seconds())
		rolledBack = append(rolledBack, u.ID)
	}

	e.setState(StateIdle, zap.Int("rolled_back", len(rolledBack)))
	return rolledBack, nil
}

// rollbackTarget resolves the options into the number of units that stay
// applied.
func (e *Executor) rollbackTarget(chain *Chain, appliedCount int, options RollbackOptions) (int, error) {
	switch {
	case options.All:
		return 0, nil
	case options.To != "":
		i := chain.IndexOf(options.To)
		if i < 0 {
			return 0, &errors.Error{
				Code: errors.ENotFound,
				Msg:  fmt.Sprintf("rollback target %s is not part of the chain", options.To),
			}
		}
		if i >= appliedCount {
			return 0, &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("rollback target %s has not been applied", options.To),
			}
		}
		return i + 1, nil
	default:
		return appliedCount - 1, nil
	}
}

// Status reports how the chain stands relative to recorded history.
func (e *Executor) Status(ctx context.Context, chain *Chain) (*docshift.Status, error) {
	if err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.unlock()

	appliedCount, err := e.plan(ctx, chain)
	if err != nil {
		e.setState(StateFailed)
		return nil, err
	}
	e.setState(StateIdle)

	status := &docshift.Status{AppliedCount: appliedCount}
	for _, u := range chain.Units()[appliedCount:] {
		status.PendingIDs = append(status.PendingIDs, u.ID)
	}
	return status, nil
}

// List reports every unit of the chain in order, with whether history
// records it as applied.
func (e *Executor) List(ctx context.Context, chain *Chain) ([]docshift.UnitStatus, error) {
	if err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.unlock()

	appliedCount, err := e.plan(ctx, chain)
	if err != nil {
		e.setState(StateFailed)
		return nil, err
	}
	e.setState(StateIdle)

	units := chain.Units()
	out := make([]docshift.UnitStatus, 0, len(units))
	for i, u := range units {
		out = append(out, docshift.UnitStatus{ID: u.ID, Applied: i < appliedCount})
	}
	return out, nil
}
