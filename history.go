package docshift

import (
	"context"
	"time"
)

// Direction indicates whether a history record describes a forward apply
// or a rollback.
type Direction int

const (
	// DirectionUp records a forward apply.
	DirectionUp Direction = iota
	// DirectionDown records a rollback.
	DirectionDown
)

// String returns a string representation for a direction.
func (d Direction) String() string {
	if d == DirectionDown {
		return "down"
	}
	return "up"
}

// HistoryRecord is one row of the persisted migration history: which
// migration, when, and in which direction. Records are append-only; the
// latest forward record for an identity which has not been reversed
// defines "currently applied".
type HistoryRecord struct {
	MigrationID ID
	AppliedAt   time.Time
	Direction   Direction
}

// Replay folds an append-only record trail, oldest first, into the
// applied identity sequence: a forward record appends its identity, a
// rollback record removes the most recent occurrence.
func Replay(records []HistoryRecord) []ID {
	var applied []ID
	for _, rec := range records {
		if rec.Direction == DirectionUp {
			applied = append(applied, rec.MigrationID)
			continue
		}
		for i := len(applied) - 1; i >= 0; i-- {
			if applied[i] == rec.MigrationID {
				applied = append(applied[:i], applied[i+1:]...)
				break
			}
		}
	}
	return applied
}

// HistoryStore persists the append-only record of applied migrations.
//
// A RecordApplied failure after the structural apply already succeeded is
// a fatal inconsistency; the executor surfaces it with a distinct history
// write error code so an operator knows not to blindly retry the run.
type HistoryStore interface {
	// GetApplied returns the currently applied identities in application
	// order.
	GetApplied(ctx context.Context) ([]ID, error)

	// LastApplied returns the most recently applied identity, or the
	// empty ID when nothing is applied.
	LastApplied(ctx context.Context) (ID, error)

	// RecordApplied appends a forward record for the identity.
	RecordApplied(ctx context.Context, id ID) error

	// RecordRolledBack appends a rollback record for the identity,
	// reversing its most recent forward record.
	RecordRolledBack(ctx context.Context, id ID) error
}
