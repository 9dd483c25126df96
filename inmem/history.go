package inmem

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/docshift/docshift"
)

// HistoryStore is an in-memory docshift.HistoryStore keeping the full
// append-only record trail.
type HistoryStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	records []docshift.HistoryRecord
}

// HistoryOption configures a HistoryStore.
type HistoryOption func(*HistoryStore)

// WithClock sets the clock used to timestamp records.
func WithClock(c clock.Clock) HistoryOption {
	return func(s *HistoryStore) {
		s.clock = c
	}
}

// NewHistoryStore constructs an empty history store.
func NewHistoryStore(opts ...HistoryOption) *HistoryStore {
	s := &HistoryStore{
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetApplied returns the currently applied identities in application
// order, derived by replaying the record trail.
func (s *HistoryStore) GetApplied(context.Context) ([]docshift.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return docshift.Replay(s.records), nil
}

// LastApplied returns the most recently applied identity, or the empty ID
// when nothing is applied.
func (s *HistoryStore) LastApplied(ctx context.Context) (docshift.ID, error) {
	applied, err := s.GetApplied(ctx)
	if err != nil || len(applied) == 0 {
		return "", err
	}
	return applied[len(applied)-1], nil
}

// RecordApplied appends a forward record for the identity.
func (s *HistoryStore) RecordApplied(_ context.Context, id docshift.ID) error {
	return s.append(id, docshift.DirectionUp)
}

// RecordRolledBack appends a rollback record for the identity.
func (s *HistoryStore) RecordRolledBack(_ context.Context, id docshift.ID) error {
	return s.append(id, docshift.DirectionDown)
}

func (s *HistoryStore) append(id docshift.ID, dir docshift.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, docshift.HistoryRecord{
		MigrationID: id,
		AppliedAt:   s.clock.Now().UTC(),
		Direction:   dir,
	})
	return nil
}

// Records returns a copy of the full record trail, oldest first.
func (s *HistoryStore) Records() []docshift.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]docshift.HistoryRecord, len(s.records))
	copy(out, s.records)
	return out
}
