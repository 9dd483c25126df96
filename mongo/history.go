package mongo

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/docshift/docshift"
)

// HistoryCollection is the collection holding the migration record trail.
const HistoryCollection = "docshift_history"

var _ docshift.HistoryStore = (*HistoryStore)(nil)

// HistoryStore persists the append-only migration history in a dedicated
// collection.
type HistoryStore struct {
	coll  *mongo.Collection
	clock clock.Clock
}

// HistoryOption configures a HistoryStore.
type HistoryOption func(*HistoryStore)

// WithClock sets the clock used to timestamp records.
func WithClock(c clock.Clock) HistoryOption {
	return func(s *HistoryStore) {
		s.clock = c
	}
}

// NewHistoryStore constructs a history store over the database.
func NewHistoryStore(db *mongo.Database, opts ...HistoryOption) *HistoryStore {
	s := &HistoryStore{
		coll:  db.Collection(HistoryCollection),
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// historyRow is the wire shape of one record.
type historyRow struct {
	MigrationID string    `bson:"migration_id"`
	AppliedAt   time.Time `bson:"applied_at"`
	Direction   string    `bson:"direction"`
}

func (r historyRow) record() docshift.HistoryRecord {
	dir := docshift.DirectionUp
	if r.Direction == docshift.DirectionDown.String() {
		dir = docshift.DirectionDown
	}
	return docshift.HistoryRecord{
		MigrationID: docshift.ID(r.MigrationID),
		AppliedAt:   r.AppliedAt,
		Direction:   dir,
	}
}

// GetApplied returns the currently applied identities in application
// order, derived by replaying the record trail.
func (s *HistoryStore) GetApplied(ctx context.Context) ([]docshift.ID, error) {
	records, err := s.records(ctx)
	if err != nil {
		return nil, err
	}
	return docshift.Replay(records), nil
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
func (s *HistoryStore) RecordApplied(ctx context.Context, id docshift.ID) error {
	return s.append(ctx, id, docshift.DirectionUp)
}

// RecordRolledBack appends a rollback record for the identity.
func (s *HistoryStore) RecordRolledBack(ctx context.Context, id docshift.ID) error {
	return s.append(ctx, id, docshift.DirectionDown)
}

func (s *HistoryStore) append(ctx context.Context, id docshift.ID, dir docshift.Direction) error {
	_, err := s.coll.InsertOne(ctx, historyRow{
		MigrationID: string(id),
		AppliedAt:   s.clock.Now().UTC(),
		Direction:   dir.String(),
	})
	if err != nil {
		return errors.Wrapf(err, "recording %s of %s", dir, id)
	}
	return nil
}

// Records returns the full record trail, oldest first.
func (s *HistoryStore) Records(ctx context.Context) ([]docshift.HistoryRecord, error) {
	return s.records(ctx)
}

func (s *HistoryStore) records(ctx context.Context) ([]docshift.HistoryRecord, error) {
	cursor, err := s.coll.Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "applied_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "querying migration history")
	}

	var rows []historyRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, errors.Wrap(err, "reading migration history cursor")
	}

	out := make([]docshift.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}
