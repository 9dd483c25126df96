// Package mock provides function-field test doubles for the docshift
// service interfaces.
package mock

import (
	"context"

	"github.com/docshift/docshift"
)

var _ docshift.HistoryStore = (*HistoryStore)(nil)

// HistoryStore is a mockable docshift.HistoryStore.
type HistoryStore struct {
	GetAppliedFn       func(ctx context.Context) ([]docshift.ID, error)
	LastAppliedFn      func(ctx context.Context) (docshift.ID, error)
	RecordAppliedFn    func(ctx context.Context, id docshift.ID) error
	RecordRolledBackFn func(ctx context.Context, id docshift.ID) error
}

// NewHistoryStore returns a mock whose methods succeed over an empty
// history.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		GetAppliedFn: func(context.Context) ([]docshift.ID, error) {
			return nil, nil
		},
		LastAppliedFn: func(context.Context) (docshift.ID, error) {
			return "", nil
		},
		RecordAppliedFn: func(context.Context, docshift.ID) error {
			return nil
		},
		RecordRolledBackFn: func(context.Context, docshift.ID) error {
			return nil
		},
	}
}

func (s *HistoryStore) GetApplied(ctx context.Context) ([]docshift.ID, error) {
	return s.GetAppliedFn(ctx)
}

func (s *HistoryStore) LastApplied(ctx context.Context) (docshift.ID, error) {
	return s.LastAppliedFn(ctx)
}

func (s *HistoryStore) RecordApplied(ctx context.Context, id docshift.ID) error {
	return s.RecordAppliedFn(ctx, id)
}

func (s *HistoryStore) RecordRolledBack(ctx context.Context, id docshift.ID) error {
	return s.RecordRolledBackFn(ctx, id)
}
