// Package docshifttesting provides conformance suites shared by every
// implementation of the docshift service interfaces.
package docshifttesting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshift/docshift"
)

// HistoryStoreFactory constructs a fresh, empty history store for one
// subtest. The returned cleanup func may be nil.
type HistoryStoreFactory func(t *testing.T) (docshift.HistoryStore, func())

// HistoryStore runs the conformance suite against a history store
// implementation.
func HistoryStore(t *testing.T, factory HistoryStoreFactory) {
	t.Run("Empty", func(t *testing.T) {
		store, done := open(t, factory)
		defer done()
		ctx := context.Background()

		applied, err := store.GetApplied(ctx)
		require.NoError(t, err)
		assert.Empty(t, applied)

		last, err := store.LastApplied(ctx)
		require.NoError(t, err)
		assert.Empty(t, last)
	})

	t.Run("RecordsPreserveApplicationOrder", func(t *testing.T) {
		store, done := open(t, factory)
		defer done()
		ctx := context.Background()

		ids := []docshift.ID{
			"2024_01_01_0900_AAAAAA@one",
			"2024_01_02_0900_BBBBBB@two",
			"2024_01_03_0900_CCCCCC@three",
		}
		for _, id := range ids {
			require.NoError(t, store.RecordApplied(ctx, id))
		}

		applied, err := store.GetApplied(ctx)
		require.NoError(t, err)
		assert.Equal(t, ids, applied)

		last, err := store.LastApplied(ctx)
		require.NoError(t, err)
		assert.Equal(t, ids[2], last)
	})

	t.Run("RollbackReversesMostRecentApply", func(t *testing.T) {
		store, done := open(t, factory)
		defer done()
		ctx := context.Background()

		first := docshift.ID("2024_01_01_0900_AAAAAA@one")
		second := docshift.ID("2024_01_02_0900_BBBBBB@two")
		require.NoError(t, store.RecordApplied(ctx, first))
		require.NoError(t, store.RecordApplied(ctx, second))
		require.NoError(t, store.RecordRolledBack(ctx, second))

		applied, err := store.GetApplied(ctx)
		require.NoError(t, err)
		assert.Equal(t, []docshift.ID{first}, applied)

		last, err := store.LastApplied(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, last)
	})

	t.Run("ReapplyAfterRollback", func(t *testing.T) {
		store, done := open(t, factory)
		defer done()
		ctx := context.Background()

		id := docshift.ID("2024_01_01_0900_AAAAAA@one")
		require.NoError(t, store.RecordApplied(ctx, id))
		require.NoError(t, store.RecordRolledBack(ctx, id))
		require.NoError(t, store.RecordApplied(ctx, id))

		applied, err := store.GetApplied(ctx)
		require.NoError(t, err)
		assert.Equal(t, []docshift.ID{id}, applied)
	})
}

func open(t *testing.T, factory HistoryStoreFactory) (docshift.HistoryStore, func()) {
	t.Helper()
	store, done := factory(t)
	if done == nil {
		done = func() {}
	}
	return store, done
}
