package migration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/kit/errors"
	"github.com/docshift/docshift/migration"
	"github.com/docshift/docshift/schema"
)

func TestValidateCleanChain(t *testing.T) {
	v := migration.NewValidator(zaptest.NewLogger(t))
	result := v.Validate(context.Background(), mustChain(t, testUnits()))

	assert.True(t, result.OK())
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.NoError(t, result.Err())
}

func TestValidateCreateOpWithoutDeclaration(t *testing.T) {
	chain := mustChain(t, []*migration.Unit{{
		ID:       idCreateUsers,
		Snapshot: schema.NewSnapshot(),
		Migrate: func(b *migration.Builder) {
			b.CreateCollection("users")
		},
	}})

	result := migration.NewValidator(zaptest.NewLogger(t)).Validate(context.Background(), chain)
	require.False(t, result.OK())
	assert.Equal(t, errors.EInvalid, result.Errors[0].Code)
	assert.Contains(t, result.Errors[0].Msg, "not declared")
}

func TestValidateDeclarationWithoutCreateOp(t *testing.T) {
	chain := mustChain(t, []*migration.Unit{{
		ID:       idCreateUsers,
		Snapshot: snapUsers(),
		Migrate:  noopMigrate,
	}})

	result := migration.NewValidator(zaptest.NewLogger(t)).Validate(context.Background(), chain)
	require.False(t, result.OK())
	assert.Equal(t, errors.ESchemaDrift, result.Errors[0].Code)
	assert.Contains(t, result.Errors[0].Msg, "never created")
}

func TestValidateDestructiveDriftNeedsTransform(t *testing.T) {
	shrunk := schema.NewSnapshot()
	shrunk.Collections["users"] = schema.Object(
		schema.F("email", schema.String().Unique()),
	)

	units := func(migrate func(b *migration.Builder)) []*migration.Unit {
		return []*migration.Unit{
			testUnits()[0],
			{
				ID:       idAddOrders,
				ParentID: idCreateUsers,
				Snapshot: shrunk,
				Migrate:  migrate,
			},
		}
	}

	t.Run("unaccounted", func(t *testing.T) {
		result := migration.NewValidator(zaptest.NewLogger(t)).
			Validate(context.Background(), mustChain(t, units(noopMigrate)))
		require.False(t, result.OK())
		assert.Equal(t, errors.ESchemaDrift, result.Errors[0].Code)
		assert.Contains(t, result.Errors[0].Msg, "destructive drift")
		assert.Equal(t, idAddOrders, result.Errors[0].MigrationID)
	})

	t.Run("covered by transform", func(t *testing.T) {
		dropName := func(b *migration.Builder) {
			b.Collection("users").Transform(migration.Transform{
				Up: func(doc docshift.Document) (docshift.Document, error) {
					delete(doc, "name")
					return doc, nil
				},
				Lossy: true,
			})
		}
		result := migration.NewValidator(zaptest.NewLogger(t)).
			Validate(context.Background(), mustChain(t, units(dropName)))
		assert.True(t, result.OK(), "findings: %v", result.Errors)
	})
}

func TestValidateAdditiveDriftStrictness(t *testing.T) {
	grown := snapUsers()
	grown.Collections["users"] = schema.Object(
		schema.F("email", schema.String().Unique()),
		schema.F("name", schema.String()),
		schema.F("nickname", schema.String()),
	)

	units := []*migration.Unit{
		testUnits()[0],
		{
			ID:       idAddOrders,
			ParentID: idCreateUsers,
			Snapshot: grown,
			Migrate:  noopMigrate,
		},
	}

	t.Run("warns by default", func(t *testing.T) {
		result := migration.NewValidator(zaptest.NewLogger(t)).
			Validate(context.Background(), mustChain(t, units))
		assert.True(t, result.OK())
		require.Len(t, result.Warnings, 1)
		assert.Equal(t, errors.ESchemaDrift, result.Warnings[0].Code)
		assert.Contains(t, result.Warnings[0].Msg, "additive drift")
	})

	t.Run("errors under strict mode", func(t *testing.T) {
		result := migration.NewValidator(zaptest.NewLogger(t),
			migration.WithStrictness(migration.StrictnessError)).
			Validate(context.Background(), mustChain(t, units))
		require.False(t, result.OK())
		assert.Equal(t, errors.ESchemaDrift, result.Errors[0].Code)
	})
}

func TestValidateDownCoverage(t *testing.T) {
	withTransform := func(tr migration.Transform) func(b *migration.Builder) {
		return func(b *migration.Builder) {
			b.Collection("users").Transform(tr)
		}
	}
	up := passthrough

	build := func(second, third migration.Transform) []*migration.Unit {
		return []*migration.Unit{
			testUnits()[0],
			{
				ID:       idAddOrders,
				ParentID: idCreateUsers,
				Snapshot: snapUsers(),
				Migrate:  withTransform(second),
			},
			{
				ID:       idUserStatus,
				ParentID: idAddOrders,
				Snapshot: snapUsers(),
				Migrate:  withTransform(third),
			},
		}
	}

	reversible := migration.Transform{Up: up, Down: passthrough}

	t.Run("non-head transform must be reversible", func(t *testing.T) {
		units := build(migration.Transform{Up: up, Lossy: true}, reversible)
		result := migration.NewValidator(zaptest.NewLogger(t)).
			Validate(context.Background(), mustChain(t, units))
		require.False(t, result.OK())
		assert.Equal(t, errors.EIrreversible, result.Errors[0].Code)
		assert.Equal(t, idAddOrders, result.Errors[0].MigrationID)
	})

	t.Run("head without down must be flagged lossy", func(t *testing.T) {
		units := build(reversible, migration.Transform{Up: up})
		result := migration.NewValidator(zaptest.NewLogger(t)).
			Validate(context.Background(), mustChain(t, units))
		require.False(t, result.OK())
		assert.Equal(t, errors.EIrreversible, result.Errors[0].Code)
		assert.Contains(t, result.Errors[0].Msg, "lossy")
	})

	t.Run("lossy head is permitted", func(t *testing.T) {
		units := build(reversible, migration.Transform{Up: up, Lossy: true})
		result := migration.NewValidator(zaptest.NewLogger(t)).
			Validate(context.Background(), mustChain(t, units))
		assert.True(t, result.OK(), "findings: %v", result.Errors)
	})
}

func TestValidateSimulationCatchesMissingCollection(t *testing.T) {
	units := []*migration.Unit{
		testUnits()[0],
		{
			ID:       idAddOrders,
			ParentID: idCreateUsers,
			Snapshot: snapUsers(),
			Migrate: func(b *migration.Builder) {
				// orders is never created anywhere in the chain
				b.Collection("orders").Transform(migration.Transform{
					Up:   passthrough,
					Down: passthrough,
				})
			},
		},
	}

	result := migration.NewValidator(zaptest.NewLogger(t)).
		Validate(context.Background(), mustChain(t, units))
	require.False(t, result.OK())
	assert.Equal(t, errors.ESimulation, result.Errors[0].Code)
	assert.Equal(t, idAddOrders, result.Errors[0].MigrationID)
	assert.Contains(t, result.Errors[0].Msg, "simulation failed")
}

func TestResultErrCarriesFindingCodes(t *testing.T) {
	chain := mustChain(t, []*migration.Unit{{
		ID:       idCreateUsers,
		Snapshot: snapUsers(),
		Migrate:  noopMigrate,
	}})

	result := migration.NewValidator(zaptest.NewLogger(t)).Validate(context.Background(), chain)
	err := result.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(idCreateUsers))
}
