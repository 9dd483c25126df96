package migration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/migration"
)

func passthrough(doc docshift.Document) (docshift.Document, error) {
	return doc, nil
}

func TestBuilderCompilesOperationsInDeclarationOrder(t *testing.T) {
	b := migration.NewBuilder()
	b.CreateCollection("users")
	b.Collection("users").Transform(migration.Transform{Up: passthrough, Down: passthrough})
	b.CreateSharedCollection("items").
		Type("user").Seed(docshift.Document{"name": "ada"}).
		Type("product").
		End()
	b.CreateTemplateInstance("eu_catalog", "catalog")

	ops, err := b.Compile()
	require.NoError(t, err)
	require.Len(t, ops, 5)

	assert.Equal(t, migration.OpCreateCollection, ops[0].Kind)
	assert.Equal(t, "users", ops[0].Collection)

	assert.Equal(t, migration.OpTransformCollection, ops[1].Kind)
	require.NotNil(t, ops[1].Transform)

	assert.Equal(t, migration.OpCreateSharedType, ops[2].Kind)
	assert.Equal(t, "items", ops[2].Collection)
	assert.Equal(t, "user", ops[2].TypeTag)
	require.Len(t, ops[2].Seed, 1)

	assert.Equal(t, migration.OpCreateSharedType, ops[3].Kind)
	assert.Equal(t, "product", ops[3].TypeTag)
	assert.Empty(t, ops[3].Seed)

	assert.Equal(t, migration.OpCreateTemplateInstance, ops[4].Kind)
	assert.Equal(t, "eu_catalog", ops[4].Collection)
	assert.Equal(t, "catalog", ops[4].Template)
}

func TestBuilderMissingUpFunction(t *testing.T) {
	b := migration.NewBuilder()
	b.Collection("users").Transform(migration.Transform{Down: passthrough})

	_, err := b.Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing up function")
}

func TestBuilderEmptyNamesSurfaceAtCompile(t *testing.T) {
	b := migration.NewBuilder()
	b.CreateCollection("")
	b.CreateTemplateInstance("", "catalog")

	_, err := b.Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty collection name")
	assert.Contains(t, err.Error(), "empty instance or template name")
}

func TestBuilderUseAfterCompilePanics(t *testing.T) {
	b := migration.NewBuilder()
	b.CreateCollection("users")

	_, err := b.Compile()
	require.NoError(t, err)

	assert.Panics(t, func() { b.CreateCollection("orders") })
}
