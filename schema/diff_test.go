package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshift/docshift/schema"
)

func kinds(drifts []schema.Drift) (additive, destructive int) {
	for _, d := range drifts {
		if d.Kind == schema.DriftAdditive {
			additive++
		} else {
			destructive++
		}
	}
	return
}

func TestDiffIdenticalSnapshots(t *testing.T) {
	a := schema.NewSnapshot()
	a.Collections["users"] = userSchema()

	assert.Empty(t, schema.Diff(a, a.Clone()))
}

func TestDiffCollectionAdded(t *testing.T) {
	parent := schema.NewSnapshot()
	child := parent.Clone()
	child.Collections["users"] = userSchema()

	drifts := schema.Diff(parent, child)
	require.Len(t, drifts, 1)
	assert.Equal(t, schema.DriftAdditive, drifts[0].Kind)
	assert.Equal(t, "users", drifts[0].Collection)
}

func TestDiffFieldRemovedIsDestructive(t *testing.T) {
	parent := schema.NewSnapshot()
	parent.Collections["users"] = schema.Object(
		schema.F("email", schema.String()),
		schema.F("nickname", schema.String()),
	)
	child := parent.Clone()
	child.Collections["users"] = schema.Object(
		schema.F("email", schema.String()),
	)

	drifts := schema.Diff(parent, child)
	require.Len(t, drifts, 1)
	assert.Equal(t, schema.DriftDestructive, drifts[0].Kind)
	assert.Equal(t, "nickname", drifts[0].Path)
}

func TestDiffTypeChangedIsDestructive(t *testing.T) {
	parent := schema.NewSnapshot()
	parent.Collections["users"] = schema.Object(schema.F("age", schema.String()))
	child := schema.NewSnapshot()
	child.Collections["users"] = schema.Object(schema.F("age", schema.Int()))

	drifts := schema.Diff(parent, child)
	require.Len(t, drifts, 1)
	assert.Equal(t, schema.DriftDestructive, drifts[0].Kind)
	assert.Contains(t, drifts[0].Msg, "type changed")
}

func TestDiffIndexMetadataHasOwnKind(t *testing.T) {
	parent := schema.NewSnapshot()
	parent.Collections["users"] = schema.Object(schema.F("email", schema.String()))
	child := schema.NewSnapshot()
	child.Collections["users"] = schema.Object(schema.F("email", schema.String().Unique()))

	drifts := schema.Diff(parent, child)
	require.Len(t, drifts, 1)
	assert.Equal(t, schema.DriftIndex, drifts[0].Kind)
	assert.Equal(t, "email", drifts[0].Path)
}

func TestDiffSharedTypes(t *testing.T) {
	parent := schema.NewSnapshot()
	parent.Shared["items"] = map[string]*schema.Node{
		"user":    schema.Object(schema.F("name", schema.String())),
		"product": schema.Object(schema.F("name", schema.String())),
	}
	child := parent.Clone()
	child.Shared["items"]["order"] = schema.Object(schema.F("total", schema.Double()))
	delete(child.Shared["items"], "product")

	drifts := schema.Diff(parent, child)
	additive, destructive := kinds(drifts)
	assert.Equal(t, 1, additive)
	assert.Equal(t, 1, destructive)
}

func TestDiffAgainstNilParentTreatsEverythingAdded(t *testing.T) {
	child := schema.NewSnapshot()
	child.Collections["users"] = userSchema()
	child.Templates["catalog"] = map[string]*schema.Node{
		"book": schema.Object(schema.F("isbn", schema.String().Unique())),
	}

	drifts := schema.Diff(nil, child)
	additive, destructive := kinds(drifts)
	assert.Equal(t, 2, additive)
	assert.Zero(t, destructive)
}
