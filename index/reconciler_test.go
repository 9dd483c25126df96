package index_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/index"
	"github.com/docshift/docshift/inmem"
	"github.com/docshift/docshift/mock"
	"github.com/docshift/docshift/schema"
)

func idIndex() docshift.IndexDescriptor {
	return docshift.IndexDescriptor{
		Name: "_id_",
		Keys: []docshift.IndexKey{{Path: "_id", Direction: 1}},
	}
}

func usersSchema() *schema.Node {
	return schema.Object(
		schema.F("email", schema.String().Unique()),
		schema.F("name", schema.String()),
	)
}

func TestBuildPlanCreatesMissingIndexes(t *testing.T) {
	plan := index.BuildPlan(
		index.Declarations(usersSchema()),
		[]docshift.IndexDescriptor{idIndex()},
		nil,
	)

	require.Len(t, plan.Creates, 1)
	assert.Empty(t, plan.Drops)
	assert.Equal(t, "email", plan.Creates[0].Name)
	assert.True(t, plan.Creates[0].Unique)
}

func TestBuildPlanConvergedIsEmpty(t *testing.T) {
	live := []docshift.IndexDescriptor{
		idIndex(),
		{
			Name:   "email",
			Keys:   []docshift.IndexKey{{Path: "email", Direction: 1}},
			Unique: true,
		},
	}

	plan := index.BuildPlan(index.Declarations(usersSchema()), live, nil)
	assert.True(t, plan.Empty())
}

func TestBuildPlanNormalizesAbsentOptions(t *testing.T) {
	// live catalog reports an explicit empty collation and scope filter;
	// both normalize to absent and must not trigger recreation
	root := schema.Object(schema.F("name", schema.String().Indexed()))
	live := []docshift.IndexDescriptor{
		{
			Name:        "name",
			Keys:        []docshift.IndexKey{{Path: "name", Direction: 1}},
			Unique:      false,
			Collation:   &schema.Collation{},
			ScopeFilter: map[string]string{},
		},
	}

	plan := index.BuildPlan(index.Declarations(root), live, nil)
	assert.True(t, plan.Empty())
}

func TestBuildPlanRecreatesOnOptionChange(t *testing.T) {
	live := []docshift.IndexDescriptor{
		{
			// same name and keys, but not unique anymore
			Name: "email",
			Keys: []docshift.IndexKey{{Path: "email", Direction: 1}},
		},
	}

	plan := index.BuildPlan(index.Declarations(usersSchema()), live, nil)
	assert.Equal(t, []string{"email"}, plan.Drops)
	require.Len(t, plan.Creates, 1)
	assert.True(t, plan.Creates[0].Unique)
}

func TestBuildPlanRecreatesOnKeySpecChange(t *testing.T) {
	live := []docshift.IndexDescriptor{
		{
			// carries the declared name but covers the wrong field
			Name:   "email",
			Keys:   []docshift.IndexKey{{Path: "name", Direction: 1}},
			Unique: true,
		},
	}

	plan := index.BuildPlan(index.Declarations(usersSchema()), live, nil)
	assert.Equal(t, []string{"email"}, plan.Drops)
	require.Len(t, plan.Creates, 1)
	assert.Equal(t, []docshift.IndexKey{{Path: "email", Direction: 1}}, plan.Creates[0].Keys)
}

func TestBuildPlanMatchesRenamedIndexByKeySpec(t *testing.T) {
	live := []docshift.IndexDescriptor{
		{
			// hand-created before the reconciler existed
			Name:   "users_email_legacy",
			Keys:   []docshift.IndexKey{{Path: "email", Direction: 1}},
			Unique: true,
		},
	}

	root := schema.Object(schema.F("email", schema.String().Unique()))
	plan := index.BuildPlan(index.Declarations(root), live, nil)
	assert.True(t, plan.Empty(), "an equivalent index under another name is left alone")
}

func TestBuildPlanPrunesOrphans(t *testing.T) {
	live := []docshift.IndexDescriptor{
		idIndex(),
		{
			Name: "old_field",
			Keys: []docshift.IndexKey{{Path: "old_field", Direction: 1}},
		},
		{
			// outside the naming convention, never touched
			Name: "ops-manual-idx",
			Keys: []docshift.IndexKey{{Path: "whatever", Direction: 1}},
		},
	}

	plan := index.BuildPlan(nil, live, nil)
	assert.Equal(t, []string{"old_field"}, plan.Drops)
	assert.Empty(t, plan.Creates)
}

func TestBuildPlanSharedScopesDoNotCrossClaim(t *testing.T) {
	types := map[string]*schema.Node{
		"user":    schema.Object(schema.F("name", schema.String().Indexed())),
		"product": schema.Object(schema.F("name", schema.String().Indexed())),
	}
	desired := index.SharedDeclarations(types, docshift.TypeField)

	// only the product-scoped index exists; the user-scoped one must be
	// created, not satisfied by the product one via key-spec fallback
	live := []docshift.IndexDescriptor{
		{
			Name:        "product_name",
			Keys:        []docshift.IndexKey{{Path: "name", Direction: 1}},
			ScopeFilter: map[string]string{docshift.TypeField: "product"},
		},
	}

	plan := index.BuildPlan(desired, live, []string{"user", "product"})
	assert.Empty(t, plan.Drops)
	require.Len(t, plan.Creates, 1)
	assert.Equal(t, "user_name", plan.Creates[0].Name)
	assert.Equal(t, map[string]string{docshift.TypeField: "user"}, plan.Creates[0].ScopeFilter)
}

func TestBuildPlanSharedPrunesOnlyKnownTagPrefixes(t *testing.T) {
	live := []docshift.IndexDescriptor{
		{
			Name:        "user_name",
			Keys:        []docshift.IndexKey{{Path: "name", Direction: 1}},
			ScopeFilter: map[string]string{docshift.TypeField: "user"},
		},
		{
			// belongs to no declared type, but also matches no known
			// prefix, so it survives
			Name: "archived_flag",
			Keys: []docshift.IndexKey{{Path: "flag", Direction: 1}},
		},
	}

	plan := index.BuildPlan(nil, live, []string{"user"})
	assert.Equal(t, []string{"user_name"}, plan.Drops)
	assert.Empty(t, plan.Creates)
}

func TestReconcileConvergesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	driver := inmem.NewDriver()
	require.NoError(t, driver.CreateCollection(ctx, "users", nil))
	coll := driver.Collection("users")

	r := index.NewReconciler(zaptest.NewLogger(t))

	plan, err := r.Reconcile(ctx, coll, usersSchema())
	require.NoError(t, err)
	assert.False(t, plan.Empty())

	plan, err = r.Reconcile(ctx, coll, usersSchema())
	require.NoError(t, err)
	assert.True(t, plan.Empty(), "second pass performs zero mutations")

	indexes, err := coll.ListIndexes(ctx)
	require.NoError(t, err)
	require.Len(t, indexes, 2)
	assert.Equal(t, "_id_", indexes[0].Name)
	assert.Equal(t, "email", indexes[1].Name)
}

func TestReconcileDropsCompleteBeforeCreates(t *testing.T) {
	ctx := context.Background()

	var events []string
	coll := mock.NewCollection("users")
	coll.ListIndexesFn = func(context.Context) ([]docshift.IndexDescriptor, error) {
		return []docshift.IndexDescriptor{
			{Name: "email", Keys: []docshift.IndexKey{{Path: "email", Direction: 1}}},
		}, nil
	}
	coll.DropIndexFn = func(_ context.Context, name string) error {
		events = append(events, "drop "+name)
		return nil
	}
	coll.CreateIndexFn = func(_ context.Context, idx docshift.IndexDescriptor) error {
		events = append(events, "create "+idx.Name)
		return nil
	}

	r := index.NewReconciler(zaptest.NewLogger(t))
	root := schema.Object(schema.F("email", schema.String().Unique()))

	_, err := r.Reconcile(ctx, coll, root)
	require.NoError(t, err)
	assert.Equal(t, []string{"drop email", "create email"}, events)
}

func TestReconcileToleratesConcurrentlyDroppedIndex(t *testing.T) {
	ctx := context.Background()
	driver := inmem.NewDriver()
	require.NoError(t, driver.CreateCollection(ctx, "users", nil))

	coll := mock.NewCollection("users")
	coll.ListIndexesFn = func(context.Context) ([]docshift.IndexDescriptor, error) {
		return []docshift.IndexDescriptor{
			{Name: "stale_field", Keys: []docshift.IndexKey{{Path: "stale_field", Direction: 1}}},
		}, nil
	}
	coll.DropIndexFn = driver.Collection("users").DropIndex

	r := index.NewReconciler(zaptest.NewLogger(t))
	_, err := r.Reconcile(ctx, coll, schema.Object(schema.F("name", schema.String())))
	require.NoError(t, err, "a not-found drop counts as converged")
}
