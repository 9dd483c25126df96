package migration_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/migration"
	"github.com/docshift/docshift/schema"
)

const (
	idCreateUsers = docshift.ID("2024_01_01_0900_AAAAAA@create-users")
	idAddOrders   = docshift.ID("2024_02_01_0900_BBBBBB@add-orders")
	idUserStatus  = docshift.ID("2024_03_01_0900_CCCCCC@user-status")
)

func usersV1() *schema.Node {
	return schema.Object(
		schema.F("email", schema.String().Unique()),
		schema.F("name", schema.String()),
	)
}

func usersV2() *schema.Node {
	return schema.Object(
		schema.F("email", schema.String().Unique()),
		schema.F("name", schema.String()),
		schema.F("status", schema.String()),
	)
}

func ordersV1() *schema.Node {
	return schema.Object(
		schema.F("sku", schema.String().Indexed()),
		schema.F("total", schema.Double()),
	)
}

func snapUsers() *schema.Snapshot {
	s := schema.NewSnapshot()
	s.Collections["users"] = usersV1()
	return s
}

func snapUsersOrders() *schema.Snapshot {
	s := snapUsers()
	s.Collections["orders"] = ordersV1()
	return s
}

func snapUserStatus() *schema.Snapshot {
	s := snapUsersOrders()
	s.Collections["users"] = usersV2()
	return s
}

/// testUnits returns a fresh three-unit fixture: create users, add orders,
// then a reversible transform adding a status field to users.
func testUnits() []*migration.Unit {
	return []*migration.Unit{
		{
			ID:       idCreateUsers,
			Snapshot: snapUsers(),
			Migrate: func(b *migration.Builder) {
				b.CreateCollection("users")
			},
		},
		{
			ID:       idAddOrders,
			ParentID: idCreateUsers,
			Snapshot: snapUsersOrders(),
			Migrate: func(b *migration.Builder) {
				b.CreateCollection("orders")
			},
		},
		{
			ID:       idUserStatus,
			ParentID: idAddOrders,
			Snapshot: snapUserStatus(),
			Migrate: func(b *migration.Builder) {
				b.Collection("users").Transform(migration.Transform{
					Up: func(doc docshift.Document) (docshift.Document, error) {
						doc["status"] = "active"
						return doc, nil
					},
					Down: func(doc docshift.Document) (docshift.Document, error) {
						delete(doc, "status")
						return doc, nil
					},
				})
			},
		},
	}
}

func mustChain(t *testing.T, units []*migration.Unit) *migration.Chain {
	t.Helper()
	chain, err := migration.BuildChain(units)
	require.NoError(t, err)
	return chain
}

func noopMigrate(*migration.Builder) {}
