package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/docshift/docshift/schema"
)

func TestCompileCollection(t *testing.T) {
	root := schema.Object(
		schema.F("email", schema.String().Unique()),
		schema.F("age", schema.Int()),
		schema.F("nickname", schema.Optional(schema.String())),
		schema.F("tags", schema.Array(schema.String())),
	)

	v, err := NewCompiler().CompileCollection(root)
	require.NoError(t, err)

	doc, ok := v.(bson.M)
	require.True(t, ok)
	body, ok := doc["$jsonSchema"].(bson.M)
	require.True(t, ok)

	assert.Equal(t, "object", body["bsonType"])
	assert.ElementsMatch(t, bson.A{"email", "age", "tags"}, body["required"])

	props := body["properties"].(bson.M)
	assert.Equal(t, bson.M{"bsonType": "string"}, props["email"])
	assert.Equal(t, bson.M{"bsonType": bson.A{"int", "long"}}, props["age"])
	assert.Equal(t, bson.M{"bsonType": "string"}, props["nickname"])
	assert.Equal(t, bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string"}}, props["tags"])
}

func TestCompileSharedDiscriminatesByTypeField(t *testing.T) {
	types := map[string]*schema.Node{
		"user":    schema.Object(schema.F("name", schema.String())),
		"product": schema.Object(schema.F("sku", schema.String())),
	}

	v, err := NewCompiler().CompileShared(types, "_type")
	require.NoError(t, err)

	body := v.(bson.M)["$jsonSchema"].(bson.M)
	anyOf, ok := body["anyOf"].([]bson.M)
	require.True(t, ok)
	require.Len(t, anyOf, 2)

	// tags compile in sorted order
	product := anyOf[0]
	props := product["properties"].(bson.M)
	assert.Equal(t, bson.M{"enum": bson.A{"product"}}, props["_type"])
	assert.Contains(t, product["required"], "_type")
	assert.Contains(t, product["required"], "sku")

	user := anyOf[1]
	assert.Contains(t, user["properties"].(bson.M), "name")
}

func TestCompileUnionAndTime(t *testing.T) {
	root := schema.Object(
		schema.F("ref", schema.Union(schema.String(), schema.ObjectID())),
		schema.F("created_at", schema.Time()),
	)

	v, err := NewCompiler().CompileCollection(root)
	require.NoError(t, err)

	props := v.(bson.M)["$jsonSchema"].(bson.M)["properties"].(bson.M)
	ref := props["ref"].(bson.M)
	require.Len(t, ref["anyOf"], 2)
	assert.Equal(t, bson.M{"bsonType": "date"}, props["created_at"])
}
