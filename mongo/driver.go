// Package mongo implements the docshift driver, history store and
// validator compiler on a live MongoDB database.
package mongo

import (
	"context"
	stderrors "errors"
	"sort"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/docshift/docshift"
	kiterrors "github.com/docshift/docshift/kit/errors"
	"github.com/docshift/docshift/schema"
)

// Server error codes the driver recovers from.
const (
	codeNamespaceExists     = 48
	codeIndexNotFound       = 27
	codeIndexOptionConflict = 85
	codeIndexKeySpecsTaken  = 86
)

var _ docshift.Driver = (*Driver)(nil)

// Driver adapts a mongo.Database to the docshift.Driver contract.
type Driver struct {
	db *mongo.Database
}

// NewDriver constructs a driver over the database.
func NewDriver(db *mongo.Database) *Driver {
	return &Driver{db: db}
}

// CreateCollection creates the named collection, attaching the validator
// when one is provided. Creating an existing collection is a no-op.
func (d *Driver) CreateCollection(ctx context.Context, name string, validator interface{}) error {
	opts := options.CreateCollection()
	if validator != nil {
		opts.SetValidator(validator)
	}

	if err := d.db.CreateCollection(ctx, name, opts); err != nil {
		if hasServerCode(err, codeNamespaceExists) {
			return nil
		}
		return errors.Wrapf(err, "creating collection %s", name)
	}
	return nil
}

// DropCollection removes the named collection. Dropping an absent
// collection is a no-op on the server already.
func (d *Driver) DropCollection(ctx context.Context, name string) error {
	if err := d.db.Collection(name).Drop(ctx); err != nil {
		return errors.Wrapf(err, "dropping collection %s", name)
	}
	return nil
}

// UpdateValidator replaces the validator on an existing collection via
// collMod, so the server-enforced rules track the declared schema as
// later migrations change it.
func (d *Driver) UpdateValidator(ctx context.Context, name string, validator interface{}) error {
	if validator == nil {
		return nil
	}

	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := d.db.RunCommand(ctx, cmd).Err(); err != nil {
		return errors.Wrapf(err, "updating validator on %s", name)
	}
	return nil
}

// CollectionExists reports whether the named collection exists.
func (d *Driver) CollectionExists(ctx context.Context, name string) (bool, error) {
	names, err := d.db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, errors.Wrap(err, "listing collections")
	}
	return len(names) > 0, nil
}

// Collection returns a handle on the named collection.
func (d *Driver) Collection(name string) docshift.Collection {
	return &Collection{coll: d.db.Collection(name)}
}

var _ docshift.Collection = (*Collection)(nil)

// Collection adapts a mongo.Collection to the docshift.Collection
// contract.
type Collection struct {
	coll *mongo.Collection
}

func (c *Collection) Name() string { return c.coll.Name() }

func (c *Collection) Find(ctx context.Context, filter docshift.Document) ([]docshift.Document, error) {
	cursor, err := c.coll.Find(ctx, toFilter(filter))
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", c.Name())
	}

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, errors.Wrapf(err, "reading %s cursor", c.Name())
	}

	out := make([]docshift.Document, 0, len(raw))
	for _, doc := range raw {
		out = append(out, docshift.Document(doc))
	}
	return out, nil
}

func (c *Collection) InsertMany(ctx context.Context, docs []docshift.Document) error {
	if len(docs) == 0 {
		return nil
	}
	rows := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, bson.M(doc))
	}
	if _, err := c.coll.InsertMany(ctx, rows); err != nil {
		return errors.Wrapf(err, "inserting into %s", c.Name())
	}
	return nil
}

func (c *Collection) DeleteMany(ctx context.Context, filter docshift.Document) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, toFilter(filter))
	if err != nil {
		return 0, errors.Wrapf(err, "deleting from %s", c.Name())
	}
	return res.DeletedCount, nil
}

// UpdateMany streams matching documents through the transform and writes
// each result back individually; a nil transform result deletes the
// document. Transforms are arbitrary Go functions, so this cannot be
// pushed down as a server-side update.
func (c *Collection) UpdateMany(ctx context.Context, filter docshift.Document, fn docshift.TransformFunc) (int64, error) {
	cursor, err := c.coll.Find(ctx, toFilter(filter))
	if err != nil {
		return 0, errors.Wrapf(err, "querying %s", c.Name())
	}
	defer cursor.Close(ctx)

	var updated int64
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return updated, errors.Wrapf(err, "decoding %s document", c.Name())
		}
		id := doc["_id"]

		out, err := fn(docshift.Document(doc).Clone())
		if err != nil {
			return updated, errors.Wrapf(err, "transforming document in %s", c.Name())
		}
		updated++

		if out == nil {
			if _, err := c.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
				return updated, errors.Wrapf(err, "deleting transformed document from %s", c.Name())
			}
			continue
		}

		out["_id"] = id
		if _, err := c.coll.ReplaceOne(ctx, bson.M{"_id": id}, bson.M(out)); err != nil {
			return updated, errors.Wrapf(err, "replacing document in %s", c.Name())
		}
	}
	if err := cursor.Err(); err != nil {
		return updated, errors.Wrapf(err, "iterating %s", c.Name())
	}
	return updated, nil
}

func (c *Collection) ListIndexes(ctx context.Context) ([]docshift.IndexDescriptor, error) {
	cursor, err := c.coll.Indexes().List(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "listing indexes on %s", c.Name())
	}

	var specs []indexSpec
	if err := cursor.All(ctx, &specs); err != nil {
		return nil, errors.Wrapf(err, "reading %s index cursor", c.Name())
	}

	out := make([]docshift.IndexDescriptor, 0, len(specs))
	for _, spec := range specs {
		desc, err := spec.descriptor()
		if err != nil {
			return nil, errors.Wrapf(err, "parsing index %s on %s", spec.Name, c.Name())
		}
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Collection) CreateIndex(ctx context.Context, idx docshift.IndexDescriptor) error {
	if _, err := c.coll.Indexes().CreateOne(ctx, indexModel(idx)); err != nil {
		if hasServerCode(err, codeIndexOptionConflict) || hasServerCode(err, codeIndexKeySpecsTaken) {
			return &kiterrors.Error{
				Code: kiterrors.EConflict,
				Msg:  "index " + idx.Name + " conflicts with an existing index on " + c.Name(),
				Err:  err,
			}
		}
		return errors.Wrapf(err, "creating index %s on %s", idx.Name, c.Name())
	}
	return nil
}

func (c *Collection) DropIndex(ctx context.Context, name string) error {
	if _, err := c.coll.Indexes().DropOne(ctx, name); err != nil {
		if hasServerCode(err, codeIndexNotFound) {
			return &kiterrors.Error{
				Code: kiterrors.ENotFound,
				Msg:  "index " + name + " not found on " + c.Name(),
				Err:  err,
			}
		}
		return errors.Wrapf(err, "dropping index %s on %s", name, c.Name())
	}
	return nil
}

// toFilter maps a docshift filter to a mongo one; the server rejects nil
// filters.
func toFilter(filter docshift.Document) interface{} {
	if filter == nil {
		return bson.D{}
	}
	return bson.M(filter)
}

func hasServerCode(err error, code int) bool {
	var se mongo.ServerError
	return stderrors.As(err, &se) && se.HasErrorCode(code)
}

// indexSpec is the wire shape of one listIndexes row. The key document
// must keep its field order, so it decodes as bson.D rather than a map.
type indexSpec struct {
	Name                    string        `bson:"name"`
	Key                     bson.D        `bson:"key"`
	Unique                  bool          `bson:"unique"`
	Collation               *collationDoc `bson:"collation"`
	PartialFilterExpression bson.D        `bson:"partialFilterExpression"`
}

type collationDoc struct {
	Locale   string `bson:"locale"`
	Strength int    `bson:"strength"`
}

func (s indexSpec) descriptor() (docshift.IndexDescriptor, error) {
	desc := docshift.IndexDescriptor{
		Name:   s.Name,
		Unique: s.Unique,
	}

	for _, elem := range s.Key {
		dir, err := asDirection(elem.Value)
		if err != nil {
			return desc, err
		}
		desc.Keys = append(desc.Keys, docshift.IndexKey{Path: elem.Key, Direction: dir})
	}

	if s.Collation != nil {
		desc.Collation = (&schema.Collation{
			Locale:   s.Collation.Locale,
			Strength: s.Collation.Strength,
		}).Canonical()
	}

	if len(s.PartialFilterExpression) > 0 {
		scope, err := parseScopeFilter(s.PartialFilterExpression)
		if err != nil {
			return desc, err
		}
		desc.ScopeFilter = scope
	}

	return desc, nil
}

// parseScopeFilter maps a partial filter expression back to the scope
// filter form the reconciler writes: top-level string equality, either
// bare or through $eq.
func parseScopeFilter(expr bson.D) (map[string]string, error) {
	scope := make(map[string]string, len(expr))
	for _, elem := range expr {
		switch v := elem.Value.(type) {
		case string:
			scope[elem.Key] = v
		case bson.D:
			if len(v) == 1 && v[0].Key == "$eq" {
				if s, ok := v[0].Value.(string); ok {
					scope[elem.Key] = s
					continue
				}
			}
			return nil, errors.Errorf("unsupported partial filter expression on %s", elem.Key)
		default:
			return nil, errors.Errorf("unsupported partial filter expression on %s", elem.Key)
		}
	}
	return scope, nil
}

func asDirection(v interface{}) (int32, error) {
	switch n := v.(type) {
	case int:
		return int32(n), nil
	case int32:
		return n, nil
	case int64:
		return int32(n), nil
	case float64:
		return int32(n), nil
	default:
		return 0, errors.Errorf("unsupported index key direction %v", v)
	}
}

// indexModel maps a descriptor to the driver's create form. Scope filter
// keys are written in sorted order so the expression is deterministic.
func indexModel(idx docshift.IndexDescriptor) mongo.IndexModel {
	keys := make(bson.D, 0, len(idx.Keys))
	for _, k := range idx.Keys {
		keys = append(keys, bson.E{Key: k.Path, Value: k.Direction})
	}

	opts := options.Index().SetName(idx.Name)
	if idx.Unique {
		opts.SetUnique(true)
	}
	if coll := idx.Collation.Canonical(); coll != nil {
		opts.SetCollation(&options.Collation{
			Locale:   coll.Locale,
			Strength: coll.Strength,
		})
	}
	if len(idx.ScopeFilter) > 0 {
		fields := make([]string, 0, len(idx.ScopeFilter))
		for k := range idx.ScopeFilter {
			fields = append(fields, k)
		}
		sort.Strings(fields)
		expr := make(bson.D, 0, len(fields))
		for _, k := range fields {
			expr = append(expr, bson.E{Key: k, Value: idx.ScopeFilter[k]})
		}
		opts.SetPartialFilterExpression(expr)
	}

	return mongo.IndexModel{Keys: keys, Options: opts}
}
