// Package inmem provides in-memory implementations of the docshift driver
// and history store. The driver backs the migration simulator, which
// dry-runs a chain's operations without touching a real database, and
// both back tests.
package inmem

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/kit/errors"
)

type collectionState struct {
	docs      []docshift.Document
	indexes   map[string]docshift.IndexDescriptor
	validator interface{}
	nextID    int64
}

// Driver is an in-memory docshift.Driver. It is safe for concurrent use.
type Driver struct {
	mu          sync.RWMutex
	collections map[string]*collectionState
}

// NewDriver constructs an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		collections: map[string]*collectionState{},
	}
}

// CreateCollection creates the named collection. Creating an existing
// collection is a no-op.
func (d *Driver) CreateCollection(_ context.Context, name string, validator interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.collections[name]; ok {
		return nil
	}
	d.collections[name] = &collectionState{
		indexes: map[string]docshift.IndexDescriptor{
			"_id_": {Name: "_id_", Keys: []docshift.IndexKey{{Path: "_id", Direction: 1}}},
		},
		validator: validator,
	}
	return nil
}

// DropCollection removes the named collection. Dropping an absent
// collection is a no-op.
func (d *Driver) DropCollection(_ context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.collections, name)
	return nil
}

// UpdateValidator replaces the validator on an existing collection.
func (d *Driver) UpdateValidator(_ context.Context, name string, validator interface{}) error {
	if validator == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.collections[name]
	if !ok {
		return &errors.Error{
			Code: errors.ENotFound,
			Msg:  fmt.Sprintf("collection %s does not exist", name),
		}
	}
	state.validator = validator
	return nil
}

// Validator returns the validator currently attached to the named
// collection, or nil.
func (d *Driver) Validator(name string) interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	state, ok := d.collections[name]
	if !ok {
		return nil
	}
	return state.validator
}

// CollectionExists reports whether the named collection exists.
func (d *Driver) CollectionExists(_ context.Context, name string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.collections[name]
	return ok, nil
}

// Collection returns a handle on the named collection. Operations through
// the handle fail with a not-found error if the collection does not exist.
func (d *Driver) Collection(name string) docshift.Collection {
	return &collectionHandle{driver: d, name: name}
}

type collectionHandle struct {
	driver *Driver
	name   string
}

func (c *collectionHandle) Name() string { return c.name }

func (c *collectionHandle) state() (*collectionState, error) {
	state, ok := c.driver.collections[c.name]
	if !ok {
		return nil, &errors.Error{
			Code: errors.ENotFound,
			Msg:  fmt.Sprintf("collection %s does not exist", c.name),
		}
	}
	return state, nil
}

func (c *collectionHandle) Find(_ context.Context, filter docshift.Document) ([]docshift.Document, error) {
	c.driver.mu.RLock()
	defer c.driver.mu.RUnlock()

	state, err := c.state()
	if err != nil {
		return nil, err
	}

	var out []docshift.Document
	for _, doc := range state.docs {
		if matches(doc, filter) {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

func (c *collectionHandle) InsertMany(_ context.Context, docs []docshift.Document) error {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()

	state, err := c.state()
	if err != nil {
		return err
	}

	for _, doc := range docs {
		clone := doc.Clone()
		if _, ok := clone["_id"]; !ok {
			state.nextID++
			clone["_id"] = fmt.Sprintf("%s-%d", c.name, state.nextID)
		}
		state.docs = append(state.docs, clone)
	}
	return nil
}

func (c *collectionHandle) DeleteMany(_ context.Context, filter docshift.Document) (int64, error) {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()

	state, err := c.state()
	if err != nil {
		return 0, err
	}

	var (
		kept    []docshift.Document
		deleted int64
	)
	for _, doc := range state.docs {
		if matches(doc, filter) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	state.docs = kept
	return deleted, nil
}

func (c *collectionHandle) UpdateMany(_ context.Context, filter docshift.Document, fn docshift.TransformFunc) (int64, error) {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()

	state, err := c.state()
	if err != nil {
		return 0, err
	}

	var (
		next    []docshift.Document
		updated int64
	)
	for _, doc := range state.docs {
		if !matches(doc, filter) {
			next = append(next, doc)
			continue
		}

		out, err := fn(doc.Clone())
		if err != nil {
			return updated, fmt.Errorf("transforming document in %s: %w", c.name, err)
		}
		updated++
		if out == nil {
			continue
		}
		// the primary key survives every transform
		out["_id"] = doc["_id"]
		next = append(next, out)
	}
	state.docs = next
	return updated, nil
}

func (c *collectionHandle) ListIndexes(_ context.Context) ([]docshift.IndexDescriptor, error) {
	c.driver.mu.RLock()
	defer c.driver.mu.RUnlock()

	state, err := c.state()
	if err != nil {
		return nil, err
	}

	out := make([]docshift.IndexDescriptor, 0, len(state.indexes))
	for _, idx := range state.indexes {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *collectionHandle) CreateIndex(_ context.Context, idx docshift.IndexDescriptor) error {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()

	state, err := c.state()
	if err != nil {
		return err
	}

	if _, ok := state.indexes[idx.Name]; ok {
		return &errors.Error{
			Code: errors.EConflict,
			Msg:  fmt.Sprintf("index %s already exists on %s", idx.Name, c.name),
		}
	}
	state.indexes[idx.Name] = idx
	return nil
}

func (c *collectionHandle) DropIndex(_ context.Context, name string) error {
	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()

	state, err := c.state()
	if err != nil {
		return err
	}

	if _, ok := state.indexes[name]; !ok {
		return &errors.Error{
			Code: errors.ENotFound,
			Msg:  fmt.Sprintf("index %s not found on %s", name, c.name),
		}
	}
	delete(state.indexes, name)
	return nil
}

// matches implements top-level equality filtering; a nil or empty filter
// matches every document.
func matches(doc, filter docshift.Document) bool {
	for k, v := range filter {
		if !reflect.DeepEqual(doc[k], v) {
			return false
		}
	}
	return true
}
