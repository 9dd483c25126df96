package mock

import (
	"context"
	"sync"

	"github.com/docshift/docshift"
)

var _ docshift.Collection = (*Collection)(nil)

// Collection is a mockable docshift.Collection. It counts index mutation
// calls so convergence tests can assert on the exact number of database
// operations performed.
type Collection struct {
	NameFn        func() string
	FindFn        func(ctx context.Context, filter docshift.Document) ([]docshift.Document, error)
	InsertManyFn  func(ctx context.Context, docs []docshift.Document) error
	DeleteManyFn  func(ctx context.Context, filter docshift.Document) (int64, error)
	UpdateManyFn  func(ctx context.Context, filter docshift.Document, fn docshift.TransformFunc) (int64, error)
	ListIndexesFn func(ctx context.Context) ([]docshift.IndexDescriptor, error)
	CreateIndexFn func(ctx context.Context, idx docshift.IndexDescriptor) error
	DropIndexFn   func(ctx context.Context, name string) error

	mu               sync.Mutex
	createIndexCalls []docshift.IndexDescriptor
	dropIndexCalls   []string
}

// NewCollection returns a mock with no-op behavior: an empty collection
// with no live indexes.
func NewCollection(name string) *Collection {
	return &Collection{
		NameFn: func() string { return name },
		FindFn: func(context.Context, docshift.Document) ([]docshift.Document, error) {
			return nil, nil
		},
		InsertManyFn: func(context.Context, []docshift.Document) error {
			return nil
		},
		DeleteManyFn: func(context.Context, docshift.Document) (int64, error) {
			return 0, nil
		},
		UpdateManyFn: func(context.Context, docshift.Document, docshift.TransformFunc) (int64, error) {
			return 0, nil
		},
		ListIndexesFn: func(context.Context) ([]docshift.IndexDescriptor, error) {
			return nil, nil
		},
		CreateIndexFn: func(context.Context, docshift.IndexDescriptor) error {
			return nil
		},
		DropIndexFn: func(context.Context, string) error {
			return nil
		},
	}
}

func (c *Collection) Name() string { return c.NameFn() }

func (c *Collection) Find(ctx context.Context, filter docshift.Document) ([]docshift.Document, error) {
	return c.FindFn(ctx, filter)
}

func (c *Collection) InsertMany(ctx context.Context, docs []docshift.Document) error {
	return c.InsertManyFn(ctx, docs)
}

func (c *Collection) DeleteMany(ctx context.Context, filter docshift.Document) (int64, error) {
	return c.DeleteManyFn(ctx, filter)
}

func (c *Collection) UpdateMany(ctx context.Context, filter docshift.Document, fn docshift.TransformFunc) (int64, error) {
	return c.UpdateManyFn(ctx, filter, fn)
}

func (c *Collection) ListIndexes(ctx context.Context) ([]docshift.IndexDescriptor, error) {
	return c.ListIndexesFn(ctx)
}

func (c *Collection) CreateIndex(ctx context.Context, idx docshift.IndexDescriptor) error {
	c.mu.Lock()
	c.createIndexCalls = append(c.createIndexCalls, idx)
	c.mu.Unlock()
	return c.CreateIndexFn(ctx, idx)
}

func (c *Collection) DropIndex(ctx context.Context, name string) error {
	c.mu.Lock()
	c.dropIndexCalls = append(c.dropIndexCalls, name)
	c.mu.Unlock()
	return c.DropIndexFn(ctx, name)
}

// CreateIndexCalls returns every descriptor passed to CreateIndex.
func (c *Collection) CreateIndexCalls() []docshift.IndexDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]docshift.IndexDescriptor, len(c.createIndexCalls))
	copy(out, c.createIndexCalls)
	return out
}

// DropIndexCalls returns every name passed to DropIndex.
func (c *Collection) DropIndexCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.dropIndexCalls))
	copy(out, c.dropIndexCalls)
	return out
}
