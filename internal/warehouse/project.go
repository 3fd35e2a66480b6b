package warehouse

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/lakerun/internal/failure"
)

// ProjectStateKey is the state key holding the cached project id.
const ProjectStateKey = "project_id"

// StateStore persists small key/value workspace state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool, error)
	SetState(ctx context.Context, key, value string) error
	DeleteState(ctx context.Context, key string) error
}

// ProjectResolver finds a project id when none is cached.
type ProjectResolver func(ctx context.Context) (string, error)

// ProjectCache holds the warehouse project id for the process, backed by
// a StateStore so it survives between invocations.
//
// Lookup order: memory, store, resolver. A resolved id is written back.
type ProjectCache struct {
	mu      sync.Mutex
	id      string
	store   StateStore
	resolve ProjectResolver
}

// NewProjectCache creates a cache. store and resolve may be nil.
func NewProjectCache(store StateStore, resolve ProjectResolver) *ProjectCache {
	return &ProjectCache{store: store, resolve: resolve}
}

// Get returns the project id, resolving it on a miss.
func (c *ProjectCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.id != "" {
		return c.id, nil
	}

	if c.store != nil {
		id, ok, err := c.store.GetState(ctx, ProjectStateKey)
		if err != nil {
			return "", fmt.Errorf("reading project id: %w", err)
		}
		if ok && id != "" {
			c.id = id
			return id, nil
		}
	}

	if c.resolve != nil {
		id, err := c.resolve(ctx)
		if err != nil {
			return "", fmt.Errorf("resolving project id: %w", err)
		}
		if id != "" {
			c.id = id
			if c.store != nil {
				if err := c.store.SetState(ctx, ProjectStateKey, id); err != nil {
					return "", fmt.Errorf("saving project id: %w", err)
				}
			}
			return id, nil
		}
	}

	return "", failure.New(failure.NotFound, "resolve project",
		"no warehouse project configured; use 'lakerun project set <id>' or --project")
}

// Peek returns the cached id without resolving.
func (c *ProjectCache) Peek(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.id != "" || c.store == nil {
		return c.id, nil
	}
	id, _, err := c.store.GetState(ctx, ProjectStateKey)
	return id, err
}

// Set stores id in memory and in the store.
func (c *ProjectCache) Set(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.id = id
	if c.store == nil {
		return nil
	}
	return c.store.SetState(ctx, ProjectStateKey, id)
}

// Invalidate forgets the project id so the next Get resolves it again.
func (c *ProjectCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.id = ""
	if c.store == nil {
		return nil
	}
	return c.store.DeleteState(ctx, ProjectStateKey)
}
