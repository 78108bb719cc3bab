/*
Package directory resolves property references to locations.

The reallocation planner needs a postal code to ask the travel estimator for
candidates. Properties live outside this service, so lookups go through the
Directory interface: Static serves a fixed table (tests, seed data) and
Cached puts a TTL cache in front of any other implementation.
*/
package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/warp/shift-engine/roster"
)

// Property is the location data the planner needs.
type Property struct {
	ID         roster.PropertyID `json:"id"`
	PostalCode string            `json:"postal_code"`
	Address    string            `json:"address,omitempty"`
}

type Directory interface {
	ResolveProperty(ctx context.Context, id roster.PropertyID) (Property, error)
}

// =============================================================================
// STATIC
// =============================================================================

// Static is an in-memory property table.
type Static struct {
	mu    sync.RWMutex
	props map[roster.PropertyID]Property
}

func NewStatic(props ...Property) *Static {
	s := &Static{props: make(map[roster.PropertyID]Property, len(props))}
	for _, p := range props {
		s.props[p.ID] = p
	}
	return s
}

// Put adds or replaces a property.
func (s *Static) Put(p Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.props[p.ID] = p
}

func (s *Static) ResolveProperty(_ context.Context, id roster.PropertyID) (Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.props[id]
	if !ok {
		return Property{}, &roster.NotFoundError{Kind: "property", ID: string(id)}
	}
	return p, nil
}

// =============================================================================
// CACHED
// =============================================================================

// Cached memoizes successful lookups for ttl. Misses are not cached.
type Cached struct {
	next  Directory
	cache *cache.Cache
}

func NewCached(next Directory, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *Cached) ResolveProperty(ctx context.Context, id roster.PropertyID) (Property, error) {
	if v, ok := c.cache.Get(string(id)); ok {
		return v.(Property), nil
	}
	p, err := c.next.ResolveProperty(ctx, id)
	if err != nil {
		return Property{}, fmt.Errorf("resolve property %s: %w", id, err)
	}
	c.cache.SetDefault(string(id), p)
	return p, nil
}

// Invalidate drops a cached entry, e.g. after the property moved.
func (c *Cached) Invalidate(id roster.PropertyID) { c.cache.Delete(string(id)) }

// Flush drops every cached entry.
func (c *Cached) Flush() { c.cache.Flush() }
