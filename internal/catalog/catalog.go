// Package catalog holds the satellite inventory the planner works from:
// an in-memory, thread-safe registry populated from TLE feeds, with
// change notification for components that cache derived orbit state.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/leo-serving-planner/model"
)

// EventType indicates what kind of change happened in the catalog.
type EventType int

const (
	EventSatelliteUpserted EventType = iota
	EventSatelliteRemoved
)

// Event is emitted to subscribers when the inventory changes.
type Event struct {
	Type      EventType
	Satellite model.Satellite
}

// Catalog is an in-memory, thread-safe store of satellites.
type Catalog struct {
	mu   sync.RWMutex
	sats map[string]model.Satellite

	subs    map[int]func(Event)
	nextSub int
}

// New constructs an empty catalog.
func New() *Catalog {
	return &Catalog{
		sats: make(map[string]model.Satellite),
		subs: make(map[int]func(Event)),
	}
}

// Add inserts a new satellite. It returns an error if the ID already exists.
func (c *Catalog) Add(sat model.Satellite) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.sats[sat.ID]; exists {
		return fmt.Errorf("satellite with ID %q already exists", sat.ID)
	}
	c.sats[sat.ID] = sat
	return nil
}

// Upsert inserts or replaces a satellite and notifies subscribers.
func (c *Catalog) Upsert(sat model.Satellite) {
	c.mu.Lock()
	c.sats[sat.ID] = sat
	subs := c.snapshotSubs()
	c.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	event := Event{Type: EventSatelliteUpserted, Satellite: sat}
	for _, sub := range subs {
		sub(event)
	}
}

// Remove drops a satellite and notifies subscribers. Removing an unknown ID
// is a no-op.
func (c *Catalog) Remove(id string) {
	c.mu.Lock()
	sat, ok := c.sats[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.sats, id)
	subs := c.snapshotSubs()
	c.mu.Unlock()

	event := Event{Type: EventSatelliteRemoved, Satellite: sat}
	for _, sub := range subs {
		sub(event)
	}
}

// Get returns the satellite with the given ID.
func (c *Catalog) Get(id string) (model.Satellite, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sat, ok := c.sats[id]
	return sat, ok
}

// List returns a snapshot of the inventory, ordered by ID so planning
// cycles see a deterministic input.
func (c *Catalog) List() []model.Satellite {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := make([]model.Satellite, 0, len(c.sats))
	for _, sat := range c.sats {
		res = append(res, sat)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Len reports the inventory size.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sats)
}

// Subscribe registers a callback for catalog events. It returns an
// idempotent unsubscribe function; other subscriptions are unaffected.
func (c *Catalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// snapshotSubs copies the subscriber set so notification runs outside the
// lock. Callers hold c.mu.
func (c *Catalog) snapshotSubs() []func(Event) {
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return subs
}
