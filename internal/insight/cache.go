package insight

import (
	"context"
	"log/slog"
	"sync"
)

type State int

const (
	StateAbsent State = iota
	StatePending
	StateResolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	}
	return "absent"
}

// Entry is the insight state for one alert.
type Entry struct {
	State State
	Text  string
	Err   error
}

// Update is pushed on the cache's update channel whenever an entry settles.
type Update struct {
	AlertID string
	Entry   Entry
}

// Cache tracks per-alert insight state for a single viewing session. It is
// never shared across sessions and nothing in it is persisted. At most one
// upstream request per alert is in flight at a time; duplicates issued
// while pending are coalesced.
type Cache struct {
	requestor *Requestor
	updates   chan Update

	mu      sync.Mutex
	entries map[string]Entry
	closed  bool
	wg      sync.WaitGroup
}

func NewCache(requestor *Requestor) *Cache {
	return &Cache{
		requestor: requestor,
		updates:   make(chan Update, 16),
		entries:   make(map[string]Entry),
	}
}

// Get returns the current entry for the alert; absent alerts yield the zero
// entry.
func (c *Cache) Get(alertID string) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[alertID]
}

// Updates delivers settled entries. The channel is closed by Close.
func (c *Cache) Updates() <-chan Update {
	return c.updates
}

// Request transitions the alert to pending and issues one upstream call.
// A request while pending is a no-op. Re-requesting a resolved or failed
// alert is allowed and resets it to pending; if the new attempt fails, a
// previously resolved text is restored rather than discarded.
func (c *Cache) Request(ctx context.Context, alertID, title, description string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	prior := c.entries[alertID]
	if prior.State == StatePending {
		c.mu.Unlock()
		slog.Debug("insight request coalesced", "alert_id", alertID)
		return
	}
	c.entries[alertID] = Entry{State: StatePending}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()

		text, err := c.requestor.Request(ctx, title, description)

		var settled Entry
		if err != nil {
			slog.Warn("insight request failed", "alert_id", alertID, "error", err)
			if prior.State == StateResolved {
				settled = prior
			} else {
				settled = Entry{State: StateFailed, Err: err}
			}
		} else {
			settled = Entry{State: StateResolved, Text: text}
		}

		c.mu.Lock()
		if c.closed {
			// Session ended mid-request; the result is discarded.
			c.mu.Unlock()
			return
		}
		c.entries[alertID] = settled
		c.mu.Unlock()

		select {
		case c.updates <- Update{AlertID: alertID, Entry: settled}:
		default:
			slog.Debug("insight update dropped, consumer not keeping up", "alert_id", alertID)
		}
	}()
}

// Close waits for in-flight requests, discards their results, and closes
// the update channel.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	close(c.updates)
}
