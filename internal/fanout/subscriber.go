package fanout

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"alerthub/internal/models"
	"alerthub/internal/store"
)

// Snapshot is one complete, consistently ordered view of the alert set.
// Observers never receive deltas. A non-nil Err marks a recoverable fetch
// failure; the previous snapshot remains valid until a later one arrives.
type Snapshot struct {
	Alerts []models.Alert
	Err    error
}

type watchingStore interface {
	store.AlertStore
	store.Watcher
}

// Subscriber maintains the live view of the alert collection. On every
// store change it re-reads the full set, re-sorts it, and republishes the
// snapshot to all local subscriptions. Slow subscribers skip intermediate
// snapshots but always converge on the latest.
type Subscriber struct {
	alerts          watchingStore
	refreshInterval time.Duration

	mu            sync.RWMutex
	subscriptions map[uint64]chan Snapshot
	nextID        uint64
	latest        Snapshot
	hasLatest     bool

	done chan struct{}
}

func NewSubscriber(alerts watchingStore, refreshInterval time.Duration) *Subscriber {
	return &Subscriber{
		alerts:          alerts,
		refreshInterval: refreshInterval,
		subscriptions:   make(map[uint64]chan Snapshot),
		done:            make(chan struct{}),
	}
}

// Start runs the re-read loop until the context is cancelled. The periodic
// refresh re-establishes a consistent view after a failed fetch even when
// no new append arrives.
func (s *Subscriber) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.refreshInterval)
		defer ticker.Stop()

		// Initial read so the first subscriber sees current state without
		// waiting for an append.
		s.refresh(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.alerts.Changes():
				s.refresh(ctx)
			case <-ticker.C:
				s.refresh(ctx)
			}
		}
	}()
}

// Wait blocks until the run loop has exited after context cancellation.
func (s *Subscriber) Wait() {
	<-s.done
}

func (s *Subscriber) refresh(ctx context.Context) {
	alerts, err := s.alerts.List(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("alert feed refresh failed", "error", err)
		s.publish(Snapshot{Err: err})
		return
	}

	sortAlerts(alerts)
	s.publish(Snapshot{Alerts: alerts})
}

func (s *Subscriber) publish(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A fetch failure is delivered to current subscribers but not replayed
	// to new ones; they trigger their own read on the next refresh.
	if snap.Err == nil {
		s.latest = snap
		s.hasLatest = true
	}

	for _, ch := range s.subscriptions {
		send(ch, snap)
	}
}

// send delivers the snapshot, displacing a stale undelivered one so a slow
// subscriber always finds the newest state.
func send(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// Subscribe registers a new observer. The newest known snapshot, if any, is
// delivered immediately.
func (s *Subscriber) Subscribe() (uint64, <-chan Snapshot) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subscriptions[id] = ch
	if s.hasLatest {
		send(ch, s.latest)
	}
	s.mu.Unlock()

	return id, ch
}

// Unsubscribe tears down one subscription and closes its channel.
func (s *Subscriber) Unsubscribe(id uint64) {
	s.mu.Lock()
	if ch, ok := s.subscriptions[id]; ok {
		close(ch)
		delete(s.subscriptions, id)
	}
	s.mu.Unlock()
}

func (s *Subscriber) SubscriptionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscriptions)
}

// Close tears down all subscriptions.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subscriptions {
		close(ch)
		delete(s.subscriptions, id)
	}
}

// sortAlerts applies the canonical order: CreatedAt descending, ties broken
// by ID so repeated snapshots of the same state are byte-for-byte stable.
func sortAlerts(alerts []models.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
		}
		return alerts[i].ID < alerts[j].ID
	})
}
