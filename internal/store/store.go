package store

import (
	"context"
	"errors"

	"alerthub/internal/models"
)

// ErrUnavailable wraps every persistence-layer failure so callers can map
// "store down" to a retryable outcome without knowing the backend.
var ErrUnavailable = errors.New("alert store unavailable")

// AlertStore is the append-only adapter over the alert collection. Alerts
// are immutable: there is no update or delete.
type AlertStore interface {
	// Append durably writes one alert. The write is atomic: a failed
	// Append leaves no partially visible alert.
	Append(ctx context.Context, a *models.Alert) error

	// List returns the full alert set in canonical order: CreatedAt
	// descending, ties broken by ID ascending.
	List(ctx context.Context) ([]models.Alert, error)
}

// Watcher is implemented by stores that can signal collection changes.
// The channel carries coalesced notifications: at least one receive is
// guaranteed after any successful Append, not one per Append.
type Watcher interface {
	Changes() <-chan struct{}
}
