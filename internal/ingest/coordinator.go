package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"alerthub/internal/models"
	"alerthub/internal/store"
	"alerthub/internal/worker"
)

// ErrValidation marks a rejected submission. Validation happens before any
// I/O, so a wrapped ErrValidation guarantees nothing was written.
var ErrValidation = errors.New("invalid alert submission")

// Notifier is the escalation hook fired after a durable write. Its outcome
// never influences the submission result.
type Notifier interface {
	MaybeNotify(ctx context.Context, alert models.Alert)
}

// Coordinator validates submissions, persists them, and hands successfully
// stored alerts to the notifier off the caller's critical path.
type Coordinator struct {
	alerts   store.AlertStore
	notifier Notifier
	pool     *worker.Pool
	now      func() time.Time
}

func NewCoordinator(alerts store.AlertStore, notifier Notifier, workers, bufferSize int) *Coordinator {
	c := &Coordinator{
		alerts:   alerts,
		notifier: notifier,
		now:      time.Now,
	}
	c.pool = worker.NewPool(workers, bufferSize, func(ctx context.Context, job worker.Job) {
		c.notifier.MaybeNotify(ctx, job.(models.Alert))
	})
	return c
}

// Start launches the dispatch workers. The context bounds dispatch work,
// not individual submissions.
func (c *Coordinator) Start(ctx context.Context) {
	c.pool.Start(ctx)
}

// Stop drains queued dispatches and waits for in-flight ones.
func (c *Coordinator) Stop() {
	c.pool.Stop()
}

// Submit validates the input, persists exactly one alert with a
// server-assigned ID and timestamp, and queues the notification dispatch.
// It returns once the write is durable, regardless of dispatch outcome.
func (c *Coordinator) Submit(ctx context.Context, input models.AlertInput) (string, error) {
	alert, err := c.validate(input)
	if err != nil {
		return "", err
	}

	alert.ID = uuid.NewString()
	alert.CreatedAt = c.now().UTC()

	if err := c.alerts.Append(ctx, &alert); err != nil {
		return "", fmt.Errorf("persisting alert: %w", err)
	}

	slog.Info("alert submitted",
		"alert_id", alert.ID, "type", alert.Type, "severity", alert.Severity, "reporter", alert.ReporterID)

	// Best-effort: a full dispatch queue drops the escalation rather than
	// delaying or failing the submission.
	if !c.pool.TrySubmit(alert) {
		slog.Warn("dispatch queue full, dropping notification", "alert_id", alert.ID)
	}

	return alert.ID, nil
}

func (c *Coordinator) validate(input models.AlertInput) (models.Alert, error) {
	required := []struct {
		field string
		value string
	}{
		{"title", input.Title},
		{"description", input.Description},
		{"location", input.Location},
		{"type", input.Type},
		{"severity", input.Severity},
		{"reporterId", input.ReporterID},
	}
	for _, r := range required {
		if r.value == "" {
			return models.Alert{}, fmt.Errorf("%w: missing field %s", ErrValidation, r.field)
		}
	}

	typ := models.AlertType(input.Type)
	if !typ.Valid() {
		return models.Alert{}, fmt.Errorf("%w: unknown type %q", ErrValidation, input.Type)
	}
	sev := models.AlertSeverity(input.Severity)
	if !sev.Valid() {
		return models.Alert{}, fmt.Errorf("%w: unknown severity %q", ErrValidation, input.Severity)
	}

	return models.Alert{
		Title:       input.Title,
		Description: input.Description,
		Location:    input.Location,
		Type:        typ,
		Severity:    sev,
		ReporterID:  input.ReporterID,
	}, nil
}
