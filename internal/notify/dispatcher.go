package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"alerthub/internal/config"
	"alerthub/internal/models"
)

// descriptionLimit caps how much of the alert description is embedded in
// the relay message.
const descriptionLimit = 100

// Dispatcher sends best-effort escalation messages through the external
// relay. It never returns an error: every failure is logged and swallowed
// so a broken relay cannot fail or delay alert submission.
type Dispatcher struct {
	cfg    config.RelayConfig
	client *http.Client
}

func NewDispatcher(cfg config.RelayConfig, client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Dispatcher{cfg: cfg, client: client}
}

// MaybeNotify escalates the alert through the relay when its severity
// crosses the threshold. Dispatches for distinct alerts may run
// concurrently; there is no shared mutable state and no ordering guarantee.
func (d *Dispatcher) MaybeNotify(ctx context.Context, alert models.Alert) {
	if !shouldEscalate(alert.Severity) {
		slog.Debug("notification skipped, severity below threshold",
			"alert_id", alert.ID, "severity", alert.Severity)
		return
	}

	if !d.cfg.Complete() {
		// Degrade gracefully: a misconfigured deployment still accepts
		// alerts, it just never escalates them.
		slog.Warn("relay not fully configured, skipping notification",
			"alert_id", alert.ID, "missing", d.cfg.Missing())
		return
	}

	body := Message(alert)

	form := url.Values{}
	form.Set("To", d.cfg.To)
	form.Set("From", d.cfg.From)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		slog.Error("failed to build relay request", "alert_id", alert.ID, "error", err)
		return
	}
	req.SetBasicAuth(d.cfg.AccountSID, d.cfg.AuthToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		slog.Error("failed to send relay message", "alert_id", alert.ID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("relay rejected message",
			"alert_id", alert.ID, "status", resp.StatusCode, "body", string(detail))
		return
	}

	slog.Info("relay message sent", "alert_id", alert.ID, "severity", alert.Severity)
}

// shouldEscalate is the severity threshold for external notification.
func shouldEscalate(s models.AlertSeverity) bool {
	return s.Rank() >= models.AlertSeverityHigh.Rank()
}

// Message renders the fixed escalation template. The description is capped
// at 100 characters; the trailing ellipsis is part of the template.
func Message(alert models.Alert) string {
	desc := alert.Description
	if r := []rune(desc); len(r) > descriptionLimit {
		desc = string(r[:descriptionLimit])
	}
	return fmt.Sprintf("🚨 New Security Alert: %s\nLocation: %s\nSeverity: %s\nDescription: %s...",
		alert.Title, alert.Location, alert.Severity, desc)
}
