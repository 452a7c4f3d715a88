package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"alerthub/internal/models"
)

// SQLite persists alerts in a single table scoped by namespace, so several
// deployments can share one database file without mixing feeds.
type SQLite struct {
	db        *sql.DB
	namespace string
	changes   chan struct{}
}

func NewSQLite(path, namespace string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrUnavailable, err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: pinging database: %v", ErrUnavailable, err)
	}

	s := &SQLite{
		db:        db,
		namespace: namespace,
		changes:   make(chan struct{}, 1),
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("%w: migrating database: %v", ErrUnavailable, err)
	}

	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			location TEXT NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			reporter_id TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_namespace_created_at ON alerts(namespace, created_at);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Append(ctx context.Context, a *models.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, namespace, title, description, location, type, severity, reporter_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, s.namespace, a.Title, a.Description, a.Location,
		string(a.Type), string(a.Severity), a.ReporterID, a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: inserting alert %s: %v", ErrUnavailable, a.ID, err)
	}

	s.signal()
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, location, type, severity, reporter_id, created_at
		FROM alerts
		WHERE namespace = ?
		ORDER BY created_at DESC, id ASC`,
		s.namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: listing alerts: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		var typ, sev string
		if err := rows.Scan(&a.ID, &a.Title, &a.Description, &a.Location, &typ, &sev, &a.ReporterID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning alert row: %v", ErrUnavailable, err)
		}
		a.Type = models.AlertType(typ)
		a.Severity = models.AlertSeverity(sev)
		a.CreatedAt = a.CreatedAt.UTC()
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading alert rows: %v", ErrUnavailable, err)
	}

	return alerts, nil
}

// Changes yields a coalesced signal after each successful Append.
func (s *SQLite) Changes() <-chan struct{} {
	return s.changes
}

func (s *SQLite) signal() {
	select {
	case s.changes <- struct{}{}:
	default:
		// A notification is already pending; the next List picks up
		// every append since the last one.
	}
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
