package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nmoncrief/meshgate/internal/infrastructure/database"
)

// TelemetryPoint is one sampled metric from one repeater.
type TelemetryPoint struct {
	ID           int64
	RecordedAt   time.Time
	RepeaterID   string
	RepeaterName string
	MetricKey    string
	MetricValue  float64
}

// TelemetryQuery selects telemetry history for one repeater.
type TelemetryQuery struct {
	RepeaterID string
	MetricKey  string // empty selects all metrics
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

// TelemetryStore persists and queries sampled repeater telemetry.
type TelemetryStore interface {
	InsertPoints(ctx context.Context, points []TelemetryPoint) error
	ListPoints(ctx context.Context, q TelemetryQuery) ([]TelemetryPoint, error)
}

// SQLiteTelemetryStore implements TelemetryStore on the shared handle.
type SQLiteTelemetryStore struct {
	db *database.DB
}

// NewTelemetryStore creates a telemetry repository.
func NewTelemetryStore(db *database.DB) *SQLiteTelemetryStore {
	return &SQLiteTelemetryStore{db: db}
}

// InsertPoints writes a polling cycle's samples in one transaction.
func (s *SQLiteTelemetryStore) InsertPoints(ctx context.Context, points []TelemetryPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO repeater_telemetry (recorded_at, repeater_id, repeater_name, metric_key, metric_value)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing telemetry insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Statement closes with the tx

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx,
			p.RecordedAt.UTC().Format(time.RFC3339Nano),
			p.RepeaterID,
			p.RepeaterName,
			p.MetricKey,
			p.MetricValue,
		); err != nil {
			return fmt.Errorf("inserting telemetry point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing telemetry batch: %w", err)
	}
	return nil
}

// ListPoints returns telemetry samples oldest first.
func (s *SQLiteTelemetryStore) ListPoints(ctx context.Context, q TelemetryQuery) ([]TelemetryPoint, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, recorded_at, repeater_id, repeater_name, metric_key, metric_value
		FROM repeater_telemetry
		WHERE repeater_id = ?`)
	args := []any{q.RepeaterID}

	if q.MetricKey != "" {
		sb.WriteString(" AND metric_key = ?")
		args = append(args, q.MetricKey)
	}
	if q.Since != nil {
		sb.WriteString(" AND recorded_at > ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339Nano))
	}
	if q.Until != nil {
		sb.WriteString(" AND recorded_at <= ?")
		args = append(args, q.Until.UTC().Format(time.RFC3339Nano))
	}

	sb.WriteString(" ORDER BY recorded_at ASC, id ASC")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying telemetry: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows close

	var points []TelemetryPoint
	for rows.Next() {
		var p TelemetryPoint
		var recordedAt string
		if err := rows.Scan(&p.ID, &recordedAt, &p.RepeaterID, &p.RepeaterName, &p.MetricKey, &p.MetricValue); err != nil {
			return nil, fmt.Errorf("scanning telemetry point: %w", err)
		}
		p.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing telemetry timestamp: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
