package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/drone-gateway/internal/device"
)

const (
	// DefaultHistoryLimit is used when a caller asks for zero entries.
	DefaultHistoryLimit = 50

	// MaxHistoryLimit caps a single history query.
	MaxHistoryLimit = 200

	// timestampLayout is fixed-width so created_at sorts as text.
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrInvalidRetention is returned by Prune for a non-positive duration.
var ErrInvalidRetention = errors.New("telemetry: retention must be positive")

// HistoryEntry is one recorded device operation.
type HistoryEntry struct {
	ID         string         `json:"id"`
	Kind       device.Kind    `json:"device_kind"`
	DeviceID   int            `json:"device_id"`
	Operation  device.Op      `json:"operation"`
	Value      int            `json:"value"`
	State      map[string]any `json:"state"`
	DurationMS int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}

// HistoryRepository persists completed device operations.
type HistoryRepository interface {
	Record(ctx context.Context, ev device.Event) error
	List(ctx context.Context, ref device.Ref, limit int) ([]HistoryEntry, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteHistory implements HistoryRepository on the device_operations table.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory returns a repository backed by db. The schema must have
// been migrated.
func NewSQLiteHistory(db *sql.DB) *SQLiteHistory {
	return &SQLiteHistory{db: db}
}

// Record inserts ev. The device state is stored as JSON.
func (r *SQLiteHistory) Record(ctx context.Context, ev device.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("event id is required")
	}

	state := map[string]any{}
	if ev.Status != nil {
		state = ev.Status.Fields()
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO device_operations
		 (id, device_kind, device_id, operation, value, state, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		string(ev.Ref.Kind),
		ev.Ref.ID,
		string(ev.Op),
		ev.Value,
		string(stateJSON),
		ev.Duration.Milliseconds(),
		at.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting device operation: %w", err)
	}
	return nil
}

// List returns the most recent operations on ref, newest first. limit is
// clamped to [1, MaxHistoryLimit]; zero or less selects DefaultHistoryLimit.
func (r *SQLiteHistory) List(ctx context.Context, ref device.Ref, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_kind, device_id, operation, value, state, duration_ms, created_at
		 FROM device_operations
		 WHERE device_kind = ? AND device_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		string(ref.Kind),
		ref.ID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying device operations: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			entry     HistoryEntry
			kind, op  string
			value     sql.NullInt64
			stateJSON string
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &kind, &entry.DeviceID, &op, &value, &stateJSON, &entry.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning device operation: %w", err)
		}
		entry.Kind = device.Kind(kind)
		entry.Operation = device.Op(op)
		entry.Value = int(value.Int64)

		if err := json.Unmarshal([]byte(stateJSON), &entry.State); err != nil {
			return nil, fmt.Errorf("unmarshalling state: %w", err)
		}

		entry.CreatedAt, err = time.Parse(timestampLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device operations: %w", err)
	}

	return entries, nil
}

// Prune deletes operations older than olderThan and returns how many went.
func (r *SQLiteHistory) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timestampLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM device_operations WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting device operations: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
