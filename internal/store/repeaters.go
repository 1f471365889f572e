package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nmoncrief/meshgate/internal/infrastructure/database"
)

// Repeater is the latest version of one monitored repeater.
type Repeater struct {
	ID        string
	Name      string
	PublicKey string
	Password  string
	Enabled   bool
	CreatedAt time.Time
}

// RepeaterStore manages the monitored-repeater registry.
type RepeaterStore interface {
	List(ctx context.Context) ([]Repeater, error)
	ListEnabled(ctx context.Context) ([]Repeater, error)
	Get(ctx context.Context, id string) (*Repeater, error)
	Create(ctx context.Context, name, publicKey, password string) (*Repeater, error)
	Update(ctx context.Context, id string, name, publicKey, password *string) (*Repeater, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (*Repeater, error)
	Delete(ctx context.Context, id string) error
}

// SQLiteRepeaterStore implements RepeaterStore with append-only version
// rows: mutations insert, reads resolve the highest version per id.
type SQLiteRepeaterStore struct {
	db *database.DB
}

// NewRepeaterStore creates a repeater repository.
func NewRepeaterStore(db *database.DB) *SQLiteRepeaterStore {
	return &SQLiteRepeaterStore{db: db}
}

// latestRepeaters selects the highest-version row per repeater id.
const latestRepeaters = `
	SELECT r.id, r.name, r.public_key, r.password, r.enabled, r.created_at
	FROM repeaters r
	WHERE r.version = (SELECT MAX(version) FROM repeaters WHERE id = r.id)`

// List returns the latest version of every repeater, newest first.
func (s *SQLiteRepeaterStore) List(ctx context.Context) ([]Repeater, error) {
	return s.list(ctx, latestRepeaters+" ORDER BY r.created_at DESC, r.id DESC")
}

// ListEnabled returns the latest version of every enabled repeater.
func (s *SQLiteRepeaterStore) ListEnabled(ctx context.Context) ([]Repeater, error) {
	return s.list(ctx, latestRepeaters+" AND r.enabled = 1 ORDER BY r.created_at ASC")
}

func (s *SQLiteRepeaterStore) list(ctx context.Context, query string) ([]Repeater, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying repeaters: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows close

	var reps []Repeater
	for rows.Next() {
		r, err := scanRepeater(rows)
		if err != nil {
			return nil, err
		}
		reps = append(reps, r)
	}
	return reps, rows.Err()
}

// Get returns the latest version of one repeater.
func (s *SQLiteRepeaterStore) Get(ctx context.Context, id string) (*Repeater, error) {
	row := s.db.QueryRowContext(ctx, latestRepeaters+" AND r.id = ?", id)
	r, err := scanRepeater(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRepeaterNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Create registers a new repeater. The public key must not already be
// monitored; the check and the insert are not atomic under concurrent
// writers, which the single-connection SQLite handle makes moot.
func (s *SQLiteRepeaterStore) Create(ctx context.Context, name, publicKey, password string) (*Repeater, error) {
	publicKey = strings.ToLower(strings.TrimSpace(publicKey))

	taken, err := s.publicKeyTaken(ctx, publicKey, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: %.12s", ErrDuplicatePublicKey, publicKey)
	}

	r := Repeater{
		ID:        uuid.New().String(),
		Name:      name,
		PublicKey: publicKey,
		Password:  password,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.insertVersion(ctx, r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Update writes a new version with the given fields changed. Nil fields
// keep their current value.
func (s *SQLiteRepeaterStore) Update(ctx context.Context, id string, name, publicKey, password *string) (*Repeater, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if name != nil {
		next.Name = *name
	}
	if publicKey != nil {
		key := strings.ToLower(strings.TrimSpace(*publicKey))
		if key != current.PublicKey {
			taken, err := s.publicKeyTaken(ctx, key, id)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, fmt.Errorf("%w: %.12s", ErrDuplicatePublicKey, key)
			}
		}
		next.PublicKey = key
	}
	if password != nil {
		next.Password = *password
	}

	if err := s.insertVersion(ctx, next); err != nil {
		return nil, err
	}
	return &next, nil
}

// SetEnabled writes a new version with the enabled flag changed.
func (s *SQLiteRepeaterStore) SetEnabled(ctx context.Context, id string, enabled bool) (*Repeater, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	next.Enabled = enabled
	if err := s.insertVersion(ctx, next); err != nil {
		return nil, err
	}
	return &next, nil
}

// Delete removes every version of the repeater. This is the one place the
// registry is not append-only: deleting a repeater also forgets its stored
// admin password.
func (s *SQLiteRepeaterStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM repeaters WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting repeater: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deleted rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRepeaterNotFound, id)
	}
	return nil
}

// publicKeyTaken reports whether the latest version of any repeater other
// than excludeID monitors the given key.
func (s *SQLiteRepeaterStore) publicKeyTaken(ctx context.Context, publicKey, excludeID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM repeaters r
		WHERE r.version = (SELECT MAX(version) FROM repeaters WHERE id = r.id)
		  AND r.public_key = ?
		  AND r.id != ?
	`, publicKey, excludeID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking public key: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteRepeaterStore) insertVersion(ctx context.Context, r Repeater) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repeaters (id, name, public_key, password, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.Name,
		r.PublicKey,
		r.Password,
		boolToInt(r.Enabled),
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting repeater version: %w", err)
	}
	return nil
}

func scanRepeater(row rowScanner) (Repeater, error) {
	var r Repeater
	var enabled int
	var createdAt string
	err := row.Scan(&r.ID, &r.Name, &r.PublicKey, &r.Password, &enabled, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Repeater{}, err
		}
		return Repeater{}, fmt.Errorf("scanning repeater: %w", err)
	}
	r.Enabled = enabled != 0
	r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Repeater{}, fmt.Errorf("parsing repeater timestamp: %w", err)
	}
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
