package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nmoncrief/meshgate/internal/infrastructure/database"
)

// Message is one row in the message log. Rows are written once by the
// drainer or the send path and never updated.
type Message struct {
	ID              int64
	ReceivedAt      time.Time
	Kind            string // CHANNEL | DIRECT
	ChannelIndex    int
	ChannelName     string
	SenderTimestamp int64
	SenderKeyPrefix string
	SenderName      string
	HopCount        int
	SNR             float64
	Text            string
	TextType        int
	Signature       string
}

// MessageQuery selects a page of the message log for one channel.
// Offset/Limit paging and Since filtering are mutually exclusive; the
// handler validates that before building the query.
type MessageQuery struct {
	Channel    string
	Offset     int
	Limit      int
	Since      *time.Time
	Descending bool
}

// MessageStore persists and queries the message log.
type MessageStore interface {
	InsertBatch(ctx context.Context, msgs []Message) error
	ListByChannel(ctx context.Context, q MessageQuery) ([]Message, error)
}

// SQLiteMessageStore implements MessageStore on the shared SQLite handle.
type SQLiteMessageStore struct {
	db *database.DB
}

// NewMessageStore creates a message repository.
func NewMessageStore(db *database.DB) *SQLiteMessageStore {
	return &SQLiteMessageStore{db: db}
}

const messageColumns = `id, received_at, msg_type, channel_idx, channel_name,
	sender_timestamp, sender_pubkey_prefix, sender_name, path_len, snr,
	text, txt_type, signature`

// InsertBatch writes all messages in one transaction so a drain cycle is
// persisted atomically.
func (s *SQLiteMessageStore) InsertBatch(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (
			received_at, msg_type, channel_idx, channel_name,
			sender_timestamp, sender_pubkey_prefix, sender_name,
			path_len, snr, text, txt_type, signature
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing message insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Statement closes with the tx

	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx,
			m.ReceivedAt.UTC().Format(time.RFC3339Nano),
			m.Kind,
			m.ChannelIndex,
			m.ChannelName,
			m.SenderTimestamp,
			m.SenderKeyPrefix,
			m.SenderName,
			m.HopCount,
			m.SNR,
			m.Text,
			m.TextType,
			m.Signature,
		); err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message batch: %w", err)
	}
	return nil
}

// ListByChannel returns messages for one channel, name compared
// case-insensitively.
func (s *SQLiteMessageStore) ListByChannel(ctx context.Context, q MessageQuery) ([]Message, error) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(messageColumns)
	sb.WriteString(" FROM messages WHERE channel_name = ? COLLATE NOCASE")
	args := []any{q.Channel}

	if q.Since != nil {
		sb.WriteString(" AND received_at > ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339Nano))
	}

	if q.Descending {
		sb.WriteString(" ORDER BY received_at DESC, id DESC")
	} else {
		sb.WriteString(" ORDER BY received_at ASC, id ASC")
	}

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
		if q.Offset > 0 {
			sb.WriteString(" OFFSET ?")
			args = append(args, q.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows close

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	var receivedAt string
	err := row.Scan(
		&m.ID,
		&receivedAt,
		&m.Kind,
		&m.ChannelIndex,
		&m.ChannelName,
		&m.SenderTimestamp,
		&m.SenderKeyPrefix,
		&m.SenderName,
		&m.HopCount,
		&m.SNR,
		&m.Text,
		&m.TextType,
		&m.Signature,
	)
	if err != nil {
		return Message{}, fmt.Errorf("scanning message: %w", err)
	}
	m.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt)
	if err != nil {
		return Message{}, fmt.Errorf("parsing message timestamp: %w", err)
	}
	return m, nil
}
