package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nmoncrief/meshgate/internal/infrastructure/database"
	_ "github.com/nmoncrief/meshgate/migrations"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func channelMessage(text string, receivedAt time.Time) Message {
	return Message{
		ReceivedAt:      receivedAt,
		Kind:            "CHANNEL",
		ChannelIndex:    0,
		ChannelName:     "General",
		SenderTimestamp: receivedAt.Unix(),
		SenderName:      "alice",
		HopCount:        2,
		SNR:             8.5,
		Text:            text,
	}
}
