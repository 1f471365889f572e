package store

import (
	"context"
	"testing"
	"time"
)

func TestMessageInsertAndList(t *testing.T) {
	db := testDB(t)
	msgs := NewMessageStore(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := []Message{
		channelMessage("first", base),
		channelMessage("second", base.Add(time.Minute)),
		channelMessage("third", base.Add(2*time.Minute)),
	}
	if err := msgs.InsertBatch(ctx, batch); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	got, err := msgs.ListByChannel(ctx, MessageQuery{Channel: "General", Limit: 10})
	if err != nil {
		t.Fatalf("ListByChannel() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3", len(got))
	}
	if got[0].Text != "first" || got[2].Text != "third" {
		t.Errorf("expected ascending order, got %q..%q", got[0].Text, got[2].Text)
	}
	if !got[0].ReceivedAt.Equal(base) {
		t.Errorf("ReceivedAt = %v, want %v", got[0].ReceivedAt, base)
	}
	if got[0].SNR != 8.5 || got[0].HopCount != 2 || got[0].SenderName != "alice" {
		t.Errorf("message fields not round-tripped: %+v", got[0])
	}
}

func TestMessageListDescendingWithPaging(t *testing.T) {
	db := testDB(t)
	msgs := NewMessageStore(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var batch []Message
	for i := 0; i < 5; i++ {
		batch = append(batch, channelMessage(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute)))
	}
	if err := msgs.InsertBatch(ctx, batch); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	got, err := msgs.ListByChannel(ctx, MessageQuery{
		Channel:    "General",
		Limit:      2,
		Offset:     1,
		Descending: true,
	})
	if err != nil {
		t.Fatalf("ListByChannel() error = %v", err)
	}
	if len(got) != 2 || got[0].Text != "d" || got[1].Text != "c" {
		t.Errorf("unexpected page: %+v", got)
	}
}

func TestMessageListSince(t *testing.T) {
	db := testDB(t)
	msgs := NewMessageStore(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := []Message{
		channelMessage("old", base),
		channelMessage("new", base.Add(time.Hour)),
	}
	if err := msgs.InsertBatch(ctx, batch); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	since := base.Add(time.Minute)
	got, err := msgs.ListByChannel(ctx, MessageQuery{Channel: "General", Since: &since})
	if err != nil {
		t.Fatalf("ListByChannel() error = %v", err)
	}
	if len(got) != 1 || got[0].Text != "new" {
		t.Errorf("since filter returned %+v, want only 'new'", got)
	}
}

func TestMessageListChannelCaseInsensitive(t *testing.T) {
	db := testDB(t)
	msgs := NewMessageStore(db)
	ctx := context.Background()

	if err := msgs.InsertBatch(ctx, []Message{channelMessage("hi", time.Now().UTC())}); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	got, err := msgs.ListByChannel(ctx, MessageQuery{Channel: "general"})
	if err != nil {
		t.Fatalf("ListByChannel() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("case-insensitive lookup returned %d messages, want 1", len(got))
	}
}

func TestMessageInsertEmptyBatch(t *testing.T) {
	db := testDB(t)
	msgs := NewMessageStore(db)

	if err := msgs.InsertBatch(context.Background(), nil); err != nil {
		t.Errorf("InsertBatch(nil) error = %v", err)
	}
}
