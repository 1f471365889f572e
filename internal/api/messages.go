package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nmoncrief/meshgate/internal/events"
	"github.com/nmoncrief/meshgate/internal/store"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// sendMessageRequest is the POST /messages payload.
type sendMessageRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// handleSendMessage transmits a message on a channel. Transmission is the
// operation: once the device confirms it, persisting the outbound copy and
// broadcasting it to live consumers are best effort and never fail the
// request.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Channel) == "" {
		writeBadRequest(w, "channel is required")
		return
	}
	if req.Text == "" {
		writeBadRequest(w, "text is required")
		return
	}

	slot, err := s.channels.SendText(r.Context(), req.Channel, req.Text)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	identity, _ := r.Context().Value(ctxKeyIdentity).(string)
	row := store.Message{
		ReceivedAt:      time.Now().UTC(),
		Kind:            "CHANNEL",
		ChannelIndex:    slot.Index,
		ChannelName:     slot.Name,
		SenderTimestamp: time.Now().Unix(),
		SenderName:      identity,
		Text:            req.Text,
	}
	if err := s.messages.InsertBatch(r.Context(), []store.Message{row}); err != nil {
		s.logger.Warn("storing sent message failed", "error", err)
	}
	s.bus.Publish(events.Message{
		ReceivedAt:      row.ReceivedAt,
		Kind:            row.Kind,
		ChannelIndex:    row.ChannelIndex,
		ChannelName:     row.ChannelName,
		SenderTimestamp: row.SenderTimestamp,
		SenderName:      row.SenderName,
		Text:            row.Text,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "sent",
		"channel":     slot.Name,
		"channel_idx": slot.Index,
	})
}

// messageView is the JSON shape of one message log row.
type messageView struct {
	ID              int64   `json:"id"`
	ReceivedAt      string  `json:"received_at"`
	Kind            string  `json:"kind"`
	ChannelIndex    int     `json:"channel_idx"`
	ChannelName     string  `json:"channel_name"`
	SenderTimestamp int64   `json:"sender_timestamp"`
	SenderName      string  `json:"sender_name"`
	HopCount        int     `json:"hop_count"`
	SNR             float64 `json:"snr"`
	Text            string  `json:"text"`
}

// handleMessageHistory returns the message log for one channel. Paging via
// offset/limit and incremental polling via since are mutually exclusive.
func (s *Server) handleMessageHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	channel := strings.TrimSpace(q.Get("channel"))
	if channel == "" {
		writeBadRequest(w, "channel query parameter is required")
		return
	}

	query := store.MessageQuery{
		Channel: strings.TrimPrefix(channel, "#"),
		Limit:   defaultHistoryLimit,
	}

	hasPaging := q.Get("offset") != "" || q.Get("limit") != ""
	if q.Get("since") != "" && hasPaging {
		writeBadRequest(w, "since cannot be combined with offset/limit")
		return
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
		query.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		query.Offset = offset
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		query.Since = &since
		query.Limit = 0 // since returns everything after the mark
	}

	switch q.Get("order") {
	case "", "asc":
	case "desc":
		query.Descending = true
	default:
		writeBadRequest(w, "order must be asc or desc")
		return
	}

	msgs, err := s.messages.ListByChannel(r.Context(), query)
	if err != nil {
		s.logger.Error("querying message history", "error", err)
		writeInternalError(w, "querying message history failed")
		return
	}

	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			ID:              m.ID,
			ReceivedAt:      m.ReceivedAt.UTC().Format(time.RFC3339Nano),
			Kind:            m.Kind,
			ChannelIndex:    m.ChannelIndex,
			ChannelName:     m.ChannelName,
			SenderTimestamp: m.SenderTimestamp,
			SenderName:      m.SenderName,
			HopCount:        m.HopCount,
			SNR:             m.SNR,
			Text:            m.Text,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel":  query.Channel,
		"messages": views,
	})
}
