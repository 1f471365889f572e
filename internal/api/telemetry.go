package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nmoncrief/meshgate/internal/mesh"
	"github.com/nmoncrief/meshgate/internal/store"
)

// liveStatusRetries is the number of extra attempts for a request-scoped
// remote status query. Matches what the background poller uses.
const liveStatusRetries = 2

// repeaterStatusView is the JSON shape of a live status report.
type repeaterStatusView struct {
	RepeaterID        string  `json:"repeater_id"`
	RepeaterName      string  `json:"repeater_name"`
	BatteryVoltage    float64 `json:"battery_voltage"`
	BatteryPercentage float64 `json:"battery_percentage"`
	UptimeSeconds     int64   `json:"uptime_seconds"`
	AirtimeSeconds    int64   `json:"airtime_seconds"`
	NoiseFloor        float64 `json:"noise_floor"`
	LastRSSI          float64 `json:"last_rssi"`
	LastSNR           float64 `json:"last_snr"`
	SentFlood         int     `json:"sent_flood"`
	SentDirect        int     `json:"sent_direct"`
	RecvFlood         int     `json:"recv_flood"`
	RecvDirect        int     `json:"recv_direct"`
	TxQueueLen        int     `json:"tx_queue_len"`
	FreeQueueLen      int     `json:"free_queue_len"`
	FullEvents        int     `json:"full_events"`
	DirectDups        int     `json:"direct_dups"`
	FloodDups         int     `json:"flood_dups"`
}

// handleRepeaterStatus queries the repeater over the radio right now, as
// opposed to reading the last polled sample from the store.
func (s *Server) handleRepeaterStatus(w http.ResponseWriter, r *http.Request) {
	rep, err := s.repeaters.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	st, err := withSession(s, r, func(sess *mesh.Session) (mesh.Status, error) {
		contact, err := sess.FindContactByKey(r.Context(), rep.PublicKey)
		if err != nil {
			return mesh.Status{}, err
		}
		return sess.Status(r.Context(), contact, rep.Password, liveStatusRetries)
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, repeaterStatusView{
		RepeaterID:        rep.ID,
		RepeaterName:      rep.Name,
		BatteryVoltage:    roundTo(st.BatteryVolts(), 3),
		BatteryPercentage: roundTo(mesh.BatteryPercentage(st.BatteryMilliVolts), 1),
		UptimeSeconds:     st.UptimeSeconds,
		AirtimeSeconds:    st.AirtimeSeconds,
		NoiseFloor:        st.NoiseFloor,
		LastRSSI:          st.LastRSSI,
		LastSNR:           st.LastSNR,
		SentFlood:         st.SentFlood,
		SentDirect:        st.SentDirect,
		RecvFlood:         st.RecvFlood,
		RecvDirect:        st.RecvDirect,
		TxQueueLen:        st.TxQueueLen,
		FreeQueueLen:      st.FreeQueueLen,
		FullEvents:        st.FullEvents,
		DirectDups:        st.DirectDups,
		FloodDups:         st.FloodDups,
	})
}

// telemetryEntryView is one live sensor reading.
type telemetryEntryView struct {
	Channel int     `json:"channel"`
	Type    string  `json:"type"`
	Value   float64 `json:"value"`
}

// handleRepeaterTelemetry requests live sensor readings from the repeater.
func (s *Server) handleRepeaterTelemetry(w http.ResponseWriter, r *http.Request) {
	rep, err := s.repeaters.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entries, err := withSession(s, r, func(sess *mesh.Session) ([]mesh.TelemetryEntry, error) {
		contact, err := sess.FindContactByKey(r.Context(), rep.PublicKey)
		if err != nil {
			return nil, err
		}
		return sess.SensorTelemetry(r.Context(), contact, liveStatusRetries)
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]telemetryEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, telemetryEntryView{
			Channel: e.Channel,
			Type:    e.Type,
			Value:   e.Value,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"repeater_id":   rep.ID,
		"repeater_name": rep.Name,
		"entries":       views,
	})
}

// telemetryPointView is one stored telemetry sample.
type telemetryPointView struct {
	RecordedAt  string  `json:"recorded_at"`
	MetricKey   string  `json:"metric_key"`
	MetricValue float64 `json:"metric_value"`
}

// handleTelemetryHistory returns stored samples for one repeater, filtered
// by metric and time window.
func (s *Server) handleTelemetryHistory(w http.ResponseWriter, r *http.Request) {
	rep, err := s.repeaters.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	q := r.URL.Query()
	query := store.TelemetryQuery{
		RepeaterID: rep.ID,
		MetricKey:  strings.TrimSpace(q.Get("metric")),
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		query.Since = &since
	}
	if v := q.Get("until"); v != "" {
		until, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "until must be an RFC 3339 timestamp")
			return
		}
		query.Until = &until
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		query.Limit = limit
	}

	points, err := s.telemetry.ListPoints(r.Context(), query)
	if err != nil {
		s.logger.Error("querying telemetry history", "error", err)
		writeInternalError(w, "querying telemetry history failed")
		return
	}

	views := make([]telemetryPointView, 0, len(points))
	for _, p := range points {
		views = append(views, telemetryPointView{
			RecordedAt:  p.RecordedAt.UTC().Format(time.RFC3339Nano),
			MetricKey:   p.MetricKey,
			MetricValue: p.MetricValue,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"repeater_id":   rep.ID,
		"repeater_name": rep.Name,
		"points":        views,
	})
}

// withSession runs op against a request-scoped device session, holding the
// device gate for the duration.
func withSession[T any](s *Server, r *http.Request, op func(*mesh.Session) (T, error)) (T, error) {
	var zero T
	ctx := r.Context()

	if err := s.gate.Acquire(ctx); err != nil {
		return zero, err
	}
	defer s.gate.Release()

	sess, err := mesh.OpenSession(ctx, s.connector, s.profile, s.logger)
	if err != nil {
		return zero, err
	}
	defer sess.Close()

	if _, err := sess.AppStart(ctx); err != nil {
		return zero, err
	}
	return op(sess)
}

func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
