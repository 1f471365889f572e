package api

import (
	"net/http"
	"time"
)

// healthResponse is the GET /health payload. Optional infrastructure that is
// not configured is reported as absent rather than unhealthy.
type healthResponse struct {
	Status     string            `json:"status"` // ok | degraded
	Version    string            `json:"version,omitempty"`
	Database   *dbHealth         `json:"database,omitempty"`
	Cache      cacheHealth       `json:"cache"`
	Events     eventsHealth      `json:"events"`
	Device     deviceHealth      `json:"device"`
	MQTT       *connectionHealth `json:"mqtt,omitempty"`
	InfluxDB   *connectionHealth `json:"influxdb,omitempty"`
	ObservedAt string            `json:"observed_at"`
}

type dbHealth struct {
	Healthy   bool  `json:"healthy"`
	LatencyMS int64 `json:"latency_ms"`
}

type cacheHealth struct {
	Warm       bool    `json:"warm"`
	AgeSeconds float64 `json:"age_seconds"`
}

type eventsHealth struct {
	Subscribers int   `json:"subscribers"`
	Dropped     int64 `json:"dropped"`
}

type deviceHealth struct {
	Driver    string `json:"driver"`
	Transport string `json:"transport"`
}

type connectionHealth struct {
	Connected bool `json:"connected"`
}

// handleHealth reports service health. The device itself is deliberately not
// probed here: a health check must never contend for the device gate.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Device: deviceHealth{
			Driver:    s.profile.Driver,
			Transport: s.profile.Transport,
		},
		ObservedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if s.db != nil {
		start := time.Now()
		err := s.db.HealthCheck(r.Context())
		resp.Database = &dbHealth{
			Healthy:   err == nil,
			LatencyMS: time.Since(start).Milliseconds(),
		}
		if err != nil {
			resp.Status = "degraded"
		}
	}

	warm, age := s.channels.CacheState()
	resp.Cache = cacheHealth{Warm: warm, AgeSeconds: age}

	resp.Events = eventsHealth{
		Subscribers: s.bus.SubscriberCount(),
		Dropped:     s.bus.Dropped(),
	}

	if s.mqtt != nil {
		resp.MQTT = &connectionHealth{Connected: s.mqtt.IsConnected()}
		if !s.mqtt.IsConnected() {
			resp.Status = "degraded"
		}
	}
	if s.influx != nil {
		resp.InfluxDB = &connectionHealth{Connected: s.influx.IsConnected()}
		if !s.influx.IsConnected() {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
