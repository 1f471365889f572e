package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nmoncrief/meshgate/internal/events"
)

// closeAuthFailed is the close code sent when the first frame does not carry
// a valid token. Chosen from the application range so clients can tell an
// auth rejection from a transport failure.
const closeAuthFailed = 4003

// authFrame is the first frame the client must send after connecting.
type authFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// welcomeFrame confirms a successful in-band authentication.
type welcomeFrame struct {
	Type     string `json:"type"`
	Identity string `json:"identity"`
}

// eventFrame wraps a bus event for delivery.
type eventFrame struct {
	Type string         `json:"type"`
	Data events.Message `json:"data"`
}

// handleWebSocket upgrades the connection and streams new-message events.
// Browsers cannot set an Authorization header on a WebSocket handshake, so
// the token arrives in-band as the first frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close() //nolint:errcheck // Already closing

	if s.wsCfg.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	}

	identity, ok := s.authenticateSocket(conn)
	if !ok {
		return
	}

	sub := s.bus.Subscribe(identity)
	defer s.bus.Unsubscribe(sub)

	if err := conn.WriteJSON(welcomeFrame{Type: "welcome", Identity: identity}); err != nil {
		s.logger.Warn("websocket welcome failed", "identity", identity, "error", err)
		return
	}
	s.logger.Info("websocket client connected", "identity", identity)
	defer s.logger.Info("websocket client disconnected", "identity", identity)

	// Reads only serve to detect the peer going away; inbound frames carry
	// no commands and are discarded.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	idleWait := time.Duration(s.wsCfg.IdleWait) * time.Second
	if idleWait <= 0 {
		idleWait = 30 * time.Second
	}
	idle := time.NewTimer(idleWait)
	defer idle.Stop()

	for {
		select {
		case msg, open := <-sub.C():
			if !open {
				// The bus evicted this subscriber (buffer full).
				return
			}
			if err := conn.WriteJSON(eventFrame{Type: "new_message", Data: msg}); err != nil {
				s.logger.Warn("websocket write failed", "identity", identity, "error", err)
				return
			}
		case <-idle.C:
			idle.Reset(idleWait)
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// authenticateSocket waits for the auth frame and validates its token. On
// failure it sends close code 4003 and reports false.
func (s *Server) authenticateSocket(conn *websocket.Conn) (string, bool) {
	authTimeout := time.Duration(s.wsCfg.AuthTimeout) * time.Second
	if authTimeout <= 0 {
		authTimeout = 10 * time.Second
	}
	if err := conn.SetReadDeadline(time.Now().Add(authTimeout)); err != nil {
		return "", false
	}

	_, payload, err := conn.ReadMessage()
	if err != nil {
		s.closeUnauthorized(conn, "auth frame not received")
		return "", false
	}

	var frame authFrame
	if err := json.Unmarshal(payload, &frame); err != nil || frame.Type != "auth" || frame.Token == "" {
		s.closeUnauthorized(conn, "malformed auth frame")
		return "", false
	}

	identity, err := s.auth.ValidateToken(frame.Token)
	if err != nil {
		s.closeUnauthorized(conn, "invalid token")
		return "", false
	}

	// Clear the auth deadline; the idle loop tolerates a silent peer.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return "", false
	}
	return identity, true
}

func (s *Server) closeUnauthorized(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(closeAuthFailed, reason)
	//nolint:errcheck // Peer may already be gone
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
