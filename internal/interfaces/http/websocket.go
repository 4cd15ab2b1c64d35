package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/horus-robotics/horus/internal/telemetry"
)

// upgrader only ever accepts same-origin/localhost connections, matching
// this server's local-only posture; it performs no cross-origin handling
// beyond what corsMiddleware already applies to the plain REST endpoints.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" ||
			strings.HasSuffix(origin, "://"+r.Host) ||
			strings.Contains(origin, "localhost") ||
			strings.Contains(origin, "127.0.0.1")
	},
}

// wireEvent is the newline-delimited JSON shape streamed to a dashboard
// subscriber: the same fields as telemetry.Event, serialised.
type wireEvent struct {
	TimestampNs int64  `json:"timestamp_ns"`
	NodeName    string `json:"node_name"`
	Severity    string `json:"severity"`
	Kind        string `json:"kind"`
	TopicName   string `json:"topic_name,omitempty"`
	DurationNs  int64  `json:"duration_ns,omitempty"`
	Text        string `json:"text,omitempty"`
}

func toWireEvent(e telemetry.Event) wireEvent {
	return wireEvent{
		TimestampNs: e.TimestampNs,
		NodeName:    e.NodeName,
		Severity:    e.Severity.String(),
		Kind:        e.Kind.String(),
		TopicName:   e.TopicName,
		DurationNs:  e.DurationNs,
		Text:        e.Text,
	}
}

// handleTelemetryWS upgrades the connection and streams every new ring
// entry as newline-delimited JSON until the client disconnects or the
// scheduler's ring is torn down. The replay of already-held entries
// happens first so a subscriber that connects mid-run isn't starting
// blind.
func (s *Server) handleTelemetryWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("telemetry websocket upgrade failed")
		return
	}
	defer conn.Close()

	ring := s.sched.Ring()
	events, unsubscribe := ring.Subscribe(256)
	defer unsubscribe()

	for _, e := range ring.Snapshot() {
		if err := conn.WriteJSON(toWireEvent(e)); err != nil {
			return
		}
	}

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(toWireEvent(e)); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
