// Package wsrelay exposes the Agent Supervisor's per-session output over a
// gorilla/websocket endpoint so an external desktop-UI shell can attach and
// receive the same lines delivered to the in-process event bus, without
// needing to be compiled against this module. This transport is not part
// of the original child protocol; it is an optional relay on top of it.
package wsrelay

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rcourtman/workbench-core/internal/eventbus"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Server upgrades HTTP requests to websocket connections scoped to one
// session id and relays that session's eventbus output to it.
type Server struct {
	hub      *eventbus.Hub
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// New constructs a Server that relays events from hub. allowedOrigins, if
// non-empty, restricts the Origin header the same way the upstream
// workbench's own agent-exec transport does; an empty list allows any
// origin (suitable for a purely loopback-bound relay).
func New(hub *eventbus.Hub, log zerolog.Logger, allowedOrigins []string) *Server {
	return &Server{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, allowed := range allowedOrigins {
					if strings.EqualFold(origin, allowed) {
						return true
					}
				}
				return false
			},
		},
	}
}

// ServeSession upgrades the request and streams sessionID's output events
// until the client disconnects or the connection errors.
func (s *Server) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("wsrelay: upgrade failed")
		return
	}
	defer conn.Close()

	ch, unsub := s.hub.Subscribe(eventbus.ForSession(sessionID))
	defer unsub()

	var writeMu sync.Mutex
	done := make(chan struct{})

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Kind != eventbus.KindOutput && event.Kind != eventbus.KindError {
				continue
			}
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.TextMessage, []byte(event.Line))
			writeMu.Unlock()
			if err != nil {
				return
			}
		case <-ticker.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
