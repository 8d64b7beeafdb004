// ABOUTME: Hub owns the engine/broadcaster pair and upgrades HTTP connections
// ABOUTME: to sockets; each connection gets its own read/write pump pair

package wire

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/engine"
)

// Hub is the relay's WebSocket entry point: one Hub serves every client
// connection, each upgraded into its own socket.
type Hub struct {
	engine      *engine.Engine
	broadcaster *Broadcaster
	logger      *slog.Logger

	relayName    string
	relayVersion string

	upgrader websocket.Upgrader
}

// NewHub builds a Hub over an engine and its broadcaster. relayName/relayVersion
// populate the HELLO_OK handshake reply.
func NewHub(e *engine.Engine, broadcaster *Broadcaster, relayName, relayVersion string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		engine:       e,
		broadcaster:  broadcaster,
		relayName:    relayName,
		relayVersion: relayVersion,
		logger:       logger.With("component", "wire"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and serves it
// until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}

	s := newSocket(h, conn)
	s.serve()
}

func unmarshalPayload(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("wire: invalid payload: %w", err)
	}
	return nil
}
