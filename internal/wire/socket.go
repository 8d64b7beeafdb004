// ABOUTME: Per-connection frame dispatch: HELLO/SUB/UNSUB/PUBLISH handling
// ABOUTME: One socket reads and handles frames strictly sequentially (no interleaving)

package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/cryptoid"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/validate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// wsConn is the subset of *websocket.Conn a socket needs. Narrowing to an
// interface lets tests drive the dispatch logic with a fake connection.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// socket owns one client connection: its outbound queue and its live
// subscriptions. Reads are processed one at a time in readPump, which is
// what gives the protocol its per-socket frame ordering guarantee.
type socket struct {
	hub    *Hub
	conn   wsConn
	send   chan []byte
	closed chan struct{}
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]context.CancelFunc
}

func newSocket(h *Hub, conn wsConn) *socket {
	return &socket{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
		logger: h.logger,
		subs:   make(map[string]context.CancelFunc),
	}
}

// serve runs both pumps and blocks until the connection closes. Intended to
// be called directly from the HTTP upgrade handler's goroutine.
func (s *socket) serve() {
	go s.writePump()
	s.readPump()
}

func (s *socket) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *socket) readPump() {
	defer func() {
		s.closeAllSubs()
		close(s.closed)
		close(s.send)
		s.conn.Close()
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.handleFrame(data)
	}
}

// trySend enqueues a frame for delivery, dropping it if the socket is
// closing or its outbound buffer is saturated — the broadcast contract
// is best-effort, and a blocked send here would stall frame dispatch.
func (s *socket) trySend(frame []byte) {
	select {
	case s.send <- frame:
	case <-s.closed:
	default:
		s.logger.Debug("dropped outbound frame: socket buffer full")
	}
}

func (s *socket) sendError(code, message string) {
	frame, err := ErrorFrame(code, message)
	if err != nil {
		s.logger.Error("failed to encode error frame", "err", err)
		return
	}
	s.trySend(frame)
}

func (s *socket) handleFrame(data []byte) {
	kind, payload, err := DecodeFrame(data)
	if err != nil {
		s.sendError(ErrCodeInvalidFrame, err.Error())
		return
	}

	switch kind {
	case KindHello:
		s.handleHello(payload)
	case KindSub:
		s.handleSub(payload)
	case KindUnsub:
		s.handleUnsub(payload)
	case KindPublish:
		s.handlePublish(payload)
	default:
		s.sendError(ErrCodeInvalidFrame, fmt.Sprintf("unsupported frame kind %q", kind))
	}
}

func (s *socket) handleHello(payload []byte) {
	var hello HelloPayload
	if err := unmarshalPayload(payload, &hello); err != nil {
		s.sendError(ErrCodeInvalidFrame, err.Error())
		return
	}
	if hello.Protocol != ProtocolVersion {
		s.sendError(ErrCodeUnsupportedProtocol, fmt.Sprintf("unsupported protocol %q", hello.Protocol))
		return
	}

	frame, err := EncodeFrame(KindHelloOK, HelloOKPayload{
		Protocol:     ProtocolVersion,
		RelayName:    s.hub.relayName,
		RelayVersion: s.hub.relayVersion,
	})
	if err != nil {
		s.logger.Error("failed to encode HELLO_OK", "err", err)
		return
	}
	s.trySend(frame)
}

func (s *socket) handleSub(payload []byte) {
	var sub SubPayload
	if err := unmarshalPayload(payload, &sub); err != nil {
		s.sendError(ErrCodeInvalidFrame, err.Error())
		return
	}
	if sub.SubID == "" || sub.GuildID == "" {
		s.sendError(ErrCodeInvalidFrame, "SUB requires subId and guildId")
		return
	}

	// Subscribe before reading the log for the snapshot: an event appended
	// between the read and the subscribe would otherwise land in neither,
	// leaving a gap the client can't detect. The replica's dedup by event
	// id absorbs the resulting overlap when the same event shows up in
	// both the snapshot and the live feed.
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if existing, ok := s.subs[sub.SubID]; ok {
		existing()
	}
	s.subs[sub.SubID] = cancel
	s.mu.Unlock()

	ch, _ := s.hub.broadcaster.Subscribe(ctx, sub.GuildID)
	go s.forward(ctx, ch)

	events, err := s.hub.engine.Log(context.Background(), sub.GuildID)
	if err != nil {
		s.sendError(ErrCodeInternalError, "failed to read guild log")
		return
	}

	var endSeq int64
	if len(events) > 0 {
		endSeq = events[len(events)-1].Seq
	}
	snapFrame, err := EncodeFrame(KindSnapshot, SnapshotPayload{
		SubID:   sub.SubID,
		GuildID: sub.GuildID,
		Events:  events,
		EndSeq:  endSeq,
	})
	if err != nil {
		s.sendError(ErrCodeInternalError, "failed to encode snapshot")
		return
	}
	s.trySend(snapFrame)
}

func (s *socket) forward(ctx context.Context, ch <-chan *eventlog.Event) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			frame, err := EncodeFrame(KindEvent, ev)
			if err != nil {
				s.logger.Error("failed to encode EVENT frame", "err", err)
				continue
			}
			s.trySend(frame)
		case <-ctx.Done():
			return
		}
	}
}

func (s *socket) handleUnsub(payload []byte) {
	var unsub UnsubPayload
	if err := unmarshalPayload(payload, &unsub); err != nil {
		s.sendError(ErrCodeInvalidFrame, err.Error())
		return
	}

	s.mu.Lock()
	cancel, ok := s.subs[unsub.SubID]
	if ok {
		delete(s.subs, unsub.SubID)
	}
	s.mu.Unlock()

	if ok {
		cancel()
	}
}

func (s *socket) handlePublish(payload []byte) {
	var pub PublishPayload
	if err := unmarshalPayload(payload, &pub); err != nil {
		s.sendError(ErrCodeInvalidFrame, err.Error())
		return
	}

	body, err := eventlog.UnmarshalBody(pub.Body)
	if err != nil {
		s.sendError(ErrCodeInvalidFrame, err.Error())
		return
	}

	ev, err := s.hub.engine.Publish(context.Background(), body, pub.Author, pub.Signature, pub.CreatedAt)
	if err != nil {
		switch {
		case errors.Is(err, cryptoid.ErrInvalidSignature):
			s.sendError(ErrCodeInvalidSignature, "signature does not verify")
		case isValidationError(err):
			s.sendError(ErrCodeValidationFailed, err.Error())
		default:
			s.logger.Error("publish failed", "err", err)
			s.sendError(ErrCodeInternalError, "internal error")
		}
		return
	}

	// The publisher sees its own accepted event directly, independent of
	// whether it is currently subscribed to the guild.
	frame, err := EncodeFrame(KindEvent, ev)
	if err != nil {
		s.logger.Error("failed to encode EVENT frame", "err", err)
		return
	}
	s.trySend(frame)
}

func (s *socket) closeAllSubs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.subs {
		cancel()
		delete(s.subs, id)
	}
}

func isValidationError(err error) bool {
	var verr *validate.ValidationError
	return errors.As(err, &verr)
}
