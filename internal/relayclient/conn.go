// ABOUTME: Websocket transport for Replica: dials a relay, handshakes, and
// ABOUTME: reconnects with exponential backoff (base 1s, cap 30s, doubling per failure)

package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/wire"
)

const (
	backoffBase = time.Second
	backoffCap  = 30 * time.Second
)

// PeerSender is a gossip-forwarding target: another connection this Conn
// can relay raw frames to when operating in P2P mode.
type PeerSender interface {
	SendRaw(frame []byte) error
}

// wsConn is the subset of *websocket.Conn Conn needs to drive a session.
// Narrowing to an interface lets tests exercise the handshake/reconnect
// logic with a fake connection instead of a live socket.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// dialFunc opens one wsConn to the relay. The production default dials a
// real websocket; tests substitute a fake.
type dialFunc func(ctx context.Context, url string) (wsConn, error)

func defaultDial(ctx context.Context, url string) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Conn drives a Replica over one relay connection. It reconnects
// automatically with exponential backoff and resubscribes to every guild
// it was watching before the drop.
type Conn struct {
	url      string
	replica  *Replica
	logger   *slog.Logger
	clientID string
	dial     dialFunc

	mu       sync.Mutex
	wantSubs map[string]*wire.SubPayload // guildID -> last SUB sent, for resubscribe
	peers    map[string]PeerSender

	conn    wsConn
	connMu  sync.Mutex
	writeMu sync.Mutex
	done    chan struct{}
	doneWG  sync.WaitGroup
}

// NewConn builds a Conn. Call Run to start the connect/reconnect loop.
func NewConn(url string, replica *Replica, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		url:      url,
		replica:  replica,
		logger:   logger.With("component", "relayclient.conn"),
		clientID: uuid.New().String(),
		dial:     defaultDial,
		wantSubs: make(map[string]*wire.SubPayload),
		peers:    make(map[string]PeerSender),
		done:     make(chan struct{}),
	}
}

// RegisterPeer adds a gossip-forward target. Every EVENT frame this Conn
// receives from the relay and applies is forwarded raw to every registered
// peer; other frames and duplicate or rejected events are not forwarded.
func (c *Conn) RegisterPeer(peerID string, sender PeerSender) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers[peerID] = sender
}

// UnregisterPeer removes a gossip-forward target.
func (c *Conn) UnregisterPeer(peerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.peers, peerID)
}

// Subscribe records interest in a guild and sends SUB once connected
// (immediately if already connected, or on the next successful dial).
func (c *Conn) Subscribe(guildID string) {
	sub := &wire.SubPayload{SubID: uuid.New().String(), GuildID: guildID}
	c.mu.Lock()
	c.wantSubs[guildID] = sub
	c.mu.Unlock()
	c.sendSub(sub)
}

// Run connects and re-connects until ctx is cancelled or Close is called.
func (c *Conn) Run(ctx context.Context) {
	backoff := backoffBase
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		connected := false
		if err := c.connectAndServe(ctx, func() { connected = true }); err != nil {
			c.logger.Warn("connection lost, reconnecting", "err", err, "backoff", backoff)
		}

		if connected {
			backoff = backoffBase
		}
		wait := backoff
		if !connected {
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-time.After(wait):
		}
	}
}

// Close stops the reconnect loop and closes any live connection.
func (c *Conn) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.connMu.Unlock()
	c.doneWG.Wait()
}

func (c *Conn) connectAndServe(ctx context.Context, onConnected func()) error {
	conn, err := c.dial(ctx, c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		_ = conn.Close()
	}()

	hello, err := wire.EncodeFrame(wire.KindHello, wire.HelloPayload{
		Protocol:   wire.ProtocolVersion,
		ClientName: "coven-client",
	})
	if err != nil {
		return fmt.Errorf("encoding HELLO: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		return fmt.Errorf("sending HELLO: %w", err)
	}

	c.mu.Lock()
	pending := make([]*wire.SubPayload, 0, len(c.wantSubs))
	for _, sub := range c.wantSubs {
		pending = append(pending, sub)
	}
	c.mu.Unlock()
	for _, sub := range pending {
		if err := c.writeSub(conn, sub); err != nil {
			return fmt.Errorf("resubscribing: %w", err)
		}
	}

	onConnected()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.handleFrame(data)
	}
}

func (c *Conn) writeSub(conn wsConn, sub *wire.SubPayload) error {
	frame, err := wire.EncodeFrame(wire.KindSub, sub)
	if err != nil {
		return err
	}
	return c.writeFrame(conn, frame)
}

func (c *Conn) writeFrame(conn wsConn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Conn) sendSub(sub *wire.SubPayload) {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return
	}
	if err := c.writeSub(conn, sub); err != nil {
		c.logger.Warn("failed to send SUB", "guild_id", sub.GuildID, "err", err)
	}
}

// ErrNotConnected is returned by Publish when no live connection exists.
var ErrNotConnected = errors.New("relayclient: not connected")

// Publish sends a signed PUBLISH frame for body over the current
// connection. The caller is responsible for signing body with
// eventlog.Sign before calling this.
func (c *Conn) Publish(body eventlog.Body, author, signature string, createdAt int64) error {
	bodyJSON, err := eventlog.MarshalBody(body)
	if err != nil {
		return fmt.Errorf("marshaling publish body: %w", err)
	}

	frame, err := wire.EncodeFrame(wire.KindPublish, wire.PublishPayload{
		Body:      bodyJSON,
		Author:    author,
		Signature: signature,
		CreatedAt: createdAt,
	})
	if err != nil {
		return fmt.Errorf("encoding PUBLISH frame: %w", err)
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.writeFrame(conn, frame)
}

func (c *Conn) handleFrame(data []byte) {
	kind, payload, err := wire.DecodeFrame(data)
	if err != nil {
		c.logger.Warn("dropping malformed frame", "err", err)
		return
	}

	switch kind {
	case wire.KindHelloOK:
		var ok wire.HelloOKPayload
		_ = json.Unmarshal(payload, &ok)
		c.logger.Info("handshake complete", "relay", ok.RelayName, "version", ok.RelayVersion)
	case wire.KindError:
		var errPayload wire.ErrorPayload
		_ = json.Unmarshal(payload, &errPayload)
		c.logger.Error("relay reported error", "code", errPayload.Code, "message", errPayload.Message)
	case wire.KindSnapshot:
		var snap wire.SnapshotPayload
		if err := json.Unmarshal(payload, &snap); err != nil {
			c.logger.Error("failed to decode SNAPSHOT", "err", err)
			return
		}
		if err := c.replica.ApplySnapshot(snap.GuildID, snap.Events); err != nil {
			c.logger.Error("failed to apply snapshot", "guild_id", snap.GuildID, "err", err)
		}
	case wire.KindEvent:
		var ev eventlog.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			c.logger.Error("failed to decode EVENT", "err", err)
			return
		}
		guildID := eventlog.GuildIDOf(ev.Body)
		applied, err := c.replica.ApplyEvent(guildID, &ev)
		if err != nil {
			c.logger.Warn("event not applied", "guild_id", guildID, "err", err)
			return
		}
		if applied {
			c.gossip(data)
		}
	default:
		c.logger.Debug("ignoring unrecognized frame kind", "kind", kind)
	}
}

// gossip forwards a raw relay frame to every registered peer, for clients
// also acting as a P2P gossip hub.
func (c *Conn) gossip(raw []byte) {
	c.mu.Lock()
	peers := make([]PeerSender, 0, len(c.peers))
	for _, p := range c.peers {
		peers = append(peers, p)
	}
	c.mu.Unlock()

	for _, p := range peers {
		if err := p.SendRaw(raw); err != nil {
			c.logger.Debug("gossip forward failed", "err", err)
		}
	}
}
