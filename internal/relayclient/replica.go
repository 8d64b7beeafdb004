// ABOUTME: Client-side reducer replica: applies gossiped/relayed events per guild
// ABOUTME: Pins observed heads against contradictory rewrites and reports gaps (ErrHeadGap) for resync

package relayclient

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/state"
)

// ErrSignatureInvalid is returned when an incoming event's signature does
// not verify against its claimed author.
var ErrSignatureInvalid = errors.New("relayclient: invalid signature")

// ErrHeadGap is returned when an incoming event does not chain onto the
// replica's current head for that guild. The caller should await a
// SNAPSHOT rather than retry the event.
var ErrHeadGap = errors.New("relayclient: event does not chain onto known head")

// ErrPinnedHeadConflict is returned when an incoming event claims a seq
// the replica has already seen, with a different id than what was pinned
// there. A relay that rewrites its own history cannot make an already
// syncing client accept the rewrite silently.
var ErrPinnedHeadConflict = errors.New("relayclient: event contradicts a previously pinned seq")

// Head describes the last-applied position in one guild's log.
type Head struct {
	Seq  int64
	Hash string
}

// Listener is notified of every event the replica applies, after dedup,
// signature verification, and chain checks succeed.
type Listener func(guildID string, event *eventlog.Event)

// Replica maintains guildId -> state.State for every guild a client has
// subscribed to, using the same reducer the relay runs. It is transport
// agnostic: Conn drives it over a live websocket, but tests can drive it
// directly with constructed events.
type Replica struct {
	mu sync.Mutex

	states map[string]*state.State
	heads  map[string]Head

	// pinnedSeq records, per guild, the event id last accepted at each
	// seq once observed. A later event claiming the same seq with a
	// different id is a relay history rewrite and is rejected.
	pinnedSeq map[string]map[int64]string

	seen      *SeenCache
	listeners []Listener
	logger    *slog.Logger
}

// NewReplica builds an empty Replica.
func NewReplica(logger *slog.Logger) *Replica {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replica{
		states:    make(map[string]*state.State),
		heads:     make(map[string]Head),
		pinnedSeq: make(map[string]map[int64]string),
		seen:      NewDefaultSeenCache(),
		logger:    logger.With("component", "relayclient"),
	}
}

// OnEvent registers a listener invoked whenever ApplyEvent successfully
// applies a new event.
func (r *Replica) OnEvent(fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// State returns a guild's current reduced state, if any events have been
// applied to it.
func (r *Replica) State(guildID string) (*state.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[guildID]
	return s, ok
}

// Head returns the last-applied position for a guild.
func (r *Replica) Head(guildID string) (Head, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.heads[guildID]
	return h, ok
}

// ApplyEvent verifies and folds a single event into its guild's state. It
// returns (false, nil) for an already-seen duplicate (a no-op, not an
// error), and ErrHeadGap when the event does not chain onto the known
// head — the caller should request a fresh SNAPSHOT rather than retry.
func (r *Replica) ApplyEvent(guildID string, event *eventlog.Event) (applied bool, err error) {
	if !eventlog.VerifySignature(event) {
		r.logger.Warn("dropping event with invalid signature", "guild_id", guildID, "event_id", event.ID, "author", event.Author)
		return false, ErrSignatureInvalid
	}

	r.mu.Lock()

	if r.seen.Seen(event.ID) {
		r.mu.Unlock()
		return false, nil
	}

	guildPins, ok := r.pinnedSeq[guildID]
	if !ok {
		guildPins = make(map[int64]string)
		r.pinnedSeq[guildID] = guildPins
	}
	if pinned, ok := guildPins[event.Seq]; ok && pinned != event.ID {
		r.logger.Error("rejecting event: contradicts pinned seq", "guild_id", guildID, "seq", event.Seq, "pinned_id", pinned, "incoming_id", event.ID)
		r.mu.Unlock()
		return false, ErrPinnedHeadConflict
	}

	head, hasHead := r.heads[guildID]

	if !hasHead {
		if event.Seq != 0 || event.PrevHash != nil {
			r.logger.Warn("dropping non-genesis event for unknown guild, awaiting snapshot", "guild_id", guildID, "seq", event.Seq)
			r.mu.Unlock()
			return false, ErrHeadGap
		}
		st, err := state.CreateInitialState(event)
		if err != nil {
			r.mu.Unlock()
			return false, fmt.Errorf("applying genesis event: %w", err)
		}
		r.states[guildID] = st
		r.heads[guildID] = Head{Seq: event.Seq, Hash: event.ID}
		guildPins[event.Seq] = event.ID
		r.seen.Mark(event.ID)
		r.mu.Unlock()
		r.notify(guildID, event)
		return true, nil
	}

	expectedPrev := head.Hash
	if event.Seq != head.Seq+1 || event.PrevHash == nil || *event.PrevHash != expectedPrev {
		r.logger.Warn("event does not chain onto known head, awaiting snapshot",
			"guild_id", guildID, "event_seq", event.Seq, "head_seq", head.Seq)
		r.mu.Unlock()
		return false, ErrHeadGap
	}

	next, err := state.ApplyEvent(r.states[guildID], event)
	if err != nil {
		r.mu.Unlock()
		return false, fmt.Errorf("applying event: %w", err)
	}
	r.states[guildID] = next
	r.heads[guildID] = Head{Seq: event.Seq, Hash: event.ID}
	guildPins[event.Seq] = event.ID
	r.seen.Mark(event.ID)
	r.mu.Unlock()
	r.notify(guildID, event)
	return true, nil
}

// ApplySnapshot fully replaces a guild's state by folding the given events
// from genesis, as SNAPSHOT frames instruct. The guild's head and pinned
// seqs are replaced by those of the snapshot's events.
func (r *Replica) ApplySnapshot(guildID string, events []*eventlog.Event) error {
	if len(events) == 0 {
		return nil
	}

	st, err := state.CreateInitialState(events[0])
	if err != nil {
		return fmt.Errorf("folding snapshot genesis: %w", err)
	}
	for _, ev := range events[1:] {
		st, err = state.ApplyEvent(st, ev)
		if err != nil {
			return fmt.Errorf("folding snapshot event seq %d: %w", ev.Seq, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.states[guildID] = st
	last := events[len(events)-1]
	r.heads[guildID] = Head{Seq: last.Seq, Hash: last.ID}

	pins := make(map[int64]string, len(events))
	for _, ev := range events {
		pins[ev.Seq] = ev.ID
		r.seen.Mark(ev.ID)
	}
	r.pinnedSeq[guildID] = pins

	return nil
}

func (r *Replica) notify(guildID string, event *eventlog.Event) {
	r.mu.Lock()
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(guildID, event)
	}
}
