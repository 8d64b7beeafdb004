package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/cryptoid"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/state"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/store"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/validate"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/wire"
)

// Metrics is the subset of instrumentation the engine reports through.
// Implemented by internal/metrics; nil-safe via nopMetrics.
type Metrics interface {
	ObserveIngest(guildID string, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveIngest(string, string) {}

// Engine is the sequencing authority: it owns seq/prevHash assignment,
// per-guild serialization, the state cache, and broadcast fan-out.
type Engine struct {
	store       store.Store
	broadcaster *wire.Broadcaster
	logger      *slog.Logger
	metrics     Metrics

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	cacheMu sync.Mutex
	cache   map[string]*state.State
}

// New builds an Engine over the given store and broadcaster. logger and
// metrics may be nil.
func New(st store.Store, broadcaster *wire.Broadcaster, logger *slog.Logger, metrics Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Engine{
		store:       st,
		broadcaster: broadcaster,
		logger:      logger.With("component", "engine"),
		metrics:     metrics,
		locks:       make(map[string]*sync.Mutex),
		cache:       make(map[string]*state.State),
	}
}

func (e *Engine) guildLock(guildID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[guildID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[guildID] = l
	}
	return l
}

func (e *Engine) cachedState(guildID string) (*state.State, bool) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	s, ok := e.cache[guildID]
	return s, ok
}

func (e *Engine) setCachedState(guildID string, s *state.State) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache[guildID] = s
}

func (e *Engine) invalidateCache(guildID string) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	delete(e.cache, guildID)
}

// rebuildState folds a guild's full stored log through the reducer. It
// returns store.ErrNotFound if the guild has no events.
func (e *Engine) rebuildState(ctx context.Context, guildID string) (*state.State, error) {
	log, err := e.store.GetLog(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if len(log) == 0 {
		return nil, store.ErrNotFound
	}

	st, err := state.CreateInitialState(log[0])
	if err != nil {
		return nil, fmt.Errorf("engine: rebuild genesis for guild %q: %w", guildID, err)
	}
	for _, ev := range log[1:] {
		st, err = state.ApplyEvent(st, ev)
		if err != nil {
			return nil, fmt.Errorf("engine: rebuild guild %q at seq %d: %w", guildID, ev.Seq, err)
		}
	}
	return st, nil
}

// Publish verifies, sequences, validates, appends, and broadcasts one
// client publish. The returned error is one of: cryptoid.ErrInvalidSignature,
// *validate.ValidationError, or a wrapped internal error — callers map
// these to the wire protocol's INVALID_SIGNATURE / VALIDATION_FAILED /
// INTERNAL_ERROR codes.
func (e *Engine) Publish(ctx context.Context, body eventlog.Body, author, signature string, createdAt int64) (*eventlog.Event, error) {
	digest, err := eventlog.SigningDigest(body, author, createdAt)
	if err != nil {
		return nil, fmt.Errorf("engine: signing digest: %w", err)
	}
	if !cryptoid.Verify(author, digest, signature) {
		e.metrics.ObserveIngest(eventlog.GuildIDOf(body), "invalid_signature")
		return nil, cryptoid.ErrInvalidSignature
	}

	guildID := eventlog.GuildIDOf(body)
	if guildID == "" {
		return nil, &validate.ValidationError{Message: "event body carries no guildId"}
	}

	lock := e.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	last, err := e.store.GetLastEvent(ctx, guildID)
	isGenesis := errors.Is(err, store.ErrNotFound)
	if err != nil && !isGenesis {
		e.metrics.ObserveIngest(guildID, "internal_error")
		return nil, fmt.Errorf("engine: reading head for guild %q: %w", guildID, err)
	}

	var seq int64
	var prevHash *string
	if isGenesis {
		if body.Type() != eventlog.TypeGuildCreate {
			e.metrics.ObserveIngest(guildID, "validation_failed")
			return nil, &validate.ValidationError{Message: "first event in a guild must be GUILD_CREATE"}
		}
		seq = 0
	} else {
		seq = last.Seq + 1
		id := last.ID
		prevHash = &id
	}

	st, err := e.stateFor(ctx, guildID, last, isGenesis)
	if err != nil {
		e.metrics.ObserveIngest(guildID, "internal_error")
		return nil, fmt.Errorf("engine: loading state for guild %q: %w", guildID, err)
	}

	candidate := &eventlog.Event{
		Seq:       seq,
		PrevHash:  prevHash,
		CreatedAt: createdAt,
		Author:    author,
		Body:      body,
		Signature: signature,
	}

	if st != nil {
		if err := validate.ValidateEvent(st, candidate); err != nil {
			e.metrics.ObserveIngest(guildID, "validation_failed")
			return nil, err
		}
	}

	id, err := eventlog.ComputeEventID(candidate)
	if err != nil {
		e.metrics.ObserveIngest(guildID, "internal_error")
		return nil, fmt.Errorf("engine: computing event id: %w", err)
	}
	candidate.ID = id

	if isGenesis && id != guildID {
		e.metrics.ObserveIngest(guildID, "validation_failed")
		return nil, &validate.ValidationError{Message: "genesis event guildId must equal its own computed event id"}
	}

	if err := e.store.Append(ctx, guildID, candidate); err != nil {
		e.invalidateCache(guildID)
		e.metrics.ObserveIngest(guildID, "internal_error")
		return nil, fmt.Errorf("engine: append: %w", err)
	}

	var nextState *state.State
	if isGenesis {
		nextState, err = state.CreateInitialState(candidate)
	} else {
		nextState, err = state.ApplyEvent(st, candidate)
	}
	if err != nil {
		// The event is already durably appended; a reducer disagreement
		// here is a bug, not a client error. Force a rebuild on next ingest
		// rather than serve a state we know to be wrong.
		e.logger.Error("state fold failed after append", "guild_id", guildID, "seq", candidate.Seq, "err", err)
		e.invalidateCache(guildID)
	} else {
		e.setCachedState(guildID, nextState)
	}

	e.broadcaster.Publish(guildID, candidate)
	e.metrics.ObserveIngest(guildID, "accepted")
	return candidate, nil
}

// stateFor returns the state to validate candidate against, preferring the
// cache when it is exactly at last's seq and falling back to a full rebuild
// otherwise. Returns nil (no error) when the guild has no prior events.
func (e *Engine) stateFor(ctx context.Context, guildID string, last *eventlog.Event, isGenesis bool) (*state.State, error) {
	if isGenesis {
		return nil, nil
	}

	if cached, ok := e.cachedState(guildID); ok && cached.HeadSeq == last.Seq {
		return cached, nil
	}

	rebuilt, err := e.rebuildState(ctx, guildID)
	if err != nil {
		return nil, err
	}
	e.setCachedState(guildID, rebuilt)
	return rebuilt, nil
}

// StateAt returns the current folded state for a guild, rebuilding from
// the store if the cache is cold. It takes the same per-guild lock as
// Publish, so it waits for any publish in flight on that guild.
func (e *Engine) StateAt(ctx context.Context, guildID string) (*state.State, error) {
	lock := e.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	if cached, ok := e.cachedState(guildID); ok {
		last, err := e.store.GetLastEvent(ctx, guildID)
		if err == nil && last.Seq == cached.HeadSeq {
			return cached, nil
		}
	}

	rebuilt, err := e.rebuildState(ctx, guildID)
	if err != nil {
		return nil, err
	}
	e.setCachedState(guildID, rebuilt)
	return rebuilt, nil
}

// GuildIDs lists every guild with at least one stored event.
func (e *Engine) GuildIDs(ctx context.Context) ([]string, error) {
	return e.store.GetGuildIDs(ctx)
}

// Log returns a guild's full stored log in ascending seq order.
func (e *Engine) Log(ctx context.Context, guildID string) ([]*eventlog.Event, error) {
	return e.store.GetLog(ctx, guildID)
}
