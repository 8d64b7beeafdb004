package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/canon"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/cryptoid"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/engine"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/state"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/store"
)

// Metrics is the subset of instrumentation the retention loop reports
// through. Implemented by internal/metrics; nil-safe via nopMetrics.
type Metrics interface {
	ObservePrune(guildID string, count int)
	ObserveCheckpoint(guildID string)
}

type nopMetrics struct{}

func (nopMetrics) ObservePrune(string, int)   {}
func (nopMetrics) ObserveCheckpoint(string)   {}

// CheckpointRecord is the shape handed to CheckpointIndex.IndexCheckpoint.
// It is a local type, not the admin store's own record, so this package
// never needs to import the admin store to report into it.
type CheckpointRecord struct {
	GuildID   string
	Seq       int64
	EventID   string
	RootHash  string
	CreatedAt time.Time
}

// CheckpointIndex lets the checkpoint loop record a queryable index of
// every checkpoint it emits, so an operator doesn't have to replay a
// guild's full log to find the latest one. Implemented by internal/adminstore.
type CheckpointIndex interface {
	IndexCheckpoint(ctx context.Context, rec CheckpointRecord) error
}

type nopCheckpointIndex struct{}

func (nopCheckpointIndex) IndexCheckpoint(context.Context, CheckpointRecord) error { return nil }

// Loop runs the prune and checkpoint timers: two independent tickers, at
// pruneInterval and checkpointInterval, that each iterate every guild and
// tolerate one guild's failure without affecting the others.
type Loop struct {
	engine   *engine.Engine
	store    store.Store
	relayKey *cryptoid.PrivateKey
	relayID  string
	logger   *slog.Logger
	metrics  Metrics

	checkpointIndex CheckpointIndex

	pruneInterval      time.Duration
	checkpointInterval time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// New builds a Loop. relayKey signs the CHECKPOINT events the loop emits.
func New(e *engine.Engine, st store.Store, relayKey *cryptoid.PrivateKey, pruneInterval, checkpointInterval time.Duration, logger *slog.Logger, metrics Metrics) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Loop{
		engine:             e,
		store:              st,
		relayKey:           relayKey,
		relayID:            cryptoid.DerivePublic(relayKey),
		logger:             logger.With("component", "retention"),
		metrics:            metrics,
		checkpointIndex:    nopCheckpointIndex{},
		pruneInterval:      pruneInterval,
		checkpointInterval: checkpointInterval,
		done:               make(chan struct{}),
	}
}

// SetCheckpointIndex wires a persistent index that records every checkpoint
// the loop emits. Without it, checkpoints are still appended to the guild's
// log but nothing outside the log remembers where they landed.
func (l *Loop) SetCheckpointIndex(idx CheckpointIndex) {
	if idx == nil {
		idx = nopCheckpointIndex{}
	}
	l.checkpointIndex = idx
}

// Start launches the prune and checkpoint goroutines. Stop must be called
// to release them.
func (l *Loop) Start() {
	l.wg.Add(2)
	go l.runTimer(l.pruneInterval, l.runPrune)
	go l.runTimer(l.checkpointInterval, l.runCheckpoint)
}

// Stop signals both loops to exit and waits for them to finish their
// current iteration.
func (l *Loop) Stop() {
	close(l.done)
	l.wg.Wait()
}

// TriggerPrune runs one prune pass over a single guild outside the normal
// timer cadence, for the admin surface's on-demand endpoint.
func (l *Loop) TriggerPrune(ctx context.Context, guildID string) {
	l.pruneGuild(ctx, guildID)
}

// TriggerCheckpoint runs one checkpoint pass over a single guild outside
// the normal timer cadence, for the admin surface's on-demand endpoint.
func (l *Loop) TriggerCheckpoint(ctx context.Context, guildID string) {
	l.checkpointGuild(ctx, guildID)
}

func (l *Loop) runTimer(interval time.Duration, iterate func(ctx context.Context)) {
	defer l.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Iterations that overlap a prior run are skipped rather than
			// queued: a slow iteration should not build up backlog.
			iterate(context.Background())
		case <-l.done:
			return
		}
	}
}

func (l *Loop) runPrune(ctx context.Context) {
	guildIDs, err := l.store.GetGuildIDs(ctx)
	if err != nil {
		l.logger.Error("prune: listing guilds failed", "err", err)
		return
	}
	for _, guildID := range guildIDs {
		l.pruneGuild(ctx, guildID)
	}
}

func (l *Loop) pruneGuild(ctx context.Context, guildID string) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("prune: panic in guild, continuing", "guild_id", guildID, "panic", r)
		}
	}()

	st, err := l.engine.StateAt(ctx, guildID)
	if err != nil {
		l.logger.Error("prune: loading state failed", "guild_id", guildID, "err", err)
		return
	}
	log, err := l.store.GetLog(ctx, guildID)
	if err != nil {
		l.logger.Error("prune: reading log failed", "guild_id", guildID, "err", err)
		return
	}

	now := time.Now().UnixMilli()
	pruned := 0
	for _, ev := range log {
		msg, ok := ev.Body.(eventlog.MessageBody)
		if !ok {
			continue
		}
		channel, ok := st.Channels[msg.ChannelID]
		if !ok || channel.Retention == nil {
			continue
		}
		if !expired(*channel.Retention, now, ev.CreatedAt) {
			continue
		}
		if err := l.store.DeleteEvent(ctx, guildID, ev.Seq); err != nil {
			l.logger.Error("prune: delete failed", "guild_id", guildID, "seq", ev.Seq, "err", err)
			continue
		}
		pruned++
	}

	if pruned > 0 {
		l.logger.Info("pruned expired messages", "guild_id", guildID, "count", pruned)
	}
	l.metrics.ObservePrune(guildID, pruned)
}

func expired(r eventlog.Retention, nowMillis, createdAt int64) bool {
	switch r.Mode {
	case eventlog.RetentionTTL:
		return nowMillis-createdAt > r.Seconds*1000
	case eventlog.RetentionRollingWindow:
		return nowMillis-createdAt > int64(r.Days)*24*3600*1000
	default: // infinite, or unset
		return false
	}
}

func (l *Loop) runCheckpoint(ctx context.Context) {
	guildIDs, err := l.store.GetGuildIDs(ctx)
	if err != nil {
		l.logger.Error("checkpoint: listing guilds failed", "err", err)
		return
	}
	for _, guildID := range guildIDs {
		l.checkpointGuild(ctx, guildID)
	}
}

func (l *Loop) checkpointGuild(ctx context.Context, guildID string) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("checkpoint: panic in guild, continuing", "guild_id", guildID, "panic", r)
		}
	}()

	last, err := l.store.GetLastEvent(ctx, guildID)
	if err != nil {
		l.logger.Error("checkpoint: reading head failed", "guild_id", guildID, "err", err)
		return
	}
	if last.Body.Type() == eventlog.TypeCheckpoint {
		return
	}

	st, err := l.engine.StateAt(ctx, guildID)
	if err != nil {
		l.logger.Error("checkpoint: loading state failed", "guild_id", guildID, "err", err)
		return
	}

	serialized, err := state.Serialize(st)
	if err != nil {
		l.logger.Error("checkpoint: serializing state failed", "guild_id", guildID, "err", err)
		return
	}
	rootHash, err := canon.Hash(serialized)
	if err != nil {
		l.logger.Error("checkpoint: hashing state failed", "guild_id", guildID, "err", err)
		return
	}

	body := eventlog.CheckpointBody{
		GuildID:  guildID,
		Seq:      last.Seq + 1,
		RootHash: rootHash,
		State:    serialized,
	}
	createdAt := time.Now().UnixMilli()
	sig, err := eventlog.Sign(l.relayKey, body, l.relayID, createdAt)
	if err != nil {
		l.logger.Error("checkpoint: signing failed", "guild_id", guildID, "err", err)
		return
	}

	published, err := l.engine.Publish(ctx, body, l.relayID, sig, createdAt)
	if err != nil {
		l.logger.Error("checkpoint: publish failed", "guild_id", guildID, "err", err)
		return
	}

	if err := l.checkpointIndex.IndexCheckpoint(ctx, CheckpointRecord{
		GuildID:   guildID,
		Seq:       body.Seq,
		EventID:   published.ID,
		RootHash:  rootHash,
		CreatedAt: time.UnixMilli(createdAt),
	}); err != nil {
		l.logger.Error("checkpoint: indexing failed", "guild_id", guildID, "err", err)
	}

	l.logger.Info("emitted checkpoint", "guild_id", guildID, "seq", body.Seq)
	l.metrics.ObserveCheckpoint(guildID)
}
