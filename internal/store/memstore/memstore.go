// ABOUTME: In-memory Store implementation, useful for tests and ephemeral relays
// ABOUTME: Keeps a seq-to-index side table per guild so DeleteEvent is O(1)

package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/store"
)

// guildLog holds one guild's events in ascending seq order, alongside a
// seq -> slice-index map so DeleteEvent does not need a linear scan.
type guildLog struct {
	events  []*eventlog.Event
	indexBy map[int64]int
}

// Store is an in-memory, process-lifetime-only Store.
type Store struct {
	mu     sync.RWMutex
	guilds map[string]*guildLog
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{guilds: make(map[string]*guildLog)}
}

func (s *Store) Append(ctx context.Context, guildID string, event *eventlog.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guilds[guildID]
	if !ok {
		g = &guildLog{indexBy: make(map[int64]int)}
		s.guilds[guildID] = g
	}

	cp := *event
	g.indexBy[event.Seq] = len(g.events)
	g.events = append(g.events, &cp)
	return nil
}

func (s *Store) GetLog(ctx context.Context, guildID string) ([]*eventlog.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.guilds[guildID]
	if !ok {
		return nil, nil
	}

	out := make([]*eventlog.Event, 0, len(g.events))
	for _, e := range g.events {
		if e == nil {
			continue // deleted
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) GetLastEvent(ctx context.Context, guildID string) (*eventlog.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.guilds[guildID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for i := len(g.events) - 1; i >= 0; i-- {
		if g.events[i] != nil {
			cp := *g.events[i]
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetGuildIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.guilds))
	for id := range s.guilds {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) DeleteEvent(ctx context.Context, guildID string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.guilds[guildID]
	if !ok {
		return fmt.Errorf("memstore: guild %q: %w", guildID, store.ErrNotFound)
	}
	idx, ok := g.indexBy[seq]
	if !ok {
		return fmt.Errorf("memstore: guild %q seq %d: %w", guildID, seq, store.ErrNotFound)
	}
	g.events[idx] = nil
	delete(g.indexBy, seq)
	return nil
}

func (s *Store) Close() error { return nil }
