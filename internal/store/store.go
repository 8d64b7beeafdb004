// ABOUTME: Store interface for guild event-log persistence
// ABOUTME: A passive sink: callers are responsible for chain/seq correctness before Append

package store

import (
	"context"
	"errors"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
)

// ErrNotFound is returned when a requested guild or event does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the abstract capability every guild log backing implements. It
// does not itself re-check the chain: callers (the sequencing engine) are
// responsible for handing Append events whose seq is exactly the next
// expected value.
type Store interface {
	// Append persists event as the next entry in guildID's log.
	Append(ctx context.Context, guildID string, event *eventlog.Event) error

	// GetLog returns guildID's full log in ascending seq order.
	GetLog(ctx context.Context, guildID string) ([]*eventlog.Event, error)

	// GetLastEvent returns the highest-seq event in guildID's log, or
	// ErrNotFound if the guild has no events.
	GetLastEvent(ctx context.Context, guildID string) (*eventlog.Event, error)

	// GetGuildIDs returns every guild id with at least one stored event.
	GetGuildIDs(ctx context.Context) ([]string, error)

	// DeleteEvent removes a single event, used only by retention pruning
	// of MESSAGE events. It leaves a gap in seq; the log is no longer a
	// strict chain (see eventlog.ValidateChainRelaxed).
	DeleteEvent(ctx context.Context, guildID string, seq int64) error

	// Close releases any resources held by the store.
	Close() error
}
