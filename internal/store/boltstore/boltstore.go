// ABOUTME: bbolt-backed Store implementation, persisting the log to a single file
// ABOUTME: Keys follow guild:<hex>:seq:<10-digit zero-padded> with a guild:<hex>:head pointer

package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.etcd.io/bbolt"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/store"
)

var bucketName = []byte("events")

// Store persists guild logs to a single bbolt file, one ordered key-value
// bucket shared across all guilds. Keys are built so bbolt's natural
// lexicographic ordering doubles as seq ordering within a guild.
type Store struct {
	db *bbolt.DB
}

// Open creates or opens the bbolt file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: init bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func eventKey(guildID string, seq int64) []byte {
	return []byte(fmt.Sprintf("guild:%s:seq:%010d", guildID, seq))
}

func headKey(guildID string) []byte {
	return []byte(fmt.Sprintf("guild:%s:head", guildID))
}

func guildPrefix(guildID string) []byte {
	return []byte(fmt.Sprintf("guild:%s:seq:", guildID))
}

func (s *Store) Append(ctx context.Context, guildID string, event *eventlog.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("boltstore: marshal event: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if err := b.Put(eventKey(guildID, event.Seq), data); err != nil {
			return err
		}
		return b.Put(headKey(guildID), []byte(strconv.FormatInt(event.Seq, 10)))
	})
}

func (s *Store) GetLog(ctx context.Context, guildID string) ([]*eventlog.Event, error) {
	var out []*eventlog.Event
	prefix := guildPrefix(guildID)

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var e eventlog.Event
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("boltstore: unmarshal %s: %w", k, err)
			}
			out = append(out, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *Store) GetLastEvent(ctx context.Context, guildID string) (*eventlog.Event, error) {
	var head []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(headKey(guildID))
		if v == nil {
			return store.ErrNotFound
		}
		head = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	seq, err := strconv.ParseInt(string(head), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("boltstore: corrupt head pointer for guild %q: %w", guildID, err)
	}

	var e eventlog.Event
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(eventKey(guildID, seq))
		if v == nil {
			return fmt.Errorf("boltstore: head points at missing seq %d for guild %q: %w", seq, guildID, store.ErrNotFound)
		}
		return json.Unmarshal(v, &e)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) GetGuildIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, _ []byte) error {
			parts := strings.SplitN(string(k), ":", 4)
			if len(parts) >= 2 && parts[0] == "guild" {
				seen[parts[1]] = struct{}{}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) DeleteEvent(ctx context.Context, guildID string, seq int64) error {
	key := eventKey(guildID, seq)
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get(key) == nil {
			return fmt.Errorf("boltstore: guild %q seq %d: %w", guildID, seq, store.ErrNotFound)
		}
		if err := b.Delete(key); err != nil {
			return err
		}
		return reseatHeadIfNeeded(b, guildID, seq)
	})
}

// reseatHeadIfNeeded recomputes the head pointer when the deleted seq was
// the current head, walking backward to the nearest surviving event.
func reseatHeadIfNeeded(b *bbolt.Bucket, guildID string, deletedSeq int64) error {
	head := b.Get(headKey(guildID))
	if head == nil {
		return nil
	}
	headSeq, err := strconv.ParseInt(string(head), 10, 64)
	if err != nil || headSeq != deletedSeq {
		return nil
	}

	prefix := guildPrefix(guildID)
	c := b.Cursor()
	var lastKey []byte
	for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
		lastKey = k
	}
	if lastKey == nil {
		return b.Delete(headKey(guildID))
	}

	trimmed := strings.TrimPrefix(string(lastKey), string(prefix))
	seq, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return fmt.Errorf("boltstore: corrupt key suffix %q for guild %q: %w", trimmed, guildID, err)
	}
	return b.Put(headKey(guildID), []byte(strconv.FormatInt(seq, 10)))
}

func (s *Store) Close() error {
	return s.db.Close()
}
