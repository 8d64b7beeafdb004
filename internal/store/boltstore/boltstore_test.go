package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/store"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mkEvent(seq int64) *eventlog.Event {
	return &eventlog.Event{
		ID:        "id",
		Seq:       seq,
		CreatedAt: 1,
		Author:    "author",
		Body:      eventlog.MessageBody{GuildID: "g", ChannelID: "c1", MessageID: "m", Content: "hi"},
		Signature: "sig",
	}
}

func TestAppend_GetLog_OrdersAscendingBySeq(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	require.NoError(t, s.Append(ctx, "g", mkEvent(2)))
	require.NoError(t, s.Append(ctx, "g", mkEvent(0)))
	require.NoError(t, s.Append(ctx, "g", mkEvent(1)))

	log, err := s.GetLog(ctx, "g")
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, []int64{0, 1, 2}, []int64{log[0].Seq, log[1].Seq, log[2].Seq})
}

func TestAppend_KeysDoNotCollideAcrossGuilds(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	require.NoError(t, s.Append(ctx, "g1", mkEvent(0)))
	require.NoError(t, s.Append(ctx, "g2", mkEvent(0)))

	log1, err := s.GetLog(ctx, "g1")
	require.NoError(t, err)
	log2, err := s.GetLog(ctx, "g2")
	require.NoError(t, err)
	assert.Len(t, log1, 1)
	assert.Len(t, log2, 1)
}

func TestGetLastEvent_TracksHeadPointer(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	require.NoError(t, s.Append(ctx, "g", mkEvent(0)))
	require.NoError(t, s.Append(ctx, "g", mkEvent(1)))

	last, err := s.GetLastEvent(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, int64(1), last.Seq)
}

func TestGetLastEvent_UnknownGuildReturnsErrNotFound(t *testing.T) {
	_, err := openTemp(t).GetLastEvent(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetGuildIDs_ListsDistinctGuilds(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	require.NoError(t, s.Append(ctx, "aa", mkEvent(0)))
	require.NoError(t, s.Append(ctx, "bb", mkEvent(0)))

	ids, err := s.GetGuildIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"aa", "bb"}, ids)
}

func TestDeleteEvent_RemovesEntryLeavesOthers(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	require.NoError(t, s.Append(ctx, "g", mkEvent(0)))
	require.NoError(t, s.Append(ctx, "g", mkEvent(1)))
	require.NoError(t, s.Append(ctx, "g", mkEvent(2)))

	require.NoError(t, s.DeleteEvent(ctx, "g", 1))

	log, err := s.GetLog(ctx, "g")
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, int64(0), log[0].Seq)
	assert.Equal(t, int64(2), log[1].Seq)
}

func TestDeleteEvent_ReseatsHeadWhenHeadDeleted(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	require.NoError(t, s.Append(ctx, "g", mkEvent(0)))
	require.NoError(t, s.Append(ctx, "g", mkEvent(1)))

	require.NoError(t, s.DeleteEvent(ctx, "g", 1))

	last, err := s.GetLastEvent(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, int64(0), last.Seq)
}

func TestDeleteEvent_LastEventDeletedLeavesNoHead(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	require.NoError(t, s.Append(ctx, "g", mkEvent(0)))
	require.NoError(t, s.DeleteEvent(ctx, "g", 0))

	_, err := s.GetLastEvent(ctx, "g")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteEvent_UnknownSeqReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	require.NoError(t, s.Append(ctx, "g", mkEvent(0)))

	assert.ErrorIs(t, s.DeleteEvent(ctx, "g", 99), store.ErrNotFound)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "relay.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Append(ctx, "g", mkEvent(0)))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	log, err := s2.GetLog(ctx, "g")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, int64(0), log[0].Seq)
}
