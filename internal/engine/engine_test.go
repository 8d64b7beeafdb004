package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/cryptoid"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/store/memstore"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/validate"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/wire"
)

// genesisGuildID computes the guildId a GUILD_CREATE event must carry: its
// own eventual id, assuming the engine will assign it seq 0 and a nil
// prevHash (true for the first event in any guild).
func genesisGuildID(t *testing.T, priv *cryptoid.PrivateKey, author string, createdAt int64) (string, string) {
	t.Helper()
	body := eventlog.GuildCreateBody{Name: "Test Guild", Access: eventlog.AccessPublic}
	sig, err := eventlog.Sign(priv, body, author, createdAt)
	require.NoError(t, err)
	e := &eventlog.Event{Seq: 0, CreatedAt: createdAt, Author: author, Body: body, Signature: sig}
	id, err := eventlog.ComputeEventID(e)
	require.NoError(t, err)

	body.GuildID = id
	sig, err = eventlog.Sign(priv, body, author, createdAt)
	require.NoError(t, err)
	return id, sig
}

func newTestEngine() *Engine {
	st := memstore.New()
	b := wire.NewBroadcaster(nil)
	return New(st, b, nil, nil)
}

func TestPublish_GenesisCreatesGuild(t *testing.T) {
	e := newTestEngine()
	priv, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	author := cryptoid.DerivePublic(priv)

	guildID, sig := genesisGuildID(t, priv, author, 1000)
	body := eventlog.GuildCreateBody{GuildID: guildID, Name: "Test Guild", Access: eventlog.AccessPublic}

	ev, err := e.Publish(context.Background(), body, author, sig, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ev.Seq)
	assert.Nil(t, ev.PrevHash)
	assert.Equal(t, guildID, ev.ID)
}

func TestPublish_RejectsNonGenesisFirstEvent(t *testing.T) {
	e := newTestEngine()
	priv, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	author := cryptoid.DerivePublic(priv)

	body := eventlog.MessageBody{GuildID: "nonexistent", ChannelID: "c1", MessageID: "m1", Content: "hi"}
	sig, err := eventlog.Sign(priv, body, author, 1000)
	require.NoError(t, err)

	_, err = e.Publish(context.Background(), body, author, sig, 1000)
	require.Error(t, err)
	var verr *validate.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestPublish_RejectsInvalidSignature(t *testing.T) {
	e := newTestEngine()
	priv, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	author := cryptoid.DerivePublic(priv)

	body := eventlog.GuildCreateBody{GuildID: "whatever", Name: "G"}
	_, err = e.Publish(context.Background(), body, author, "not-a-real-signature", 1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, cryptoid.ErrInvalidSignature)
}

func TestPublish_AssignsIncrementingSeqAndPrevHash(t *testing.T) {
	e := newTestEngine()
	priv, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	author := cryptoid.DerivePublic(priv)

	guildID, sig := genesisGuildID(t, priv, author, 1000)
	genesis, err := e.Publish(context.Background(), eventlog.GuildCreateBody{GuildID: guildID, Name: "Test Guild", Access: eventlog.AccessPublic}, author, sig, 1000)
	require.NoError(t, err)

	chBody := eventlog.ChannelCreateBody{GuildID: guildID, ChannelID: "c1", Name: "general"}
	chSig, err := eventlog.Sign(priv, chBody, author, 1001)
	require.NoError(t, err)

	chEvent, err := e.Publish(context.Background(), chBody, author, chSig, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(1), chEvent.Seq)
	require.NotNil(t, chEvent.PrevHash)
	assert.Equal(t, genesis.ID, *chEvent.PrevHash)
}

func TestPublish_RejectsPermissionDenied(t *testing.T) {
	e := newTestEngine()
	ownerPriv, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	owner := cryptoid.DerivePublic(ownerPriv)
	guildID, sig := genesisGuildID(t, ownerPriv, owner, 1000)
	_, err = e.Publish(context.Background(), eventlog.GuildCreateBody{GuildID: guildID, Name: "Test Guild", Access: eventlog.AccessPublic}, owner, sig, 1000)
	require.NoError(t, err)

	attackerPriv, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	attacker := cryptoid.DerivePublic(attackerPriv)
	body := eventlog.ChannelCreateBody{GuildID: guildID, ChannelID: "c1", Name: "general"}
	attackerSig, err := eventlog.Sign(attackerPriv, body, attacker, 1001)
	require.NoError(t, err)

	_, err = e.Publish(context.Background(), body, attacker, attackerSig, 1001)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission")

	log, err := e.Log(context.Background(), guildID)
	require.NoError(t, err)
	assert.Len(t, log, 1, "rejected event must not be appended")
}

func TestPublish_BroadcastsAppendedEventToSubscribers(t *testing.T) {
	e := newTestEngine()
	priv, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	author := cryptoid.DerivePublic(priv)
	guildID, sig := genesisGuildID(t, priv, author, 1000)

	ch, _ := e.broadcaster.Subscribe(context.Background(), guildID)

	ev, err := e.Publish(context.Background(), eventlog.GuildCreateBody{GuildID: guildID, Name: "Test Guild", Access: eventlog.AccessPublic}, author, sig, 1000)
	require.NoError(t, err)

	received := <-ch
	assert.Equal(t, ev.ID, received.ID)
}

func TestStateAt_RebuildsFromStoreWhenCacheCold(t *testing.T) {
	e := newTestEngine()
	priv, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	author := cryptoid.DerivePublic(priv)
	guildID, sig := genesisGuildID(t, priv, author, 1000)
	_, err = e.Publish(context.Background(), eventlog.GuildCreateBody{GuildID: guildID, Name: "Test Guild", Access: eventlog.AccessPublic}, author, sig, 1000)
	require.NoError(t, err)

	e.invalidateCache(guildID)

	st, err := e.StateAt(context.Background(), guildID)
	require.NoError(t, err)
	assert.Equal(t, guildID, st.GuildID)
	assert.Equal(t, author, st.OwnerID)
}

func TestPublish_ConcurrentMessagesYieldDenseSeqNoDuplicates(t *testing.T) {
	e := newTestEngine()
	ownerPriv, err := cryptoid.GenerateKey()
	require.NoError(t, err)
	owner := cryptoid.DerivePublic(ownerPriv)
	guildID, sig := genesisGuildID(t, ownerPriv, owner, 1000)
	_, err = e.Publish(context.Background(), eventlog.GuildCreateBody{GuildID: guildID, Name: "Test Guild", Access: eventlog.AccessPublic}, owner, sig, 1000)
	require.NoError(t, err)

	chBody := eventlog.ChannelCreateBody{GuildID: guildID, ChannelID: "c1", Name: "general"}
	chSig, err := eventlog.Sign(ownerPriv, chBody, owner, 1001)
	require.NoError(t, err)
	_, err = e.Publish(context.Background(), chBody, owner, chSig, 1001)
	require.NoError(t, err)

	const n = 10
	results := make(chan *eventlog.Event, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			body := eventlog.MessageBody{GuildID: guildID, ChannelID: "c1", MessageID: "m", Content: "hi"}
			sig, err := eventlog.Sign(ownerPriv, body, owner, int64(2000+i))
			if err != nil {
				errs <- err
				return
			}
			ev, err := e.Publish(context.Background(), body, owner, sig, int64(2000+i))
			if err != nil {
				errs <- err
				return
			}
			results <- ev
		}(i)
	}

	seqs := make(map[int64]bool)
	for i := 0; i < n; i++ {
		select {
		case ev := <-results:
			require.False(t, seqs[ev.Seq], "duplicate seq %d", ev.Seq)
			seqs[ev.Seq] = true
		case err := <-errs:
			t.Fatalf("publish failed: %v", err)
		}
	}
	assert.Len(t, seqs, n)
	for i := int64(2); i < int64(2+n); i++ {
		assert.True(t, seqs[i], "missing seq %d", i)
	}
}
