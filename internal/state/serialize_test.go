package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
)

func TestSerializeDeserialize_RoundTrips(t *testing.T) {
	s, err := CreateInitialState(genesisEvent(t, "owner-1"))
	require.NoError(t, err)
	s, err = ApplyEvent(s, &eventlog.Event{
		Seq: 1, ID: "e1", Author: "owner-1", CreatedAt: 1001,
		Body: eventlog.ChannelCreateBody{GuildID: s.GuildID, ChannelID: "c1", Name: "general", Kind: eventlog.ChannelText},
	})
	require.NoError(t, err)

	snapshot, err := Serialize(s)
	require.NoError(t, err)

	restored, err := DeserializeState(snapshot)
	require.NoError(t, err)

	reSerialized, err := Serialize(restored)
	require.NoError(t, err)
	assert.Equal(t, snapshot, reSerialized)
	assert.Equal(t, s.HeadSeq, restored.HeadSeq)
	assert.Equal(t, s.HeadHash, restored.HeadHash)
	assert.True(t, restored.HasRole("owner-1", "owner"))
}

func TestDeserializeState_FillsNilMaps(t *testing.T) {
	restored, err := DeserializeState(map[string]any{
		"guildId": "g", "ownerId": "owner-1", "headSeq": float64(0), "headHash": "h",
	})
	require.NoError(t, err)
	assert.NotNil(t, restored.Channels)
	assert.NotNil(t, restored.Roles)
	assert.NotNil(t, restored.Members)
	assert.NotNil(t, restored.Bans)
}
