package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/cryptoid"
)

type chainBuilder struct {
	t       *testing.T
	priv    *cryptoid.PrivateKey
	author  string
	guildID string
	events  []*Event
}

func newChainBuilder(t *testing.T) *chainBuilder {
	t.Helper()
	priv, genesis := mustGenesis(t)
	return &chainBuilder{
		t:       t,
		priv:    priv,
		author:  genesis.Author,
		guildID: genesis.ID,
		events:  []*Event{genesis},
	}
}

func (c *chainBuilder) append(body Body, createdAt int64) *Event {
	c.t.Helper()
	prev := c.events[len(c.events)-1]
	sig, err := Sign(c.priv, body, c.author, createdAt)
	require.NoError(c.t, err)

	prevHash := prev.ID
	e := &Event{
		Seq:       prev.Seq + 1,
		PrevHash:  &prevHash,
		CreatedAt: createdAt,
		Author:    c.author,
		Body:      body,
		Signature: sig,
	}
	id, err := ComputeEventID(e)
	require.NoError(c.t, err)
	e.ID = id
	c.events = append(c.events, e)
	return e
}

func TestValidateChain_AcceptsWellFormedLog(t *testing.T) {
	c := newChainBuilder(t)
	c.append(ChannelCreateBody{GuildID: c.guildID, ChannelID: "chan-1", Name: "general", Kind: ChannelText}, 1001)
	c.append(MessageBody{GuildID: c.guildID, ChannelID: "chan-1", MessageID: "msg-1", Content: "hello"}, 1002)

	assert.NoError(t, ValidateChain(c.events))
}

func TestValidateChain_RejectsBrokenPrevHash(t *testing.T) {
	c := newChainBuilder(t)
	c.append(ChannelCreateBody{GuildID: c.guildID, ChannelID: "chan-1", Name: "general", Kind: ChannelText}, 1001)

	bogus := "not-the-right-hash"
	c.events[1].PrevHash = &bogus

	assert.Error(t, ValidateChain(c.events))
}

func TestValidateChain_RejectsNonDenseSeq(t *testing.T) {
	c := newChainBuilder(t)
	c.append(ChannelCreateBody{GuildID: c.guildID, ChannelID: "chan-1", Name: "general", Kind: ChannelText}, 1001)
	c.events[1].Seq = 5

	assert.Error(t, ValidateChain(c.events))
}

func TestValidateChain_RejectsTamperedID(t *testing.T) {
	c := newChainBuilder(t)
	c.events[0].ID = "0000000000000000000000000000000000000000000000000000000000000"

	assert.Error(t, ValidateChain(c.events))
}

func TestValidateChain_EmptyLogIsValid(t *testing.T) {
	assert.NoError(t, ValidateChain(nil))
}

func TestValidateChainRelaxed_AcceptsPrunedMessages(t *testing.T) {
	c := newChainBuilder(t)
	c.append(ChannelCreateBody{GuildID: c.guildID, ChannelID: "chan-1", Name: "general", Kind: ChannelText}, 1001)
	c.append(MessageBody{GuildID: c.guildID, ChannelID: "chan-1", MessageID: "msg-1", Content: "hello"}, 1002)
	c.append(MessageBody{GuildID: c.guildID, ChannelID: "chan-1", MessageID: "msg-2", Content: "world"}, 1003)

	// prune the middle message: remaining events have a seq gap, and
	// the surviving event's prevHash still points at the pruned event,
	// which is expected and must not be treated as tampering.
	pruned := []*Event{c.events[0], c.events[1], c.events[3]}

	assert.Error(t, ValidateChain(pruned), "strict validator must reject the seq gap")
	assert.NoError(t, ValidateChainRelaxed(pruned))
}

func TestValidateChainRelaxed_RejectsOutOfOrderSeq(t *testing.T) {
	c := newChainBuilder(t)
	c.append(ChannelCreateBody{GuildID: c.guildID, ChannelID: "chan-1", Name: "general", Kind: ChannelText}, 1001)

	reordered := []*Event{c.events[1], c.events[0]}
	assert.Error(t, ValidateChainRelaxed(reordered))
}
