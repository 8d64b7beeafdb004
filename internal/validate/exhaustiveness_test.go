package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
)

// TestPrivilegedTypes_MatchSpecSet pins privilegedTypes against the exact
// set the spec names, so adding a new event type doesn't silently change
// who may author it without a deliberate edit here.
func TestPrivilegedTypes_MatchSpecSet(t *testing.T) {
	want := map[string]bool{
		eventlog.TypeChannelCreate:         true,
		eventlog.TypeRoleAssign:            true,
		eventlog.TypeRoleRevoke:            true,
		eventlog.TypeBanUser:               true,
		eventlog.TypeUnbanUser:             true,
		eventlog.TypeEphemeralPolicyUpdate: true,
	}
	assert.Equal(t, want, privilegedTypes)
}

// TestValidateEvent_DoesNotPanicOnAnyKnownType is a smoke test that every
// registered body type can be passed through ValidateEvent without a
// missing-case panic (ValidateEvent type-switches on only one case,
// MessageBody, so this mostly guards against a future type-switch
// refactor dropping a case).
func TestValidateEvent_DoesNotPanicOnAnyKnownType(t *testing.T) {
	s := baseState()
	bodies := map[string]eventlog.Body{
		eventlog.TypeGuildCreate:           eventlog.GuildCreateBody{GuildID: "g"},
		eventlog.TypeChannelCreate:         eventlog.ChannelCreateBody{GuildID: "g"},
		eventlog.TypeEphemeralPolicyUpdate: eventlog.EphemeralPolicyUpdateBody{GuildID: "g"},
		eventlog.TypeRoleAssign:            eventlog.RoleAssignBody{GuildID: "g"},
		eventlog.TypeRoleRevoke:            eventlog.RoleRevokeBody{GuildID: "g"},
		eventlog.TypeBanUser:               eventlog.BanUserBody{GuildID: "g"},
		eventlog.TypeUnbanUser:             eventlog.UnbanUserBody{GuildID: "g"},
		eventlog.TypeMessage:               eventlog.MessageBody{GuildID: "g", ChannelID: "c1"},
		eventlog.TypeEditMessage:           eventlog.EditMessageBody{GuildID: "g"},
		eventlog.TypeDeleteMessage:         eventlog.DeleteMessageBody{GuildID: "g"},
		eventlog.TypeForkFrom:              eventlog.ForkFromBody{GuildID: "g"},
		eventlog.TypeCheckpoint:            eventlog.CheckpointBody{GuildID: "g"},
	}
	assert.Len(t, bodies, len(eventlog.AllTypes))

	for _, typeTag := range eventlog.AllTypes {
		body := bodies[typeTag]
		assert.NotPanics(t, func() {
			_ = ValidateEvent(s, &eventlog.Event{Author: "owner-1", Body: body})
		})
	}
}
