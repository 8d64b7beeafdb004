package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestAllTypes_RoundTripThroughUnmarshalBody guards against a new Body
// implementation being added to body.go without a matching case in
// UnmarshalBody's switch — AllTypes is the single registry both this test
// and state/validate's own exhaustiveness tests check against.
func TestAllTypes_RoundTripThroughUnmarshalBody(t *testing.T) {
	zeroValues := map[string]Body{
		TypeGuildCreate:           GuildCreateBody{},
		TypeChannelCreate:         ChannelCreateBody{},
		TypeEphemeralPolicyUpdate: EphemeralPolicyUpdateBody{},
		TypeRoleAssign:            RoleAssignBody{},
		TypeRoleRevoke:            RoleRevokeBody{},
		TypeBanUser:               BanUserBody{},
		TypeUnbanUser:             UnbanUserBody{},
		TypeMessage:               MessageBody{},
		TypeEditMessage:           EditMessageBody{},
		TypeDeleteMessage:         DeleteMessageBody{},
		TypeForkFrom:              ForkFromBody{},
		TypeCheckpoint:            CheckpointBody{},
	}

	assert.Len(t, AllTypes, len(zeroValues), "AllTypes registry drifted from the zero-value fixture map")

	for _, typeTag := range AllTypes {
		body, ok := zeroValues[typeTag]
		if !assert.True(t, ok, "type %q has no fixture; add one and a case in UnmarshalBody", typeTag) {
			continue
		}
		raw, err := MarshalBody(body)
		assert.NoError(t, err)
		decoded, err := UnmarshalBody(raw)
		assert.NoError(t, err)
		assert.Equal(t, typeTag, decoded.Type())
	}
}
