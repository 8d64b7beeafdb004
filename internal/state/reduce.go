package state

import (
	"fmt"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
)

// CreateInitialState seeds a guild's state from its genesis GUILD_CREATE
// event. It rejects any event that is not seq 0 or not a GUILD_CREATE.
func CreateInitialState(genesis *eventlog.Event) (*State, error) {
	if genesis.Seq != 0 {
		return nil, fmt.Errorf("state: genesis event must have seq 0, got %d", genesis.Seq)
	}
	body, ok := genesis.Body.(eventlog.GuildCreateBody)
	if !ok {
		return nil, fmt.Errorf("state: genesis event body must be GUILD_CREATE, got %s", genesis.Body.Type())
	}

	access := body.Access
	if access == "" {
		access = eventlog.AccessPublic
	}

	return &State{
		GuildID:     body.GuildID,
		Name:        body.Name,
		Description: body.Description,
		Access:      access,
		OwnerID:     genesis.Author,
		CreatedAt:   genesis.CreatedAt,
		HeadSeq:     0,
		HeadHash:    genesis.ID,
		Channels:    map[string]ChannelInfo{},
		Roles:       map[string]RoleInfo{},
		Members: map[string]MemberInfo{
			genesis.Author: {
				Roles:    map[string]struct{}{"owner": {}},
				JoinedAt: genesis.CreatedAt,
			},
		},
		Bans: map[string]BanInfo{},
	}, nil
}

// ApplyEvent folds one event into state, returning a new State. Unmodified
// mapping fields are aliased from the input state rather than copied.
// ApplyEvent is pure: it never mutates its input.
func ApplyEvent(s *State, e *eventlog.Event) (*State, error) {
	next := *s
	next.HeadSeq = e.Seq
	next.HeadHash = e.ID

	switch body := e.Body.(type) {
	case eventlog.GuildCreateBody:
		return nil, fmt.Errorf("state: GUILD_CREATE may only appear at seq 0, via CreateInitialState")

	case eventlog.ChannelCreateBody:
		channels := cloneChannels(s.Channels)
		channels[body.ChannelID] = ChannelInfo{Name: body.Name, Kind: body.Kind, Retention: body.Retention}
		next.Channels = channels

	case eventlog.EphemeralPolicyUpdateBody:
		existing, ok := s.Channels[body.ChannelID]
		if !ok {
			break // no-op: unknown channel
		}
		channels := cloneChannels(s.Channels)
		retention := body.Retention
		existing.Retention = &retention
		channels[body.ChannelID] = existing
		next.Channels = channels

	case eventlog.RoleAssignBody:
		members := cloneMembers(s.Members)
		member, ok := members[body.UserID]
		if !ok {
			member = MemberInfo{Roles: map[string]struct{}{}, JoinedAt: e.CreatedAt}
		} else {
			member.Roles = cloneRoleSet(member.Roles)
		}
		member.Roles[body.RoleID] = struct{}{}
		members[body.UserID] = member
		next.Members = members

	case eventlog.RoleRevokeBody:
		member, ok := s.Members[body.UserID]
		if !ok {
			break // no-op: unknown member
		}
		if _, hasRole := member.Roles[body.RoleID]; !hasRole {
			break // no-op: member lacks role
		}
		members := cloneMembers(s.Members)
		member.Roles = cloneRoleSet(member.Roles)
		delete(member.Roles, body.RoleID)
		members[body.UserID] = member
		next.Members = members

	case eventlog.BanUserBody:
		bans := cloneBans(s.Bans)
		bans[body.UserID] = BanInfo{Reason: body.Reason, BannedAt: e.CreatedAt}
		next.Bans = bans

		if _, wasMember := s.Members[body.UserID]; wasMember {
			members := cloneMembers(s.Members)
			delete(members, body.UserID)
			next.Members = members
		}

	case eventlog.UnbanUserBody:
		if _, banned := s.Bans[body.UserID]; !banned {
			break // no-op
		}
		bans := cloneBans(s.Bans)
		delete(bans, body.UserID)
		next.Bans = bans

	case eventlog.MessageBody, eventlog.EditMessageBody, eventlog.DeleteMessageBody:
		// Content events never touch structural state; rendering is done
		// by scanning the log.

	case eventlog.ForkFromBody:
		// Metadata only; headSeq/headHash already advanced above.

	case eventlog.CheckpointBody:
		// No-op on structural state; DeserializeState is the alternative
		// bootstrap path for a checkpoint's embedded snapshot.

	default:
		return nil, fmt.Errorf("state: unhandled event body type %q", e.Body.Type())
	}

	return &next, nil
}

func cloneChannels(m map[string]ChannelInfo) map[string]ChannelInfo {
	out := make(map[string]ChannelInfo, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneMembers(m map[string]MemberInfo) map[string]MemberInfo {
	out := make(map[string]MemberInfo, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneBans(m map[string]BanInfo) map[string]BanInfo {
	out := make(map[string]BanInfo, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneRoleSet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m)+1)
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
