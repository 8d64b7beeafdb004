package state

import "github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"

// ChannelInfo is the reduced view of a CHANNEL_CREATE/EPHEMERAL_POLICY_UPDATE pair.
type ChannelInfo struct {
	Name      string               `json:"name"`
	Kind      eventlog.ChannelKind `json:"kind"`
	Retention *eventlog.Retention  `json:"retention,omitempty"`
}

// RoleInfo is the reduced view of a role. The spec's event model has no
// role-creation event — roles are referenced by id directly from
// ROLE_ASSIGN/ROLE_REVOKE — so in practice this map stays empty; it is
// kept in State to match the documented shape and to give a home to any
// future ROLE_DEFINE-style event.
type RoleInfo struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// MemberInfo is the reduced view of a guild member.
type MemberInfo struct {
	Roles    map[string]struct{} `json:"roles"`
	Nickname string              `json:"nickname,omitempty"`
	JoinedAt int64               `json:"joinedAt"`
}

// BanInfo is the reduced view of a ban.
type BanInfo struct {
	Reason   string `json:"reason,omitempty"`
	BannedAt int64  `json:"bannedAt"`
}

// State is the reduced, structural view of one guild at some head. Values
// reachable from an unmodified field of a prior State are aliased rather
// than copied, so ApplyEvent does not re-copy the whole mapping set per
// event; every map field is therefore treated as immutable once a State
// is constructed, and a new map (not an in-place mutation) is built for
// whichever single field an event touches.
type State struct {
	GuildID     string                  `json:"guildId"`
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Access      eventlog.GuildAccess    `json:"access"`
	OwnerID     string                  `json:"ownerId"`
	CreatedAt   int64                   `json:"createdAt"`
	HeadSeq     int64                   `json:"headSeq"`
	HeadHash    string                  `json:"headHash"`
	Channels    map[string]ChannelInfo  `json:"channels"`
	Roles       map[string]RoleInfo     `json:"roles"`
	Members     map[string]MemberInfo   `json:"members"`
	Bans        map[string]BanInfo      `json:"bans"`
}

// HasRole reports whether userID holds roleID in this state.
func (s *State) HasRole(userID, roleID string) bool {
	member, ok := s.Members[userID]
	if !ok {
		return false
	}
	_, ok = member.Roles[roleID]
	return ok
}

// IsPrivileged reports whether userID may author a privileged event type:
// the owner, or a member holding the "owner" or "admin" role.
func (s *State) IsPrivileged(userID string) bool {
	if userID == s.OwnerID {
		return true
	}
	return s.HasRole(userID, "owner") || s.HasRole(userID, "admin")
}

// IsBanned reports whether userID is currently banned.
func (s *State) IsBanned(userID string) bool {
	_, ok := s.Bans[userID]
	return ok
}

// IsMember reports whether userID has a member record.
func (s *State) IsMember(userID string) bool {
	_, ok := s.Members[userID]
	return ok
}
