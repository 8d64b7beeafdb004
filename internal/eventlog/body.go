package eventlog

// Type tags identify an event body's concrete shape. A new event type must
// add both a tag here and a case in every switch over Body.Type() in this
// module and in state.ApplyEvent/validate.ValidateEvent — the compiler
// cannot catch a missed case on its own, so state/exhaustiveness_test.go
// and validate/exhaustiveness_test.go check the registry matches.
const (
	TypeGuildCreate            = "GUILD_CREATE"
	TypeChannelCreate          = "CHANNEL_CREATE"
	TypeEphemeralPolicyUpdate  = "EPHEMERAL_POLICY_UPDATE"
	TypeRoleAssign             = "ROLE_ASSIGN"
	TypeRoleRevoke             = "ROLE_REVOKE"
	TypeBanUser                = "BAN_USER"
	TypeUnbanUser              = "UNBAN_USER"
	TypeMessage                = "MESSAGE"
	TypeEditMessage            = "EDIT_MESSAGE"
	TypeDeleteMessage          = "DELETE_MESSAGE"
	TypeForkFrom               = "FORK_FROM"
	TypeCheckpoint             = "CHECKPOINT"
)

// AllTypes lists every known body type tag, used by exhaustiveness tests.
var AllTypes = []string{
	TypeGuildCreate,
	TypeChannelCreate,
	TypeEphemeralPolicyUpdate,
	TypeRoleAssign,
	TypeRoleRevoke,
	TypeBanUser,
	TypeUnbanUser,
	TypeMessage,
	TypeEditMessage,
	TypeDeleteMessage,
	TypeForkFrom,
	TypeCheckpoint,
}

// RetentionMode selects how long MESSAGE events survive in a channel.
type RetentionMode string

const (
	RetentionInfinite       RetentionMode = "infinite"
	RetentionRollingWindow  RetentionMode = "rolling-window"
	RetentionTTL            RetentionMode = "ttl"
)

// Retention describes a channel's message-pruning policy.
type Retention struct {
	Mode    RetentionMode `json:"mode"`
	Days    int           `json:"days,omitempty"`
	Seconds int64         `json:"seconds,omitempty"`
}

// ChannelKind selects a channel's transport/rendering semantics.
type ChannelKind string

const (
	ChannelText          ChannelKind = "text"
	ChannelVoice         ChannelKind = "voice"
	ChannelEphemeralText ChannelKind = "ephemeral-text"
)

// GuildAccess controls membership-gated validation for MESSAGE events.
type GuildAccess string

const (
	AccessPublic  GuildAccess = "public"
	AccessPrivate GuildAccess = "private"
)

// Body is the sealed tagged union of event payloads. Every concrete type
// in this file implements it via the unexported eventBody marker, so a
// Body can only ever be one of the types declared here.
type Body interface {
	Type() string
	eventBody()
}

// GuildCreateBody is the genesis event of a guild. body.GuildID must equal
// the event id of the genesis event itself.
type GuildCreateBody struct {
	GuildID     string      `json:"guildId"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Access      GuildAccess `json:"access"`
}

func (GuildCreateBody) Type() string { return TypeGuildCreate }
func (GuildCreateBody) eventBody()   {}

// ChannelCreateBody declares a new channel within a guild.
type ChannelCreateBody struct {
	GuildID   string      `json:"guildId"`
	ChannelID string      `json:"channelId"`
	Name      string      `json:"name"`
	Kind      ChannelKind `json:"kind"`
	Retention *Retention  `json:"retention,omitempty"`
}

func (ChannelCreateBody) Type() string { return TypeChannelCreate }
func (ChannelCreateBody) eventBody()   {}

// EphemeralPolicyUpdateBody replaces a channel's retention policy.
type EphemeralPolicyUpdateBody struct {
	GuildID   string    `json:"guildId"`
	ChannelID string    `json:"channelId"`
	Retention Retention `json:"retention"`
}

func (EphemeralPolicyUpdateBody) Type() string { return TypeEphemeralPolicyUpdate }
func (EphemeralPolicyUpdateBody) eventBody()   {}

// RoleAssignBody grants a role to a user.
type RoleAssignBody struct {
	GuildID string `json:"guildId"`
	UserID  string `json:"userId"`
	RoleID  string `json:"roleId"`
}

func (RoleAssignBody) Type() string { return TypeRoleAssign }
func (RoleAssignBody) eventBody()   {}

// RoleRevokeBody removes a role from a user.
type RoleRevokeBody struct {
	GuildID string `json:"guildId"`
	UserID  string `json:"userId"`
	RoleID  string `json:"roleId"`
}

func (RoleRevokeBody) Type() string { return TypeRoleRevoke }
func (RoleRevokeBody) eventBody()   {}

// BanUserBody bans a user from the guild.
type BanUserBody struct {
	GuildID string `json:"guildId"`
	UserID  string `json:"userId"`
	Reason  string `json:"reason,omitempty"`
}

func (BanUserBody) Type() string { return TypeBanUser }
func (BanUserBody) eventBody()   {}

// UnbanUserBody lifts a ban.
type UnbanUserBody struct {
	GuildID string `json:"guildId"`
	UserID  string `json:"userId"`
}

func (UnbanUserBody) Type() string { return TypeUnbanUser }
func (UnbanUserBody) eventBody()   {}

// MessageBody publishes a message to a channel. Content may be an opaque
// ciphertext produced by cryptoid.Seal; the reducer never inspects it.
type MessageBody struct {
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
	ReplyTo   string `json:"replyTo,omitempty"`
}

func (MessageBody) Type() string { return TypeMessage }
func (MessageBody) eventBody()   {}

// EditMessageBody replaces the rendered content of a prior message.
type EditMessageBody struct {
	GuildID    string `json:"guildId"`
	ChannelID  string `json:"channelId"`
	MessageID  string `json:"messageId"`
	NewContent string `json:"newContent"`
}

func (EditMessageBody) Type() string { return TypeEditMessage }
func (EditMessageBody) eventBody()   {}

// DeleteMessageBody tombstones a prior message.
type DeleteMessageBody struct {
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	Reason    string `json:"reason,omitempty"`
}

func (DeleteMessageBody) Type() string { return TypeDeleteMessage }
func (DeleteMessageBody) eventBody()   {}

// ForkFromBody anchors a new guild's log to a parent guild's log.
type ForkFromBody struct {
	GuildID        string `json:"guildId"`
	ParentGuildID  string `json:"parentGuildId"`
	ParentSeq      int64  `json:"parentSeq"`
	ParentRootHash string `json:"parentRootHash"`
	Note           string `json:"note,omitempty"`
}

func (ForkFromBody) Type() string { return TypeForkFrom }
func (ForkFromBody) eventBody()   {}

// CheckpointBody is a signed, serialized state snapshot authored by a relay.
type CheckpointBody struct {
	GuildID  string          `json:"guildId"`
	Seq      int64           `json:"seq"`
	RootHash string          `json:"rootHash"`
	State    map[string]any  `json:"state"`
}

func (CheckpointBody) Type() string { return TypeCheckpoint }
func (CheckpointBody) eventBody()   {}

// GuildIDOf extracts the guildId carried by any body, used by the engine
// and validator without a type switch at every call site.
func GuildIDOf(b Body) string {
	switch v := b.(type) {
	case GuildCreateBody:
		return v.GuildID
	case ChannelCreateBody:
		return v.GuildID
	case EphemeralPolicyUpdateBody:
		return v.GuildID
	case RoleAssignBody:
		return v.GuildID
	case RoleRevokeBody:
		return v.GuildID
	case BanUserBody:
		return v.GuildID
	case UnbanUserBody:
		return v.GuildID
	case MessageBody:
		return v.GuildID
	case EditMessageBody:
		return v.GuildID
	case DeleteMessageBody:
		return v.GuildID
	case ForkFromBody:
		return v.GuildID
	case CheckpointBody:
		return v.GuildID
	default:
		return ""
	}
}
