package validate

import (
	"fmt"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/state"
)

// ValidationError reports why the engine refused to append an event.
// Privilege failures carry a "permission denied" prefix in Message, which
// is what tells them apart from any other validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func permissionError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf("permission denied: "+format, args...)}
}

// privilegedTypes require the author to be the guild owner or hold the
// "owner" or "admin" role.
var privilegedTypes = map[string]bool{
	eventlog.TypeChannelCreate:         true,
	eventlog.TypeRoleAssign:            true,
	eventlog.TypeRoleRevoke:            true,
	eventlog.TypeBanUser:               true,
	eventlog.TypeUnbanUser:             true,
	eventlog.TypeEphemeralPolicyUpdate: true,
}

// ValidateEvent is invoked by the sequencing engine after signature
// verification and before append. s must be the guild state at the seq
// immediately preceding e.
func ValidateEvent(s *state.State, e *eventlog.Event) error {
	if privilegedTypes[e.Body.Type()] {
		if !s.IsPrivileged(e.Author) {
			return permissionError("%s requires owner or admin, author %s has neither", e.Body.Type(), e.Author)
		}
		return nil
	}

	if msg, ok := e.Body.(eventlog.MessageBody); ok {
		return validateMessage(s, msg, e.Author)
	}

	return nil
}

func validateMessage(s *state.State, msg eventlog.MessageBody, author string) error {
	if _, ok := s.Channels[msg.ChannelID]; !ok {
		return &ValidationError{Message: fmt.Sprintf("unknown channel %q", msg.ChannelID)}
	}
	if s.IsBanned(author) {
		return permissionError("author %s is banned from this guild", author)
	}
	if s.Access == eventlog.AccessPrivate && !s.IsMember(author) {
		return permissionError("author %s is not a member of this private guild", author)
	}
	return nil
}
