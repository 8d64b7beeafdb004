package eventlog

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON emits the event with its body tagged by a "type" field, the
// wire shape the spec's frames use.
func (e Event) MarshalJSON() ([]byte, error) {
	bodyJSON, err := MarshalBody(e.Body)
	if err != nil {
		return nil, err
	}
	type wire struct {
		ID        string          `json:"id"`
		Seq       int64           `json:"seq"`
		PrevHash  *string         `json:"prevHash"`
		CreatedAt int64           `json:"createdAt"`
		Author    string          `json:"author"`
		Body      json.RawMessage `json:"body"`
		Signature string          `json:"signature"`
	}
	return json.Marshal(wire{
		ID:        e.ID,
		Seq:       e.Seq,
		PrevHash:  e.PrevHash,
		CreatedAt: e.CreatedAt,
		Author:    e.Author,
		Body:      bodyJSON,
		Signature: e.Signature,
	})
}

// UnmarshalJSON parses a wire event, dispatching its body to the concrete
// type named by body.type.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID        string          `json:"id"`
		Seq       int64           `json:"seq"`
		PrevHash  *string         `json:"prevHash"`
		CreatedAt int64           `json:"createdAt"`
		Author    string          `json:"author"`
		Body      json.RawMessage `json:"body"`
		Signature string          `json:"signature"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("eventlog: unmarshaling event: %w", err)
	}
	body, err := UnmarshalBody(wire.Body)
	if err != nil {
		return err
	}
	e.ID = wire.ID
	e.Seq = wire.Seq
	e.PrevHash = wire.PrevHash
	e.CreatedAt = wire.CreatedAt
	e.Author = wire.Author
	e.Body = body
	e.Signature = wire.Signature
	return nil
}

// MarshalBody renders a Body with its type tag injected, the shape every
// body takes on the wire and in canonicalized hashing input.
func MarshalBody(b Body) (json.RawMessage, error) {
	if b == nil {
		return nil, fmt.Errorf("eventlog: nil body")
	}
	fields, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("eventlog: marshaling body: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(fields, &generic); err != nil {
		return nil, fmt.Errorf("eventlog: re-decoding body: %w", err)
	}
	generic["type"] = b.Type()
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("eventlog: marshaling tagged body: %w", err)
	}
	return out, nil
}

// UnmarshalBody parses a tagged body into its concrete Go type.
func UnmarshalBody(data json.RawMessage) (Body, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("eventlog: reading body type: %w", err)
	}

	switch tag.Type {
	case TypeGuildCreate:
		var b GuildCreateBody
		if err := unmarshalInto(data, &b); err != nil {
			return nil, err
		}
		return b, nil
	case TypeChannelCreate:
		var b ChannelCreateBody
		if err := unmarshalInto(data, &b); err != nil {
			return nil, err
		}
		return b, nil
	case TypeEphemeralPolicyUpdate:
		var b EphemeralPolicyUpdateBody
		if err := unmarshalInto(data, &b); err != nil {
			return nil, err
		}
		return b, nil
	case TypeRoleAssign:
		var b RoleAssignBody
		if err := unmarshalInto(data, &b); err != nil {
			return nil, err
		}
		return b, nil
	case TypeRoleRevoke:
		var b RoleRevokeBody
		if err := unmarshalInto(data, &b); err != nil {
			return nil, err
		}
		return b, nil
	case TypeBanUser:
		var b BanUserBody
		if err := unmarshalInto(data, &b); err != nil {
			return nil, err
		}
		return b, nil
	case TypeUnbanUser:
		var b UnbanUserBody
		if err := unmarshalInto(data, &b); err != nil {
			return nil, err
		}
		return b, nil
	case TypeMessage:
		var b MessageBody
		if err := unmarshalInto(data, &b); err != nil {
			return nil, err
		}
		return b, nil
	case TypeEditMessage:
		var b EditMessageBody
		if err := unmarshalInto(data, &b); err != nil {
			return nil, err
		}
		return b, nil
	case TypeDeleteMessage:
		var b DeleteMessageBody
		if err := unmarshalInto(data, &b); err != nil {
			return nil, err
		}
		return b, nil
	case TypeForkFrom:
		var b ForkFromBody
		if err := unmarshalInto(data, &b); err != nil {
			return nil, err
		}
		return b, nil
	case TypeCheckpoint:
		var b CheckpointBody
		if err := unmarshalInto(data, &b); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("eventlog: unknown body type %q", tag.Type)
	}
}

func unmarshalInto[T any](data json.RawMessage, out *T) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("eventlog: decoding body: %w", err)
	}
	return nil
}
