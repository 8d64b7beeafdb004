// ABOUTME: JSON array frame codec: every wire message is [kind, payload]
// ABOUTME: Defines the core frame kinds and their payload shapes

package wire

import (
	"encoding/json"
	"fmt"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
)

// Frame kinds, normative per the protocol's core set.
const (
	KindHello    = "HELLO"
	KindHelloOK  = "HELLO_OK"
	KindError    = "ERROR"
	KindSub      = "SUB"
	KindUnsub    = "UNSUB"
	KindSnapshot = "SNAPSHOT"
	KindPublish  = "PUBLISH"
	KindEvent    = "EVENT"
)

// Error codes a relay may report in an ERROR frame.
const (
	ErrCodeInvalidFrame        = "INVALID_FRAME"
	ErrCodeInvalidSignature    = "INVALID_SIGNATURE"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeUnsupportedProtocol = "UNSUPPORTED_PROTOCOL"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// ProtocolVersion is the only protocol string a relay currently accepts.
const ProtocolVersion = "cgp/0.1"

type HelloPayload struct {
	Protocol      string `json:"protocol"`
	ClientName    string `json:"clientName,omitempty"`
	ClientVersion string `json:"clientVersion,omitempty"`
}

type HelloOKPayload struct {
	Protocol     string   `json:"protocol"`
	RelayName    string   `json:"relayName,omitempty"`
	RelayVersion string   `json:"relayVersion,omitempty"`
	Features     []string `json:"features,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type SubPayload struct {
	SubID    string   `json:"subId"`
	GuildID  string   `json:"guildId"`
	Channels []string `json:"channels,omitempty"`
	FromSeq  *int64   `json:"fromSeq,omitempty"`
	Limit    *int     `json:"limit,omitempty"`
}

type UnsubPayload struct {
	SubID string `json:"subId"`
}

type SnapshotPayload struct {
	SubID   string            `json:"subId"`
	GuildID string            `json:"guildId"`
	Events  []*eventlog.Event `json:"events"`
	EndSeq  int64             `json:"endSeq"`
}

type PublishPayload struct {
	Body      json.RawMessage `json:"body"`
	Author    string          `json:"author"`
	Signature string          `json:"signature"`
	CreatedAt int64           `json:"createdAt"`
}

// EncodeFrame renders [kind, payload] as the bytes sent over the wire.
func EncodeFrame(kind string, payload any) ([]byte, error) {
	data, err := json.Marshal([2]any{kind, payload})
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s frame: %w", kind, err)
	}
	return data, nil
}

// DecodeFrame splits a raw frame into its kind tag and raw payload bytes,
// deferring payload-specific unmarshalling to the caller.
func DecodeFrame(data []byte) (kind string, payload json.RawMessage, err error) {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", nil, fmt.Errorf("wire: frame is not a 2-element JSON array: %w", err)
	}
	if err := json.Unmarshal(raw[0], &kind); err != nil {
		return "", nil, fmt.Errorf("wire: frame kind is not a string: %w", err)
	}
	return kind, raw[1], nil
}

// ErrorFrame is a convenience constructor for an ["ERROR", {...}] frame.
func ErrorFrame(code, message string) ([]byte, error) {
	return EncodeFrame(KindError, ErrorPayload{Code: code, Message: message})
}
