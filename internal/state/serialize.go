package state

import (
	"encoding/json"
	"fmt"
)

// Serialize renders state as the plain map[string]any shape stored in a
// CHECKPOINT body and hashed to produce its rootHash. Round-tripping
// through JSON keeps the representation identical to what canon.Hash
// would see if called directly on *State, while giving DeserializeState a
// generic map to read back from (checkpoint.state arrives over the wire
// as exactly this shape).
func Serialize(s *State) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("state: marshaling for serialization: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("state: decoding serialized state: %w", err)
	}
	return generic, nil
}

// DeserializeState rebuilds a *State from a checkpoint's embedded
// snapshot, the alternative bootstrap path to folding the whole log from
// genesis.
func DeserializeState(snapshot map[string]any) (*State, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("state: re-encoding snapshot: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("state: decoding snapshot: %w", err)
	}
	if s.Channels == nil {
		s.Channels = map[string]ChannelInfo{}
	}
	if s.Roles == nil {
		s.Roles = map[string]RoleInfo{}
	}
	if s.Members == nil {
		s.Members = map[string]MemberInfo{}
	}
	if s.Bans == nil {
		s.Bans = map[string]BanInfo{}
	}
	for id, m := range s.Members {
		if m.Roles == nil {
			m.Roles = map[string]struct{}{}
			s.Members[id] = m
		}
	}
	return &s, nil
}
