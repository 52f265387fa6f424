package internal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// RepositoryState is an opaque snapshot of a simulated repository.
// The engine never looks inside it except to check whether it holds commits.
// A zero RepositoryState marshals as JSON null.
type RepositoryState struct {
	raw json.RawMessage
}

// NewRepositoryState wraps a JSON document as a repository snapshot
func NewRepositoryState(data []byte) (*RepositoryState, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid repository state JSON")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to compact repository state: %w", err)
	}
	if buf.String() == "null" {
		return nil, nil
	}
	return &RepositoryState{raw: buf.Bytes()}, nil
}

// MustRepositoryState is NewRepositoryState for literals known to be valid
func MustRepositoryState(data string) *RepositoryState {
	s, err := NewRepositoryState([]byte(data))
	if err != nil {
		panic(err)
	}
	return s
}

// Raw returns a copy of the snapshot's JSON encoding
func (s *RepositoryState) Raw() json.RawMessage {
	if s == nil || len(s.raw) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(s.raw))
	copy(out, s.raw)
	return out
}

// UnmarshalInto decodes the snapshot into v
func (s *RepositoryState) UnmarshalInto(v interface{}) error {
	if s == nil || len(s.raw) == 0 {
		return nil
	}
	return json.Unmarshal(s.raw, v)
}

// HasCommits reports whether the snapshot has at least one commit
func (s *RepositoryState) HasCommits() bool {
	if s == nil || len(s.raw) == 0 {
		return false
	}
	var probe struct {
		Commits json.RawMessage `json:"commits"`
	}
	if err := json.Unmarshal(s.raw, &probe); err != nil {
		return false
	}
	var list []json.RawMessage
	if err := json.Unmarshal(probe.Commits, &list); err == nil {
		return len(list) > 0
	}
	var byID map[string]json.RawMessage
	if err := json.Unmarshal(probe.Commits, &byID); err == nil {
		return len(byID) > 0
	}
	return false
}

// Equal compares two snapshots by their compact JSON encoding
func (s *RepositoryState) Equal(other *RepositoryState) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	return bytes.Equal(s.raw, other.raw)
}

// String returns the compact JSON form
func (s *RepositoryState) String() string {
	if s == nil || len(s.raw) == 0 {
		return "null"
	}
	return string(s.raw)
}

// MarshalJSON implements json.Marshaler
func (s RepositoryState) MarshalJSON() ([]byte, error) {
	if len(s.raw) == 0 {
		return []byte("null"), nil
	}
	return s.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler
func (s *RepositoryState) UnmarshalJSON(data []byte) error {
	parsed, err := NewRepositoryState(data)
	if err != nil {
		return err
	}
	if parsed == nil {
		s.raw = nil
		return nil
	}
	s.raw = parsed.raw
	return nil
}

// MarshalYAML renders the snapshot as a plain YAML document
func (s RepositoryState) MarshalYAML() (interface{}, error) {
	if len(s.raw) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(s.raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode repository state: %w", err)
	}
	return v, nil
}

// UnmarshalYAML accepts any YAML value and stores it as JSON
func (s *RepositoryState) UnmarshalYAML(node *yaml.Node) error {
	var v interface{}
	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("failed to decode repository state: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode repository state: %w", err)
	}
	return s.UnmarshalJSON(data)
}
