package internal

import (
	"fmt"
	"strconv"
)

// CommandResponse is one entry of a session ledger
type CommandResponse struct {
	Command         string           `json:"command" yaml:"command"`
	Success         bool             `json:"success" yaml:"success"`
	Output          string           `json:"output" yaml:"output"`
	RepositoryState *RepositoryState `json:"repositoryState" yaml:"repository_state"`
}

// SessionKind distinguishes student attempts from instructor goal tracks
type SessionKind string

const (
	KindPractice SessionKind = "practice"
	KindGoal     SessionKind = "goal"
)

const (
	// GoalSessionID is the storage id shared by the process-wide goal session
	GoalSessionID = "goal-builder"
	// GlobalSessionID is the storage id of the anonymous practice session
	GlobalSessionID = "global"
)

// SessionIdentity names one session. Goal sessions are singletons;
// practice sessions are keyed by ID, with an empty ID meaning the
// anonymous session.
type SessionIdentity struct {
	Kind    SessionKind
	ID      string
	Version *int64
}

// PracticeSession returns the identity of a practice session
func PracticeSession(id string) SessionIdentity {
	return SessionIdentity{Kind: KindPractice, ID: id}
}

// GoalSession returns the identity of the goal session
func GoalSession() SessionIdentity {
	return SessionIdentity{Kind: KindGoal}
}

// WithVersion returns a copy of the identity pinned to a version
func (id SessionIdentity) WithVersion(v int64) SessionIdentity {
	id.Version = &v
	return id
}

// StorageID is the id used in storage keys
func (id SessionIdentity) StorageID() string {
	if id.Kind == KindGoal {
		return GoalSessionID
	}
	if id.ID == "" {
		return GlobalSessionID
	}
	return id.ID
}

// Key identifies the session in the memory tier. Versions share a key.
func (id SessionIdentity) Key() string {
	kind := id.Kind
	if kind == "" {
		kind = KindPractice
	}
	return string(kind) + "/" + id.StorageID()
}

// Remote reports whether the session is mirrored to the remote tier
func (id SessionIdentity) Remote() bool {
	return id.Kind != KindGoal && id.ID != ""
}

func (id SessionIdentity) String() string {
	if id.Version == nil {
		return id.Key()
	}
	return id.Key() + "@" + strconv.FormatInt(*id.Version, 10)
}

// VersionedState is the remote tier's canonical record
type VersionedState struct {
	State   *RepositoryState `json:"state"`
	Version int64            `json:"version"`
}

// ScriptStep is one step of a command script
type ScriptStep struct {
	Command        string `json:"command" yaml:"command"`
	Order          *int   `json:"order,omitempty" yaml:"order,omitempty"`
	ExpectedOutput string `json:"expectedOutput,omitempty" yaml:"expected_output,omitempty"`
}

// OrderValue returns the step order, treating a missing order as zero
func (s ScriptStep) OrderValue() int {
	if s.Order == nil {
		return 0
	}
	return *s.Order
}

// CommandScript is an exercise's scripted command sequence plus the
// target state it is expected to reach
type CommandScript struct {
	TargetState *RepositoryState `json:"targetState,omitempty" yaml:"target_state,omitempty"`
	Steps       []ScriptStep     `json:"commands" yaml:"commands"`
}

// HasTarget reports whether the script carries a target state
func (s *CommandScript) HasTarget() bool {
	return s != nil && s.TargetState != nil
}

// Len returns the number of steps, tolerating a nil script
func (s *CommandScript) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Steps)
}

func (s ScriptStep) String() string {
	if s.Order == nil {
		return s.Command
	}
	return fmt.Sprintf("%d:%s", *s.Order, s.Command)
}
