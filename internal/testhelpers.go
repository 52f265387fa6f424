package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrServiceDown is returned by fakes configured to fail
var ErrServiceDown = errors.New("service unavailable")

// ExecuteCall records one call made to FakeCommandService
type ExecuteCall struct {
	Command string
	State   *RepositoryState
}

// FakeCommandService is a deterministic in-process stand-in for the
// execution service. Each successful command appends a commit named after
// the command to the incoming state; the reset command starts from an
// empty repository.
type FakeCommandService struct {
	mu        sync.Mutex
	calls     []ExecuteCall
	failAll   bool
	failOn    map[string]bool
	resetWith string
}

// NewFakeCommandService creates a fake that treats resetCommand as init
func NewFakeCommandService(resetCommand string) *FakeCommandService {
	return &FakeCommandService{resetWith: resetCommand, failOn: make(map[string]bool)}
}

// FailAll makes every call fail
func (f *FakeCommandService) FailAll(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = fail
}

// FailOn makes calls for command fail
func (f *FakeCommandService) FailOn(command string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[command] = true
}

// Calls returns the calls received so far
func (f *FakeCommandService) Calls() []ExecuteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ExecuteCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// ExecuteCommand implements CommandService
func (f *FakeCommandService) ExecuteCommand(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ExecuteCall{Command: req.Command, State: req.RepositoryState})
	fail := f.failAll || f.failOn[req.Command]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ExecuteResult{}, err
	}
	if fail {
		return ExecuteResult{}, ErrServiceDown
	}

	if req.Command == f.resetWith {
		return ExecuteResult{
			Success:         true,
			Output:          "Initialized empty Git repository",
			RepositoryState: FakeRepositoryState(),
		}, nil
	}
	if req.RepositoryState == nil {
		return ExecuteResult{Success: false, Output: "fatal: not a git repository"}, nil
	}
	if !strings.HasPrefix(req.Command, "git commit") {
		return ExecuteResult{Success: true, Output: "ok: " + req.Command, RepositoryState: req.RepositoryState}, nil
	}
	next, err := fakeCommit(req.RepositoryState, req.Command)
	if err != nil {
		return ExecuteResult{}, err
	}
	return ExecuteResult{Success: true, Output: "[main] " + req.Command, RepositoryState: next}, nil
}

// FakeRepositoryState returns an empty repository snapshot
func FakeRepositoryState(commits ...string) *RepositoryState {
	quoted := make([]string, len(commits))
	for i, c := range commits {
		quoted[i] = fmt.Sprintf(`{"id":"c%d","message":%q}`, i+1, c)
	}
	return MustRepositoryState(`{"commits":[` + strings.Join(quoted, ",") + `],"head":"main"}`)
}

func fakeCommit(state *RepositoryState, command string) (*RepositoryState, error) {
	var repo struct {
		Commits []struct {
			ID      string `json:"id"`
			Message string `json:"message"`
		} `json:"commits"`
	}
	if err := state.UnmarshalInto(&repo); err != nil {
		return nil, err
	}
	messages := make([]string, 0, len(repo.Commits)+1)
	for _, c := range repo.Commits {
		messages = append(messages, c.Message)
	}
	messages = append(messages, command)
	return FakeRepositoryState(messages...), nil
}

// UpsertCall records one upsert received by FakeRemote
type UpsertCall struct {
	SessionID string
	State     *RepositoryState
	Version   int64
}

// FakeRemote is an in-memory remote tier that bumps the version on every
// upsert
type FakeRemote struct {
	mu      sync.Mutex
	records map[string]VersionedState
	upserts []UpsertCall
	removed []string
	fail    bool
	// NextVersion, when set, decides the version returned by an upsert
	NextVersion func(sent, stored int64) int64
}

// NewFakeRemote creates an empty fake remote tier
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{records: make(map[string]VersionedState)}
}

// Fail makes every call fail
func (f *FakeRemote) Fail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

// Put seeds a record
func (f *FakeRemote) Put(sessionID string, state *RepositoryState, version int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[sessionID] = VersionedState{State: state, Version: version}
}

// Record returns the stored record for sessionID
func (f *FakeRemote) Record(sessionID string) (VersionedState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vs, ok := f.records[sessionID]
	return vs, ok
}

// Upserts returns the upserts received so far
func (f *FakeRemote) Upserts() []UpsertCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]UpsertCall, len(f.upserts))
	copy(out, f.upserts)
	return out
}

// Removed returns the session ids passed to Remove
func (f *FakeRemote) Removed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.removed))
	copy(out, f.removed)
	return out
}

// FetchState implements RemoteTier
func (f *FakeRemote) FetchState(ctx context.Context) (*RepositoryState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, ErrServiceDown
	}
	return f.records[GlobalSessionID].State, nil
}

// FetchVersioned implements RemoteTier
func (f *FakeRemote) FetchVersioned(ctx context.Context, sessionID string) (VersionedState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return VersionedState{}, ErrServiceDown
	}
	return f.records[sessionID], nil
}

// Upsert implements RemoteTier
func (f *FakeRemote) Upsert(ctx context.Context, sessionID string, state *RepositoryState, version int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, UpsertCall{SessionID: sessionID, State: state, Version: version})
	if f.fail {
		return 0, ErrServiceDown
	}
	stored := f.records[sessionID].Version
	next := stored + 1
	if f.NextVersion != nil {
		next = f.NextVersion(version, stored)
	}
	f.records[sessionID] = VersionedState{State: state, Version: next}
	return next, nil
}

// Remove implements RemoteTier
func (f *FakeRemote) Remove(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, sessionID)
	if f.fail {
		return ErrServiceDown
	}
	delete(f.records, sessionID)
	return nil
}

// RecordingLayout is a LayoutResetter that remembers which sessions it reset
type RecordingLayout struct {
	mu    sync.Mutex
	Reset []string
	Panic bool
}

// ResetLayout implements LayoutResetter
func (r *RecordingLayout) ResetLayout(id SessionIdentity) {
	r.mu.Lock()
	r.Reset = append(r.Reset, id.Key())
	panicking := r.Panic
	r.mu.Unlock()
	if panicking {
		panic("layout reset failed")
	}
}
