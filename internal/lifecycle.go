package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// LayoutResetter lets the presentation layer drop session-scoped layout
// data when a session is torn down
type LayoutResetter interface {
	ResetLayout(id SessionIdentity)
}

// Source says where an opened session's ledger came from
type Source string

const (
	SourceEmpty      Source = "empty"
	SourceCache      Source = "cache"
	SourceReplay     Source = "replay"
	SourceMockReplay Source = "mock-replay"
	SourceRemote     Source = "remote"
)

// SyncFromServerCommand labels the entry written by SyncFromServer
const SyncFromServerCommand = "sync-from-server"

// Snapshot is a session's state as seen by a caller
type Snapshot struct {
	Identity     SessionIdentity
	Phase        Phase
	Source       Source
	Ledger       Ledger
	CurrentState *RepositoryState
	TargetState  *RepositoryState
	Version      int64
	HasVersion   bool
	Generation   uint64
}

// OpenOptions carries what an exercise definition supplies when a session
// is opened
type OpenOptions struct {
	Script *CommandScript
}

func (o OpenOptions) target() *RepositoryState {
	if o.Script == nil {
		return nil
	}
	return o.Script.TargetState
}

// ManagerConfig wires a Manager
type ManagerConfig struct {
	Store        *TieredStore
	Executor     *Executor
	Replay       *ReplayEngine
	Remote       RemoteTier
	Layout       LayoutResetter
	WriteTimeout time.Duration
}

type sessionEntry struct {
	phase      Phase
	generation uint64
	target     *RepositoryState
	source     Source
}

// Manager owns the open, run, reset and switch transitions of sessions.
// Commands within one session must be issued sequentially by the caller.
type Manager struct {
	store    *TieredStore
	executor *Executor
	replay   *ReplayEngine
	remote   RemoteTier
	layout   LayoutResetter
	writer   *remoteWriter

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewManager creates a manager. Remote and Layout are optional.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		store:    cfg.Store,
		executor: cfg.Executor,
		replay:   cfg.Replay,
		remote:   cfg.Remote,
		layout:   cfg.Layout,
		sessions: make(map[string]*sessionEntry),
	}
	if m.remote != nil {
		m.writer = newRemoteWriter(m.remote, m.store, m.Generation, cfg.WriteTimeout)
	}
	return m
}

// Store exposes the tiered store
func (m *Manager) Store() *TieredStore {
	return m.store
}

// Phase returns the session's lifecycle phase
func (m *Manager) Phase(id SessionIdentity) Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entryLocked(id).phase
}

// Generation returns the session's reset counter. Suspended operations
// compare it before committing a result.
func (m *Manager) Generation(id SessionIdentity) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entryLocked(id).generation
}

func (m *Manager) entryLocked(id SessionIdentity) *sessionEntry {
	e, ok := m.sessions[id.Key()]
	if !ok {
		e = &sessionEntry{phase: PhaseUninitialized, source: SourceEmpty}
		m.sessions[id.Key()] = e
	}
	return e
}

func (m *Manager) fire(id SessionIdentity, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entryLocked(id)
	next, err := Transition(e.phase, ev)
	if err != nil {
		return err
	}
	if ev == EventResetRequested && e.phase != PhaseResetting {
		e.generation++
	}
	e.phase = next
	return nil
}

// finish completes initialization unless the session was reset meanwhile
func (m *Manager) finish(id SessionIdentity, gen uint64, source Source, target *RepositoryState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entryLocked(id)
	if e.generation != gen {
		return ErrStaleResult
	}
	next, err := Transition(e.phase, EventInitialized)
	if err != nil {
		return err
	}
	e.phase = next
	e.source = source
	e.target = target
	return nil
}

func (m *Manager) isCurrent(id SessionIdentity, gen uint64) bool {
	return m.Generation(id) == gen
}

// Open initializes the session and returns its snapshot. The source of
// truth is chosen in order:
//  1. a target state and a script with an empty store: replay the script
//  2. any tier holds a ledger: adopt it
//  3. no target state: seed from the remote tier if it has state,
//     otherwise clear the session
func (m *Manager) Open(ctx context.Context, id SessionIdentity, opts OpenOptions) (Snapshot, error) {
	if err := m.fire(id, EventSessionOpened); err != nil {
		return Snapshot{}, err
	}
	gen := m.Generation(id)
	target := opts.target()

	existing := m.store.Read(ctx, id)

	switch {
	case target != nil && len(existing) == 0 && opts.Script.Len() > 0:
		result := m.replay.Rebuild(ctx, *opts.Script, nil)
		if !m.isCurrent(id, gen) {
			LogDebug("Discarding replay for %s: session was reset", id)
			return Snapshot{}, ErrStaleResult
		}
		if err := m.commitReplay(ctx, id, result); err != nil {
			LogWarn("Failed to persist replay for %s: %v", id, err)
		}
		source := SourceReplay
		if result.Mocked {
			source = SourceMockReplay
		}
		if err := m.finish(id, gen, source, target); err != nil {
			return Snapshot{}, err
		}

	case len(existing) > 0:
		state := CurrentState(existing)
		if err := m.store.Write(ctx, id, existing); err != nil {
			LogWarn("Failed to persist cached ledger for %s: %v", id, err)
		}
		m.store.SetState(id, state)
		m.scheduleUpsert(id, gen, state)
		if err := m.finish(id, gen, SourceCache, target); err != nil {
			return Snapshot{}, err
		}

	case target == nil:
		source := SourceEmpty
		seeded, err := m.seedFromRemote(ctx, id, gen)
		if errors.Is(err, ErrStaleResult) {
			return Snapshot{}, err
		}
		if seeded {
			source = SourceRemote
		} else if err := m.clearLocal(ctx, id); err != nil {
			LogWarn("Failed to clear %s: %v", id, err)
		}
		if err := m.finish(id, gen, source, nil); err != nil {
			return Snapshot{}, err
		}

	default:
		// A target with nothing to replay: no progress yet.
		if err := m.finish(id, gen, SourceEmpty, target); err != nil {
			return Snapshot{}, err
		}
	}

	return m.Snapshot(ctx, id), nil
}

// Rebuild resets the session and replays script into it
func (m *Manager) Rebuild(ctx context.Context, id SessionIdentity, script CommandScript) (Snapshot, error) {
	if err := m.Reset(ctx, id); err != nil {
		LogWarn("Reset before rebuild of %s was incomplete: %v", id, err)
	}
	if err := m.fire(id, EventSessionOpened); err != nil {
		return Snapshot{}, err
	}
	gen := m.Generation(id)

	result := m.replay.Rebuild(ctx, script, nil)
	if !m.isCurrent(id, gen) {
		return Snapshot{}, ErrStaleResult
	}
	if err := m.commitReplay(ctx, id, result); err != nil {
		LogWarn("Failed to persist replay for %s: %v", id, err)
	}

	source := SourceReplay
	if result.Mocked {
		source = SourceMockReplay
	}
	if err := m.finish(id, gen, source, script.TargetState); err != nil {
		return Snapshot{}, err
	}
	return m.Snapshot(ctx, id), nil
}

func (m *Manager) commitReplay(ctx context.Context, id SessionIdentity, result ReplayResult) error {
	m.store.SetState(id, result.FinalState)
	err := m.store.Write(ctx, id, result.Ledger)
	m.scheduleUpsert(id, m.Generation(id), result.FinalState)
	return err
}

// Run executes one command in the session and appends its response. An
// unopened session is opened first with no options. Executor failures
// are recorded as failed entries carrying the prior state, not returned.
func (m *Manager) Run(ctx context.Context, id SessionIdentity, command string) (CommandResponse, error) {
	switch m.Phase(id) {
	case PhaseUninitialized:
		if _, err := m.Open(ctx, id, OpenOptions{}); err != nil {
			return CommandResponse{}, fmt.Errorf("failed to open session: %w", err)
		}
	case PhaseReady:
	default:
		return CommandResponse{}, &TransitionError{From: m.Phase(id), Event: EventCommandCompleted}
	}

	gen := m.Generation(id)
	prior := m.store.State(id)
	if prior == nil {
		prior = CurrentState(m.store.Read(ctx, id))
		m.store.SetState(id, prior)
	}

	resp, err := m.executor.ExecuteCached(ctx, m.store, id, command)
	if !m.isCurrent(id, gen) {
		LogDebug("Discarding result of %q for %s: session was reset", command, id)
		return resp, ErrStaleResult
	}
	if err != nil {
		LogWarn("Command %q failed for %s: %v", command, id, err)
		resp = CommandResponse{
			Command:         command,
			Success:         false,
			Output:          errorOutput(err),
			RepositoryState: prior,
		}
	}

	ledger := Append(m.store.Read(ctx, id), resp)
	if werr := m.store.Write(ctx, id, ledger); werr != nil {
		LogWarn("Failed to persist ledger for %s: %v", id, werr)
	}

	if err == nil && resp.RepositoryState != nil {
		m.store.SetState(id, resp.RepositoryState)
		if !resp.RepositoryState.Equal(prior) {
			m.scheduleUpsert(id, gen, resp.RepositoryState)
		}
	} else if err != nil {
		m.store.SetState(id, prior)
	}

	if ferr := m.fire(id, EventCommandCompleted); ferr != nil {
		return resp, ferr
	}
	return resp, nil
}

func errorOutput(err error) string {
	var execErr *ExecutorError
	if errors.As(err, &execErr) && execErr.Err != nil {
		return execErr.Err.Error()
	}
	return err.Error()
}

// Reset tears the session down across every tier as one unit: memory,
// durable, remote and the layout collaborator. In-flight work for the
// session is invalidated by the generation bump. Errors from individual
// tiers are joined and returned after all tiers were attempted.
func (m *Manager) Reset(ctx context.Context, id SessionIdentity) error {
	if err := m.fire(id, EventResetRequested); err != nil {
		return err
	}

	var errs []error
	if err := m.clearLocal(ctx, id); err != nil {
		errs = append(errs, err)
	}
	if m.writer != nil && id.Remote() {
		if err := m.writer.remove(ctx, id); err != nil {
			LogWarn("Failed to remove remote state for %s: %v", id, err)
		}
	}

	m.mu.Lock()
	e := m.entryLocked(id)
	e.target = nil
	e.source = SourceEmpty
	m.mu.Unlock()

	if err := m.fire(id, EventResetCompleted); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// clearLocal clears memory, durable and layout data for the session
func (m *Manager) clearLocal(ctx context.Context, id SessionIdentity) error {
	err := m.store.Clear(ctx, id)
	m.resetLayout(id)
	return err
}

func (m *Manager) resetLayout(id SessionIdentity) {
	if m.layout == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			LogWarn("Layout reset for %s panicked: %v", id, r)
		}
	}()
	m.layout.ResetLayout(id)
}

// Switch moves from one session identity to another. The outgoing session
// is invalidated so its in-flight work is discarded. When no target state
// is supplied and the outgoing session holds nothing in memory, it is torn
// down across every tier, the remote one included.
func (m *Manager) Switch(ctx context.Context, from, to SessionIdentity, opts OpenOptions) (Snapshot, error) {
	if from.Key() != to.Key() {
		if opts.target() == nil && len(m.store.Memory().Ledger(from.Key())) == 0 {
			if err := m.Reset(ctx, from); err != nil {
				LogWarn("Teardown of %s during switch was incomplete: %v", from, err)
			}
		} else {
			m.invalidate(from)
		}
	}
	return m.Open(ctx, to, opts)
}

// invalidate bumps the generation without clearing anything
func (m *Manager) invalidate(id SessionIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entryLocked(id).generation++
}

// SyncFromServer replaces the session's ledger with the remote tier's
// canonical state
func (m *Manager) SyncFromServer(ctx context.Context, id SessionIdentity) (Snapshot, error) {
	if !id.Remote() || m.remote == nil {
		return Snapshot{}, ErrNoSessionID
	}
	gen := m.Generation(id)
	if _, err := m.pullRemote(ctx, id, gen); err != nil {
		return Snapshot{}, err
	}
	return m.Snapshot(ctx, id), nil
}

func (m *Manager) seedFromRemote(ctx context.Context, id SessionIdentity, gen uint64) (bool, error) {
	if !id.Remote() || m.remote == nil {
		return false, nil
	}
	seeded, err := m.pullRemote(ctx, id, gen)
	if err != nil && !errors.Is(err, ErrStaleResult) {
		LogWarn("Could not seed %s from remote: %v", id, err)
	}
	return seeded, err
}

// pullRemote writes the remote state into the local tiers. It reports
// whether the remote held any state.
func (m *Manager) pullRemote(ctx context.Context, id SessionIdentity, gen uint64) (bool, error) {
	vs, err := m.remote.FetchVersioned(ctx, id.ID)
	if err != nil {
		return false, err
	}
	if !m.isCurrent(id, gen) {
		return false, ErrStaleResult
	}

	ledger := Ledger{}
	if vs.State != nil {
		ledger = Ledger{{
			Command:         SyncFromServerCommand,
			Success:         true,
			Output:          "Synchronized repository state from server",
			RepositoryState: vs.State,
		}}
	}
	m.store.SetState(id, vs.State)
	m.store.SetVersion(id, vs.Version)
	if err := m.store.Write(ctx, id, ledger); err != nil {
		LogWarn("Failed to persist synced ledger for %s: %v", id, err)
	}
	return vs.State != nil, nil
}

func (m *Manager) scheduleUpsert(id SessionIdentity, gen uint64, state *RepositoryState) {
	if m.writer == nil || !id.Remote() || state == nil {
		return
	}
	m.writer.enqueue(upsertJob{id: id, state: state, generation: gen})
}

// Snapshot returns the session's current view
func (m *Manager) Snapshot(ctx context.Context, id SessionIdentity) Snapshot {
	ledger := m.store.Read(ctx, id)
	version, hasVersion := m.store.Version(id)

	m.mu.Lock()
	e := m.entryLocked(id)
	snap := Snapshot{
		Identity:     id,
		Phase:        e.phase,
		Source:       e.source,
		TargetState:  e.target,
		Generation:   e.generation,
		Ledger:       ledger,
		CurrentState: CurrentState(ledger),
		Version:      version,
		HasVersion:   hasVersion,
	}
	m.mu.Unlock()
	return snap
}

// CurrentState returns the state derived from the session's ledger
func (m *Manager) CurrentState(ctx context.Context, id SessionIdentity) *RepositoryState {
	return CurrentState(m.store.Read(ctx, id))
}

// Flush waits for queued remote writes
func (m *Manager) Flush(ctx context.Context) error {
	if m.writer == nil {
		return nil
	}
	return m.writer.flush(ctx)
}

// Close flushes pending remote writes and stops the writer
func (m *Manager) Close(ctx context.Context) error {
	if m.writer == nil {
		return nil
	}
	err := m.writer.flush(ctx)
	m.writer.close()
	return err
}
