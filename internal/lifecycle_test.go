package internal

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/iksnae/practice-sync/testutil"
)

type testManager struct {
	*Manager
	db      *sql.DB
	service *FakeCommandService
	layout  *RecordingLayout
}

func newTestManager(t *testing.T, service CommandService, remote RemoteTier) *testManager {
	t.Helper()
	db := testutil.CreateInMemoryDB(t)
	store := NewTieredStore(NewMemoryTier(), NewSQLiteDurable(db), NewKeyScheme("ns"))
	exec := NewExecutor(service, "git init")
	layout := &RecordingLayout{}
	m := NewManager(ManagerConfig{
		Store:    store,
		Executor: exec,
		Replay:   NewReplayEngine(exec, PrefixMatcher("git "), RetryPolicy{}),
		Remote:   remote,
		Layout:   layout,
	})
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	fake, _ := service.(*FakeCommandService)
	return &testManager{Manager: m, db: db, service: fake, layout: layout}
}

func goalScript(t *testing.T) *CommandScript {
	t.Helper()
	script := parseFixture(t, testutil.GoalScriptYAML)
	return &script
}

func flush(t *testing.T, m *testManager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

func TestManager_OpenReplaysScript(t *testing.T) {
	m := newTestManager(t, NewFakeCommandService("git init"), nil)
	ctx := context.Background()
	script := goalScript(t)

	snap, err := m.Open(ctx, GoalSession(), OpenOptions{Script: script})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if snap.Source != SourceReplay || snap.Phase != PhaseReady {
		t.Errorf("Source = %s, Phase = %s", snap.Source, snap.Phase)
	}
	if len(snap.Ledger) != 4 {
		t.Errorf("len(Ledger) = %d, want 4", len(snap.Ledger))
	}
	if !snap.TargetState.Equal(script.TargetState) {
		t.Error("target state not kept")
	}
	if n := testutil.CountKeys(t, m.db, "ns:goal-builder"); n != 1 {
		t.Errorf("replayed ledger not persisted: %d rows", n)
	}

	// A second open adopts what is stored instead of replaying again.
	calls := len(m.service.Calls())
	snap, err = m.Open(ctx, GoalSession(), OpenOptions{Script: script})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if snap.Source != SourceCache || len(m.service.Calls()) != calls {
		t.Errorf("reopen Source = %s, service calls %d -> %d", snap.Source, calls, len(m.service.Calls()))
	}
}

func TestManager_OpenMockReplay(t *testing.T) {
	service := NewFakeCommandService("git init")
	service.FailAll(true)
	m := newTestManager(t, service, nil)
	script := parseFixture(t, testutil.MockFallbackScriptYAML)

	snap, err := m.Open(context.Background(), GoalSession(), OpenOptions{Script: &script})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if snap.Source != SourceMockReplay {
		t.Errorf("Source = %s, want %s", snap.Source, SourceMockReplay)
	}
	if !snap.CurrentState.Equal(script.TargetState) {
		t.Errorf("CurrentState = %s, want the target", snap.CurrentState)
	}
}

func TestManager_OpenTargetWithoutScript(t *testing.T) {
	m := newTestManager(t, NewFakeCommandService("git init"), nil)
	target := FakeRepositoryState("t")

	snap, err := m.Open(context.Background(), PracticeSession("p1"), OpenOptions{Script: &CommandScript{TargetState: target}})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if snap.Source != SourceEmpty || len(snap.Ledger) != 0 || !snap.TargetState.Equal(target) {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestManager_OpenSeedsFromRemote(t *testing.T) {
	remote := NewFakeRemote()
	state := FakeRepositoryState("server")
	remote.Put("p1", state, 4)
	m := newTestManager(t, NewFakeCommandService("git init"), remote)

	snap, err := m.Open(context.Background(), PracticeSession("p1"), OpenOptions{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if snap.Source != SourceRemote {
		t.Errorf("Source = %s, want %s", snap.Source, SourceRemote)
	}
	if len(snap.Ledger) != 1 || snap.Ledger[0].Command != SyncFromServerCommand {
		t.Fatalf("Ledger = %+v", snap.Ledger)
	}
	if !snap.CurrentState.Equal(state) || !snap.HasVersion || snap.Version != 4 {
		t.Errorf("CurrentState = %s, Version = %d (%v)", snap.CurrentState, snap.Version, snap.HasVersion)
	}
}

func TestManager_OpenClearsWhenNothingKnown(t *testing.T) {
	remote := NewFakeRemote()
	m := newTestManager(t, NewFakeCommandService("git init"), remote)

	snap, err := m.Open(context.Background(), PracticeSession("p1"), OpenOptions{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if snap.Source != SourceEmpty || len(snap.Ledger) != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(m.layout.Reset) != 1 || m.layout.Reset[0] != "practice/p1" {
		t.Errorf("layout resets = %v", m.layout.Reset)
	}
}

func TestManager_OpenRemoteUnreachable(t *testing.T) {
	remote := NewFakeRemote()
	remote.Fail(true)
	m := newTestManager(t, NewFakeCommandService("git init"), remote)

	snap, err := m.Open(context.Background(), PracticeSession("p1"), OpenOptions{})
	if err != nil {
		t.Fatalf("Open() should tolerate an unreachable remote, got %v", err)
	}
	if snap.Source != SourceEmpty || snap.Phase != PhaseReady {
		t.Errorf("Source = %s, Phase = %s", snap.Source, snap.Phase)
	}
}

func TestManager_Run(t *testing.T) {
	m := newTestManager(t, NewFakeCommandService("git init"), nil)
	ctx := context.Background()
	id := PracticeSession("")

	if _, err := m.Run(ctx, id, "git init"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	resp, err := m.Run(ctx, id, "git commit -m a")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !resp.Success {
		t.Errorf("Run() = %+v", resp)
	}

	snap := m.Snapshot(ctx, id)
	if len(snap.Ledger) != 2 || snap.Phase != PhaseReady {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !snap.CurrentState.Equal(FakeRepositoryState("git commit -m a")) {
		t.Errorf("CurrentState = %s", snap.CurrentState)
	}
	if n := testutil.CountKeys(t, m.db, "ns:global"); n != 1 {
		t.Errorf("anonymous ledger rows = %d, want 1", n)
	}
}

func TestManager_RunRecordsExecutorFailure(t *testing.T) {
	service := NewFakeCommandService("git init")
	m := newTestManager(t, service, nil)
	ctx := context.Background()
	id := PracticeSession("")

	if _, err := m.Run(ctx, id, "git init"); err != nil {
		t.Fatal(err)
	}
	prior := m.CurrentState(ctx, id)

	service.FailAll(true)
	resp, err := m.Run(ctx, id, "git status")
	if err != nil {
		t.Fatalf("Run() should record failures, got error %v", err)
	}
	if resp.Success || resp.Output != ErrServiceDown.Error() {
		t.Errorf("Run() = %+v", resp)
	}
	if !resp.RepositoryState.Equal(prior) {
		t.Errorf("failed entry state = %s, want the prior state", resp.RepositoryState)
	}
	if got := m.Snapshot(ctx, id); len(got.Ledger) != 2 || got.Ledger[1].Success {
		t.Errorf("ledger = %+v", got.Ledger)
	}
}

// blockingService holds every call until released
type blockingService struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingService) ExecuteCommand(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	b.started <- struct{}{}
	<-b.release
	return ExecuteResult{Success: true, Output: "late", RepositoryState: FakeRepositoryState("late")}, nil
}

func TestManager_ResetDiscardsInFlightRun(t *testing.T) {
	service := &blockingService{started: make(chan struct{}), release: make(chan struct{})}
	m := newTestManager(t, service, nil)
	ctx := context.Background()
	id := PracticeSession("")

	errc := make(chan error, 1)
	go func() {
		_, err := m.Run(ctx, id, "git commit -m late")
		errc <- err
	}()

	<-service.started
	if err := m.Reset(ctx, id); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	close(service.release)

	if err := <-errc; !errors.Is(err, ErrStaleResult) {
		t.Fatalf("Run() error = %v, want ErrStaleResult", err)
	}
	snap := m.Snapshot(ctx, id)
	if len(snap.Ledger) != 0 || snap.CurrentState != nil {
		t.Errorf("stale result leaked into the session: %+v", snap.Ledger)
	}
	if snap.Phase != PhaseReady {
		t.Errorf("Phase = %s, want ready", snap.Phase)
	}
}

func TestManager_Reset(t *testing.T) {
	remote := NewFakeRemote()
	m := newTestManager(t, NewFakeCommandService("git init"), remote)
	ctx := context.Background()
	id := PracticeSession("p1")

	if _, err := m.Run(ctx, id, "git init"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Run(ctx, id.WithVersion(2), "git commit -m a"); err != nil {
		t.Fatal(err)
	}
	flush(t, m)
	gen := m.Generation(id)

	if err := m.Reset(ctx, id); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	if n := testutil.CountKeys(t, m.db, "ns:p1"); n != 0 {
		t.Errorf("%d durable rows left", n)
	}
	store := m.Store()
	if len(store.Memory().Ledger(id.Key())) != 0 || store.State(id) != nil {
		t.Error("memory tier not cleared")
	}
	if _, ok := store.Version(id); ok {
		t.Error("version not cleared")
	}
	if _, ok := remote.Record("p1"); ok {
		t.Error("remote record not removed")
	}
	if last := m.layout.Reset[len(m.layout.Reset)-1]; last != "practice/p1" {
		t.Errorf("layout reset = %v", m.layout.Reset)
	}
	if m.Generation(id) != gen+1 {
		t.Errorf("Generation = %d, want %d", m.Generation(id), gen+1)
	}
	if snap := m.Snapshot(ctx, id); snap.Phase != PhaseReady || snap.Source != SourceEmpty {
		t.Errorf("Phase = %s, Source = %s", snap.Phase, snap.Source)
	}
}

func TestManager_ResetSurvivesLayoutPanic(t *testing.T) {
	m := newTestManager(t, NewFakeCommandService("git init"), nil)
	m.layout.Panic = true
	ctx := context.Background()
	id := PracticeSession("")

	if _, err := m.Run(ctx, id, "git init"); err != nil {
		t.Fatal(err)
	}
	if err := m.Reset(ctx, id); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if n := testutil.CountKeys(t, m.db, "ns:"); n != 0 {
		t.Errorf("%d rows left after reset with a panicking layout", n)
	}
}

func TestManager_ResetWithUnreachableRemote(t *testing.T) {
	remote := NewFakeRemote()
	m := newTestManager(t, NewFakeCommandService("git init"), remote)
	ctx := context.Background()
	id := PracticeSession("p1")

	if _, err := m.Run(ctx, id, "git init"); err != nil {
		t.Fatal(err)
	}
	flush(t, m)
	remote.Fail(true)

	if err := m.Reset(ctx, id); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if n := testutil.CountKeys(t, m.db, "ns:p1"); n != 0 {
		t.Errorf("local tiers not cleared: %d rows", n)
	}
}

// blockingRemote holds every upsert until released
type blockingRemote struct {
	*FakeRemote
	started chan struct{}
	release chan struct{}
}

func (b *blockingRemote) Upsert(ctx context.Context, sessionID string, state *RepositoryState, version int64) (int64, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	return b.FakeRemote.Upsert(ctx, sessionID, state, version)
}

func TestManager_ResetOrdersRemovalAfterInFlightUpsert(t *testing.T) {
	remote := &blockingRemote{FakeRemote: NewFakeRemote(), started: make(chan struct{}, 1), release: make(chan struct{})}
	m := newTestManager(t, NewFakeCommandService("git init"), remote)
	ctx := context.Background()
	id := PracticeSession("p1")

	if _, err := m.Run(ctx, id, "git init"); err != nil {
		t.Fatal(err)
	}
	<-remote.started

	errc := make(chan error, 1)
	go func() { errc <- m.Reset(ctx, id) }()

	select {
	case err := <-errc:
		t.Fatalf("Reset() returned %v while an upsert was still in flight", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(remote.release)

	if err := <-errc; err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	flush(t, m)

	if vs, ok := remote.Record("p1"); ok {
		t.Errorf("remote still holds pre-reset state: %s", vs.State)
	}
	if removed := remote.Removed(); len(removed) != 1 || removed[0] != "p1" {
		t.Errorf("Removed() = %v", removed)
	}
	if _, ok := m.Store().Version(id); ok {
		t.Error("version from the pre-reset upsert was adopted")
	}
}

func TestManager_VersionNeverDecreases(t *testing.T) {
	remote := NewFakeRemote()
	versions := []int64{5, 3, 7}
	calls := 0
	remote.NextVersion = func(sent, stored int64) int64 {
		v := versions[calls]
		calls++
		return v
	}
	m := newTestManager(t, NewFakeCommandService("git init"), remote)
	ctx := context.Background()
	id := PracticeSession("p1")

	want := []int64{5, 5, 7}
	for i, cmd := range []string{"git init", "git commit -m a", "git commit -m b"} {
		if _, err := m.Run(ctx, id, cmd); err != nil {
			t.Fatal(err)
		}
		flush(t, m)
		if v, _ := m.Store().Version(id); v != want[i] {
			t.Errorf("after %q version = %d, want %d", cmd, v, want[i])
		}
	}

	upserts := remote.Upserts()
	if len(upserts) != 3 {
		t.Fatalf("upserts = %d, want 3", len(upserts))
	}
	if upserts[0].Version != 0 || upserts[1].Version != 5 || upserts[2].Version != 5 {
		t.Errorf("versions sent = %d, %d, %d", upserts[0].Version, upserts[1].Version, upserts[2].Version)
	}
	if !upserts[2].State.Equal(FakeRepositoryState("git commit -m a", "git commit -m b")) {
		t.Errorf("last upsert state = %s", upserts[2].State)
	}
}

func TestManager_UnchangedStateIsNotUpserted(t *testing.T) {
	remote := NewFakeRemote()
	m := newTestManager(t, NewFakeCommandService("git init"), remote)
	ctx := context.Background()
	id := PracticeSession("p1")

	if _, err := m.Run(ctx, id, "git init"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Run(ctx, id, "git status"); err != nil {
		t.Fatal(err)
	}
	flush(t, m)
	if n := len(remote.Upserts()); n != 1 {
		t.Errorf("upserts = %d, want 1", n)
	}
}

func TestManager_AnonymousSessionNeverUpserts(t *testing.T) {
	remote := NewFakeRemote()
	m := newTestManager(t, NewFakeCommandService("git init"), remote)
	ctx := context.Background()

	if _, err := m.Run(ctx, PracticeSession(""), "git init"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Run(ctx, GoalSession(), "git init"); err != nil {
		t.Fatal(err)
	}
	flush(t, m)
	if n := len(remote.Upserts()); n != 0 {
		t.Errorf("upserts = %d, want 0", n)
	}
}

func TestManager_SwitchKeepsPracticeProgress(t *testing.T) {
	remote := NewFakeRemote()
	m := newTestManager(t, NewFakeCommandService("git init"), remote)
	ctx := context.Background()
	from := PracticeSession("p1")

	if _, err := m.Run(ctx, from, "git init"); err != nil {
		t.Fatal(err)
	}
	gen := m.Generation(from)

	snap, err := m.Switch(ctx, from, GoalSession(), OpenOptions{Script: goalScript(t)})
	if err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if snap.Identity.Kind != KindGoal || snap.Source != SourceReplay {
		t.Errorf("snapshot = %+v", snap)
	}
	if m.Generation(from) != gen+1 {
		t.Error("outgoing session was not invalidated")
	}
	if len(m.Store().Read(ctx, from)) != 1 {
		t.Error("outgoing practice session lost its ledger")
	}
}

func TestManager_SwitchTearsDownEmptySession(t *testing.T) {
	m := newTestManager(t, NewFakeCommandService("git init"), nil)
	ctx := context.Background()

	if _, err := m.Open(ctx, GoalSession(), OpenOptions{}); err != nil {
		t.Fatal(err)
	}
	m.layout.Reset = nil

	if _, err := m.Switch(ctx, GoalSession(), PracticeSession("p2"), OpenOptions{}); err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if len(m.layout.Reset) == 0 || m.layout.Reset[0] != "goal/goal-builder" {
		t.Errorf("layout resets = %v, want the goal session first", m.layout.Reset)
	}
}

func TestManager_SwitchTearsDownRemoteSession(t *testing.T) {
	remote := NewFakeRemote()
	remote.Put("p1", FakeRepositoryState("x"), 3)
	m := newTestManager(t, NewFakeCommandService("git init"), remote)
	ctx := context.Background()

	if _, err := m.Switch(ctx, PracticeSession("p1"), PracticeSession("p2"), OpenOptions{}); err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	flush(t, m)

	if _, ok := remote.Record("p1"); ok {
		t.Error("outgoing session still has remote state")
	}
	if removed := remote.Removed(); len(removed) == 0 || removed[0] != "p1" {
		t.Errorf("Removed() = %v, want p1 first", removed)
	}
}

func TestManager_SwitchToSameSession(t *testing.T) {
	m := newTestManager(t, NewFakeCommandService("git init"), nil)
	ctx := context.Background()
	id := PracticeSession("")

	if _, err := m.Run(ctx, id, "git init"); err != nil {
		t.Fatal(err)
	}
	gen := m.Generation(id)
	snap, err := m.Switch(ctx, id, id, OpenOptions{})
	if err != nil {
		t.Fatalf("Switch() error = %v", err)
	}
	if m.Generation(id) != gen || len(snap.Ledger) != 1 {
		t.Errorf("switching to the same session changed it: gen %d -> %d, ledger %d", gen, m.Generation(id), len(snap.Ledger))
	}
}

func TestManager_SyncFromServer(t *testing.T) {
	remote := NewFakeRemote()
	m := newTestManager(t, NewFakeCommandService("git init"), remote)
	ctx := context.Background()
	id := PracticeSession("p1")

	if _, err := m.Run(ctx, id, "git init"); err != nil {
		t.Fatal(err)
	}
	flush(t, m)

	server := FakeRepositoryState("from server")
	remote.Put("p1", server, 9)
	snap, err := m.SyncFromServer(ctx, id)
	if err != nil {
		t.Fatalf("SyncFromServer() error = %v", err)
	}
	if len(snap.Ledger) != 1 || snap.Ledger[0].Command != SyncFromServerCommand {
		t.Errorf("Ledger = %+v", snap.Ledger)
	}
	if !snap.CurrentState.Equal(server) || snap.Version != 9 {
		t.Errorf("CurrentState = %s, Version = %d", snap.CurrentState, snap.Version)
	}

	if _, err := m.SyncFromServer(ctx, PracticeSession("")); !errors.Is(err, ErrNoSessionID) {
		t.Errorf("anonymous SyncFromServer() error = %v, want ErrNoSessionID", err)
	}
}

func TestManager_Rebuild(t *testing.T) {
	m := newTestManager(t, NewFakeCommandService("git init"), nil)
	ctx := context.Background()
	id := GoalSession()

	if _, err := m.Run(ctx, id, "git init"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Run(ctx, id, "git commit -m stray"); err != nil {
		t.Fatal(err)
	}

	snap, err := m.Rebuild(ctx, id, *goalScript(t))
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if len(snap.Ledger) != 4 || snap.Source != SourceReplay {
		t.Errorf("Ledger = %d entries, Source = %s", len(snap.Ledger), snap.Source)
	}
	for _, entry := range snap.Ledger {
		if entry.Command == "git commit -m stray" {
			t.Error("rebuild kept entries from before the reset")
		}
	}
}

func TestManager_SharedMemoryTier(t *testing.T) {
	db := testutil.CreateInMemoryDB(t)
	memory := NewMemoryTier()
	keys := NewKeyScheme("ns")
	exec := NewExecutor(NewFakeCommandService("git init"), "git init")
	a := NewManager(ManagerConfig{Store: NewTieredStore(memory, NewSQLiteDurable(db), keys), Executor: exec, Replay: NewReplayEngine(exec, PrefixMatcher("git "), RetryPolicy{})})
	b := NewTieredStore(memory, NewSQLiteDurable(db), keys)
	ctx := context.Background()
	id := PracticeSession("")

	view := NewLedgerView(b, id)
	defer view.Close()
	view.Entries(ctx)

	if _, err := a.Run(ctx, id, "git init"); err != nil {
		t.Fatal(err)
	}
	if !view.Stale() {
		t.Error("a run through one manager should invalidate views on a sibling store")
	}
	if got := view.Entries(ctx); len(got) != 1 {
		t.Errorf("Entries() = %v", got)
	}
}
