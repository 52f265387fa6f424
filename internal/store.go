package internal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// TieredStore gives uniform ledger access over the memory and durable
// tiers. The remote tier is driven by the lifecycle manager, never by a
// bare ledger write.
type TieredStore struct {
	memory  *MemoryTier
	durable DurableTier
	keys    KeyScheme
}

// NewTieredStore creates a store. memory may be shared with other stores.
func NewTieredStore(memory *MemoryTier, durable DurableTier, keys KeyScheme) *TieredStore {
	if memory == nil {
		memory = NewMemoryTier()
	}
	return &TieredStore{memory: memory, durable: durable, keys: keys}
}

// Memory exposes the memory tier
func (s *TieredStore) Memory() *MemoryTier {
	return s.memory
}

// Keys exposes the durable key scheme
func (s *TieredStore) Keys() KeyScheme {
	return s.keys
}

// Read returns the session's ledger. The first non-empty source wins:
// the versioned durable key, then memory, then the legacy unversioned
// durable key. A legacy hit is promoted to the versioned key. Read
// failures count as empty.
func (s *TieredStore) Read(ctx context.Context, id SessionIdentity) Ledger {
	if id.Version != nil {
		if l := s.readDurable(ctx, s.keys.Versioned(id, *id.Version)); len(l) > 0 {
			return l
		}
	}

	if l := s.memory.Ledger(id.Key()); len(l) > 0 {
		return l
	}

	l := s.readDurable(ctx, s.keys.Base(id))
	if len(l) > 0 && id.Version != nil {
		key := s.keys.Versioned(id, *id.Version)
		if err := s.putDurable(ctx, key, l); err != nil {
			LogWarn("Failed to promote legacy ledger for %s: %v", id, err)
		} else {
			LogDebug("Promoted legacy ledger for %s to %s", id, key)
		}
	}
	return l
}

// Write stores the ledger in memory and in the durable tier. The memory
// tier is always updated; a durable failure is returned.
func (s *TieredStore) Write(ctx context.Context, id SessionIdentity, l Ledger) error {
	s.memory.SetLedger(id.Key(), l)
	return s.putDurable(ctx, s.keys.Ledger(id), l)
}

// Clear removes the session from memory and from every durable key it
// may occupy: the unversioned key and all versioned keys.
func (s *TieredStore) Clear(ctx context.Context, id SessionIdentity) error {
	s.memory.Clear(id.Key())
	if s.durable == nil {
		return nil
	}
	var errs []error
	if err := s.durable.Delete(ctx, s.keys.Base(id)); err != nil {
		errs = append(errs, err)
	}
	if err := s.durable.DeletePrefix(ctx, s.keys.VersionPrefix(id)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// State returns the cached current state for the session
func (s *TieredStore) State(id SessionIdentity) *RepositoryState {
	return s.memory.State(id.Key())
}

// SetState caches the session's current state
func (s *TieredStore) SetState(id SessionIdentity, state *RepositoryState) {
	s.memory.SetState(id.Key(), state)
}

// Version returns the cached remote version for the session
func (s *TieredStore) Version(id SessionIdentity) (int64, bool) {
	return s.memory.Version(id.Key())
}

// SetVersion replaces the cached remote version
func (s *TieredStore) SetVersion(id SessionIdentity, v int64) {
	s.memory.SetVersion(id.Key(), v)
}

// AdoptVersion stores a version returned by the remote tier unless the
// cached one is newer
func (s *TieredStore) AdoptVersion(id SessionIdentity, v int64) bool {
	return s.memory.AdoptVersion(id.Key(), v)
}

func (s *TieredStore) readDurable(ctx context.Context, key string) Ledger {
	if s.durable == nil {
		return nil
	}
	data, ok, err := s.durable.Get(ctx, key)
	if err != nil {
		LogWarn("Durable read failed for %s: %v", key, err)
		return nil
	}
	if !ok {
		return nil
	}
	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		LogWarn("%v", &TierError{Tier: "durable", Key: key, Op: "parse", Err: err})
		return nil
	}
	return l
}

func (s *TieredStore) putDurable(ctx context.Context, key string, l Ledger) error {
	if s.durable == nil {
		return nil
	}
	if l == nil {
		l = Ledger{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return &TierError{Tier: "durable", Key: key, Op: "write", Err: err}
	}
	return s.durable.Put(ctx, key, data)
}

// LedgerView is an observer's cached copy of one session's ledger. It
// reloads from the store only after the memory tier reports a change.
type LedgerView struct {
	store *TieredStore
	id    SessionIdentity

	mu          sync.Mutex
	cached      Ledger
	valid       bool
	unsubscribe func()
}

// NewLedgerView subscribes a view to the session's memory entry
func NewLedgerView(store *TieredStore, id SessionIdentity) *LedgerView {
	v := &LedgerView{store: store, id: id}
	v.unsubscribe = store.memory.Subscribe(id.Key(), func(Change) {
		v.mu.Lock()
		v.valid = false
		v.mu.Unlock()
	})
	return v
}

// Entries returns the view's ledger, reloading it if invalidated
func (v *LedgerView) Entries(ctx context.Context) Ledger {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.valid {
		v.cached = v.store.Read(ctx, v.id)
		v.valid = true
	}
	return v.cached.Clone()
}

// Stale reports whether the next Entries call will reload
func (v *LedgerView) Stale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.valid
}

// Close stops receiving change notifications
func (v *LedgerView) Close() {
	if v.unsubscribe != nil {
		v.unsubscribe()
		v.unsubscribe = nil
	}
}

// StoredLedger describes one ledger row in the durable tier
type StoredLedger struct {
	Key       string
	StorageID string
	Version   *int64
	Entries   int
	HasState  bool
	Corrupt   bool
}

// StoredLedgers lists every ledger the durable tier holds under the
// store's namespace
func (s *TieredStore) StoredLedgers(ctx context.Context) ([]StoredLedger, error) {
	if s.durable == nil {
		return nil, nil
	}
	keys, err := s.durable.Keys(ctx, s.keys.Namespace+":")
	if err != nil {
		return nil, err
	}

	out := make([]StoredLedger, 0, len(keys))
	for _, key := range keys {
		id, version, ok := s.keys.Parse(key)
		if !ok {
			continue
		}
		row := StoredLedger{Key: key, StorageID: id, Version: version}
		data, found, err := s.durable.Get(ctx, key)
		if err != nil || !found {
			row.Corrupt = err != nil
			out = append(out, row)
			continue
		}
		var l Ledger
		if err := json.Unmarshal(data, &l); err != nil {
			row.Corrupt = true
		} else {
			row.Entries = len(l)
			row.HasState = CurrentState(l) != nil
		}
		out = append(out, row)
	}
	return out, nil
}

// RawDurable returns the stored bytes for key, for diagnostics
func (s *TieredStore) RawDurable(ctx context.Context, key string) ([]byte, bool, error) {
	if s.durable == nil {
		return nil, false, nil
	}
	return s.durable.Get(ctx, key)
}
