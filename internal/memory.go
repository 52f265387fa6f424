package internal

import "sync"

// ChangeKind says what part of a session's memory entry changed
type ChangeKind int

const (
	ChangeLedger ChangeKind = iota
	ChangeState
	ChangeVersion
	ChangeCleared
)

// Change is delivered to memory tier subscribers
type Change struct {
	Key  string
	Kind ChangeKind
}

type memoryEntry struct {
	ledger     Ledger
	state      *RepositoryState
	version    int64
	hasVersion bool
}

// MemoryTier is the process-lifetime cache. One MemoryTier may be shared
// by several stores and managers; subscribers are notified on every
// mutation so their copies can be invalidated.
type MemoryTier struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry

	subMu  sync.Mutex
	nextID int
	subs   map[string]map[int]func(Change)
}

// NewMemoryTier creates an empty memory tier
func NewMemoryTier() *MemoryTier {
	return &MemoryTier{
		entries: make(map[string]*memoryEntry),
		subs:    make(map[string]map[int]func(Change)),
	}
}

func (m *MemoryTier) entryLocked(key string) *memoryEntry {
	e, ok := m.entries[key]
	if !ok {
		e = &memoryEntry{}
		m.entries[key] = e
	}
	return e
}

// Ledger returns a copy of the cached ledger for key
func (m *MemoryTier) Ledger(key string) Ledger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[key]; ok {
		return e.ledger.Clone()
	}
	return nil
}

// SetLedger replaces the cached ledger for key
func (m *MemoryTier) SetLedger(key string, l Ledger) {
	m.mu.Lock()
	m.entryLocked(key).ledger = l.Clone()
	m.mu.Unlock()
	m.notify(Change{Key: key, Kind: ChangeLedger})
}

// State returns the cached repository state for key
func (m *MemoryTier) State(key string) *RepositoryState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[key]; ok {
		return e.state
	}
	return nil
}

// SetState replaces the cached repository state for key
func (m *MemoryTier) SetState(key string, s *RepositoryState) {
	m.mu.Lock()
	m.entryLocked(key).state = s
	m.mu.Unlock()
	m.notify(Change{Key: key, Kind: ChangeState})
}

// Version returns the cached remote version for key
func (m *MemoryTier) Version(key string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[key]; ok && e.hasVersion {
		return e.version, true
	}
	return 0, false
}

// SetVersion replaces the cached remote version for key
func (m *MemoryTier) SetVersion(key string, v int64) {
	m.mu.Lock()
	e := m.entryLocked(key)
	e.version = v
	e.hasVersion = true
	m.mu.Unlock()
	m.notify(Change{Key: key, Kind: ChangeVersion})
}

// AdoptVersion stores v unless the cached version is newer. It reports
// whether v was stored.
func (m *MemoryTier) AdoptVersion(key string, v int64) bool {
	m.mu.Lock()
	e := m.entryLocked(key)
	if e.hasVersion && e.version > v {
		m.mu.Unlock()
		return false
	}
	e.version = v
	e.hasVersion = true
	m.mu.Unlock()
	m.notify(Change{Key: key, Kind: ChangeVersion})
	return true
}

// Clear drops everything cached for key
func (m *MemoryTier) Clear(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	m.notify(Change{Key: key, Kind: ChangeCleared})
}

// Subscribe registers fn for changes to key. The returned function
// removes the subscription.
func (m *MemoryTier) Subscribe(key string, fn func(Change)) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.nextID++
	id := m.nextID
	if m.subs[key] == nil {
		m.subs[key] = make(map[int]func(Change))
	}
	m.subs[key][id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs[key], id)
		if len(m.subs[key]) == 0 {
			delete(m.subs, key)
		}
	}
}

func (m *MemoryTier) notify(c Change) {
	m.subMu.Lock()
	fns := make([]func(Change), 0, len(m.subs[c.Key]))
	for _, fn := range m.subs[c.Key] {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
