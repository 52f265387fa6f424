package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/iksnae/practice-sync/internal"
	"gopkg.in/yaml.v3"
)

// CacheVersion is written into every layout file
const CacheVersion = "1.0"

// Node is the grid position of one commit
type Node struct {
	ID     string `yaml:"id"`
	Row    int    `yaml:"row"`
	Column int    `yaml:"column"`
}

// Layout is the persisted commit-graph layout of one session
type Layout struct {
	Session      string    `yaml:"session"`
	CacheVersion string    `yaml:"cache_version"`
	UpdatedAt    time.Time `yaml:"updated_at"`
	Nodes        []Node    `yaml:"nodes"`
}

// Columns returns the number of lanes used by the layout
func (l *Layout) Columns() int {
	cols := 0
	for _, n := range l.Nodes {
		if n.Column+1 > cols {
			cols = n.Column + 1
		}
	}
	return cols
}

// Cache stores layouts as YAML files, one per session. It implements
// internal.LayoutResetter so resets drop the session's positions.
type Cache struct {
	dir string
}

// NewCache creates a cache rooted at dir
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Dir returns the cache directory
func (c *Cache) Dir() string {
	return c.dir
}

// EnsureDir creates the cache directory
func (c *Cache) EnsureDir() error {
	return os.MkdirAll(c.dir, 0755)
}

// Path returns the layout file for a session. The id is query-escaped so
// distinct ids never share a file.
func (c *Cache) Path(id internal.SessionIdentity) string {
	kind := id.Kind
	if kind == "" {
		kind = internal.KindPractice
	}
	return filepath.Join(c.dir, fmt.Sprintf("layout_%s_%s.yaml", kind, url.QueryEscape(id.StorageID())))
}

// Load reads the session's layout. A missing file returns nil, nil.
func (c *Cache) Load(id internal.SessionIdentity) (*Layout, error) {
	data, err := os.ReadFile(c.Path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal layout: %w", err)
	}
	if l.CacheVersion != CacheVersion {
		internal.LogDebug("Ignoring layout for %s with cache version %q", id, l.CacheVersion)
		return nil, nil
	}
	return &l, nil
}

// Save writes the session's layout
func (c *Cache) Save(id internal.SessionIdentity, l *Layout) error {
	if err := c.EnsureDir(); err != nil {
		return err
	}
	l.Session = id.Key()
	l.CacheVersion = CacheVersion
	l.UpdatedAt = time.Now().UTC()

	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal layout: %w", err)
	}
	return os.WriteFile(c.Path(id), data, 0644)
}

// ResetLayout removes the session's layout file
func (c *Cache) ResetLayout(id internal.SessionIdentity) {
	if err := os.Remove(c.Path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		internal.LogWarn("Failed to remove layout for %s: %v", id, err)
	}
}

// LoadOrCompute returns the cached layout when it still covers every
// commit of state, and otherwise computes and saves a fresh one
func (c *Cache) LoadOrCompute(id internal.SessionIdentity, state *internal.RepositoryState) (*Layout, error) {
	fresh, err := Compute(state)
	if err != nil {
		return nil, err
	}

	cached, err := c.Load(id)
	if err != nil {
		internal.LogWarn("Failed to load layout for %s: %v", id, err)
	}
	if cached != nil && sameNodes(cached.Nodes, fresh.Nodes) {
		return cached, nil
	}

	if err := c.Save(id, fresh); err != nil {
		return fresh, fmt.Errorf("failed to save layout: %w", err)
	}
	return fresh, nil
}

func sameNodes(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// commit is the part of a repository state the layout needs
type commit struct {
	ID      string
	Parents []string
}

type rawCommit struct {
	ID      string   `json:"id"`
	Hash    string   `json:"hash"`
	Parent  string   `json:"parent"`
	Parents []string `json:"parents"`
}

func (r rawCommit) toCommit(fallbackID string) commit {
	c := commit{ID: r.ID, Parents: r.Parents}
	if c.ID == "" {
		c.ID = r.Hash
	}
	if c.ID == "" {
		c.ID = fallbackID
	}
	if len(c.Parents) == 0 && r.Parent != "" {
		c.Parents = []string{r.Parent}
	}
	return c
}

// commitsOf extracts commits from state. Commits may be a list or an
// object keyed by id; keyed commits are ordered by id.
func commitsOf(state *internal.RepositoryState) ([]commit, error) {
	var probe struct {
		Commits json.RawMessage `json:"commits"`
	}
	if err := state.UnmarshalInto(&probe); err != nil {
		return nil, fmt.Errorf("failed to decode repository state: %w", err)
	}
	if len(probe.Commits) == 0 || string(probe.Commits) == "null" {
		return nil, nil
	}

	var list []rawCommit
	if err := json.Unmarshal(probe.Commits, &list); err == nil {
		out := make([]commit, 0, len(list))
		for i, r := range list {
			out = append(out, r.toCommit(fmt.Sprintf("#%d", i)))
		}
		return out, nil
	}

	var byID map[string]rawCommit
	if err := json.Unmarshal(probe.Commits, &byID); err != nil {
		return nil, fmt.Errorf("unsupported commits shape: %w", err)
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]commit, 0, len(ids))
	for _, id := range ids {
		c := byID[id].toCommit(id)
		c.ID = id
		out = append(out, c)
	}
	return out, nil
}

// Compute assigns each commit a row in listed order and a lane. A commit
// continues its first parent's lane unless another child already took it.
// States without parent links are laid out as a single chain.
func Compute(state *internal.RepositoryState) (*Layout, error) {
	commits, err := commitsOf(state)
	if err != nil {
		return nil, err
	}
	linked := false
	for _, c := range commits {
		if len(c.Parents) > 0 {
			linked = true
			break
		}
	}
	if !linked {
		for i := 1; i < len(commits); i++ {
			commits[i].Parents = []string{commits[i-1].ID}
		}
	}

	l := &Layout{CacheVersion: CacheVersion, Nodes: make([]Node, 0, len(commits))}
	column := make(map[string]int, len(commits))
	taken := make(map[string]bool, len(commits))
	lanes := 0

	for row, c := range commits {
		col := -1
		if len(c.Parents) > 0 {
			if pc, ok := column[c.Parents[0]]; ok && !taken[c.Parents[0]] {
				col = pc
				taken[c.Parents[0]] = true
			}
		}
		if col < 0 {
			if row == 0 {
				col = 0
			} else {
				col = lanes
			}
		}
		if col+1 > lanes {
			lanes = col + 1
		}
		column[c.ID] = col
		l.Nodes = append(l.Nodes, Node{ID: c.ID, Row: row, Column: col})
	}
	return l, nil
}

