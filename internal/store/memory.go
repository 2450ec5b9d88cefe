package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ShayCichocki/loom/pkg/events"
	"github.com/ShayCichocki/loom/pkg/keys"
	"github.com/ShayCichocki/loom/pkg/models"
)

// MemoryGraph is an in-memory Graph keyed by the node key's string form.
type MemoryGraph struct {
	mu    sync.RWMutex
	nodes map[string]models.Node
}

// NewMemoryGraph creates an empty in-memory graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{nodes: make(map[string]models.Node)}
}

func (g *MemoryGraph) FindByID(id keys.Key) (models.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id.String()]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return n, nil
}

func (g *MemoryGraph) FindAll() ([]models.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(func(models.Node) bool { return true }), nil
}

func (g *MemoryGraph) FindByParentID(parent keys.Key) ([]models.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(func(n models.Node) bool {
		return n.Base().ParentID.Equal(parent)
	}), nil
}

func (g *MemoryGraph) FindByKind(kind models.Kind) ([]models.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(func(n models.Node) bool {
		return n.Kind() == kind
	}), nil
}

func (g *MemoryGraph) FindByKeyPrefix(prefix keys.Key) ([]models.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(func(n models.Node) bool {
		return n.Base().ID.HasAncestor(prefix)
	}), nil
}

// collect returns matching nodes sorted by key so results are stable.
// Callers hold at least the read lock.
func (g *MemoryGraph) collect(match func(models.Node) bool) []models.Node {
	var out []models.Node
	for _, n := range g.nodes {
		if match(n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Base().ID.String() < out[j].Base().ID.String()
	})
	return out
}

func (g *MemoryGraph) Save(n models.Node) error {
	id := n.Base().ID
	if id.IsZero() {
		return fmt.Errorf("save node: zero key")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[id.String()] = n
	return nil
}

func (g *MemoryGraph) Delete(id keys.Key) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id.String()]; !ok {
		return fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	delete(g.nodes, id.String())
	return nil
}

func (g *MemoryGraph) Exists(id keys.Key) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id.String()]
	return ok, nil
}

func (g *MemoryGraph) Count() (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes), nil
}

func (g *MemoryGraph) Clear() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]models.Node)
	return nil
}

// MemoryEventLog is an in-memory append-only event log.
type MemoryEventLog struct {
	mu  sync.RWMutex
	log []events.Event
}

// NewMemoryEventLog creates an empty in-memory log.
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{}
}

func (l *MemoryEventLog) Append(e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = append(l.log, e)
	return nil
}

func (l *MemoryEventLog) List() ([]events.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]events.Event, len(l.log))
	copy(out, l.log)
	return out, nil
}

func (l *MemoryEventLog) ListForNode(id keys.Key) ([]events.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []events.Event
	for _, e := range l.log {
		if events.NodeKey(e).HasAncestor(id) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *MemoryEventLog) Replay(fn func(events.Event) error) error {
	snapshot, err := l.List()
	if err != nil {
		return err
	}
	for _, e := range snapshot {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (l *MemoryEventLog) Count() (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.log), nil
}

// MemoryWorktrees is an in-memory Worktrees store.
type MemoryWorktrees struct {
	mu    sync.RWMutex
	trees map[string]models.Worktree
}

// NewMemoryWorktrees creates an empty in-memory worktree store.
func NewMemoryWorktrees() *MemoryWorktrees {
	return &MemoryWorktrees{trees: make(map[string]models.Worktree)}
}

func (s *MemoryWorktrees) Save(w models.Worktree) error {
	if w.ID == "" {
		return fmt.Errorf("save worktree: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trees[w.ID] = w
	return nil
}

func (s *MemoryWorktrees) FindByID(id string) (models.Worktree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.trees[id]
	if !ok {
		return models.Worktree{}, fmt.Errorf("worktree %s: %w", id, ErrNotFound)
	}
	return w, nil
}

func (s *MemoryWorktrees) FindByNodeID(node keys.Key) ([]models.Worktree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(w models.Worktree) bool {
		return w.NodeID.Equal(node)
	}), nil
}

func (s *MemoryWorktrees) FindByStatus(status models.WorktreeStatus) ([]models.Worktree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(w models.Worktree) bool {
		return w.Status == status
	}), nil
}

func (s *MemoryWorktrees) FindAll() ([]models.Worktree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(models.Worktree) bool { return true }), nil
}

func (s *MemoryWorktrees) collect(match func(models.Worktree) bool) []models.Worktree {
	var out []models.Worktree
	for _, w := range s.trees {
		if match(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MemoryArtifacts is an in-memory content-addressed artifact store.
type MemoryArtifacts struct {
	mu        sync.RWMutex
	artifacts map[string]models.Artifact
}

// NewMemoryArtifacts creates an empty in-memory artifact store.
func NewMemoryArtifacts() *MemoryArtifacts {
	return &MemoryArtifacts{artifacts: make(map[string]models.Artifact)}
}

func (s *MemoryArtifacts) Save(a models.Artifact) error {
	if a.Key.IsZero() {
		return fmt.Errorf("save artifact: zero key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.artifacts[a.Key.String()]; ok && existing.ContentHash == a.ContentHash {
		return nil
	}
	s.artifacts[a.Key.String()] = a
	return nil
}

func (s *MemoryArtifacts) FindByKey(key keys.Key) (models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[key.String()]
	if !ok {
		return models.Artifact{}, fmt.Errorf("artifact %s: %w", key, ErrNotFound)
	}
	return a, nil
}

func (s *MemoryArtifacts) FindByKeyPrefix(prefix keys.Key) ([]models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(a models.Artifact) bool {
		return a.Key.HasAncestor(prefix)
	}), nil
}

func (s *MemoryArtifacts) FindByContentHash(hash string) ([]models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(a models.Artifact) bool {
		return a.ContentHash == hash
	}), nil
}

func (s *MemoryArtifacts) collect(match func(models.Artifact) bool) []models.Artifact {
	var out []models.Artifact
	for _, a := range s.artifacts {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}
