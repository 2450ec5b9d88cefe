// Package store persists the workflow graph, its event log, worktrees,
// and artifacts. Two implementations exist for each repository: an
// in-memory one for tests and short-lived runs, and an SQLite one
// (.loom/loom.db) for durable sessions.
package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ShayCichocki/loom/pkg/events"
	"github.com/ShayCichocki/loom/pkg/keys"
	"github.com/ShayCichocki/loom/pkg/models"
)

var (
	// ErrNotFound is returned when a lookup misses.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a create collides with an
	// existing row.
	ErrAlreadyExists = errors.New("already exists")
)

// Graph is the node repository. Save is an upsert keyed by the node's
// hierarchical key; nodes are stored and returned as whole values.
type Graph interface {
	FindByID(id keys.Key) (models.Node, error)
	FindAll() ([]models.Node, error)
	FindByParentID(parent keys.Key) ([]models.Node, error)
	FindByKind(kind models.Kind) ([]models.Node, error)
	// FindByKeyPrefix returns every node whose key sits at or under the
	// given key, i.e. the subtree rooted there.
	FindByKeyPrefix(prefix keys.Key) ([]models.Node, error)
	Save(n models.Node) error
	Delete(id keys.Key) error
	Exists(id keys.Key) (bool, error)
	Count() (int, error)
	Clear() error
}

// EventLog is the append-only record of everything published on the bus.
// List returns events in append order; the log is never compacted or
// rewritten.
type EventLog interface {
	Append(e events.Event) error
	List() ([]events.Event, error)
	// ListForNode returns, in append order, the events whose subject key
	// is at or under the given key.
	ListForNode(id keys.Key) ([]events.Event, error)
	// Replay calls fn for each event in append order, stopping on the
	// first error.
	Replay(fn func(events.Event) error) error
	Count() (int, error)
}

// Worktrees tracks the isolated working copies nodes execute in.
type Worktrees interface {
	Save(w models.Worktree) error
	FindByID(id string) (models.Worktree, error)
	FindByNodeID(node keys.Key) ([]models.Worktree, error)
	FindByStatus(status models.WorktreeStatus) ([]models.Worktree, error)
	FindAll() ([]models.Worktree, error)
}

// Artifacts stores content-addressed outputs. SaveArtifact dedupes on
// content hash: saving an artifact whose hash is already present under
// the same key is a no-op.
type Artifacts interface {
	Save(a models.Artifact) error
	FindByKey(key keys.Key) (models.Artifact, error)
	FindByKeyPrefix(prefix keys.Key) ([]models.Artifact, error)
	FindByContentHash(hash string) ([]models.Artifact, error)
}

// ReconcileChildren rewrites parent's child list from the nodes whose
// ParentID points at it, preserving the existing order for survivors and
// appending newcomers in key order. It returns the updated parent without
// saving it.
func ReconcileChildren(g Graph, parent models.Node) (models.Node, error) {
	base := parent.Base()
	children, err := g.FindByParentID(base.ID)
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", base.ID, err)
	}

	actual := make(map[string]keys.Key, len(children))
	for _, c := range children {
		id := c.Base().ID
		actual[id.String()] = id
	}

	var ids []keys.Key
	for _, id := range base.ChildIDs {
		if _, ok := actual[id.String()]; ok {
			ids = append(ids, id)
			delete(actual, id.String())
		}
	}
	var added []string
	for s := range actual {
		added = append(added, s)
	}
	sort.Strings(added)
	for _, s := range added {
		ids = append(ids, actual[s])
	}

	return models.WithChildren(parent, ids), nil
}
