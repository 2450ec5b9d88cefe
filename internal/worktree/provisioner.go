package worktree

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/loom/internal/orchestrator"
	"github.com/ShayCichocki/loom/pkg/keys"
	"github.com/ShayCichocki/loom/pkg/models"
)

// Provisioner creates git worktrees for nodes, registers them with the
// orchestrator, and settles them when their merge nodes complete.
type Provisioner struct {
	git  Git
	root string
	orch *orchestrator.Orchestrator
}

// NewProvisioner creates a provisioner that places checkouts under root.
func NewProvisioner(git Git, root string, orch *orchestrator.Orchestrator) *Provisioner {
	return &Provisioner{git: git, root: root, orch: orch}
}

// Provision creates a worktree on a fresh branch for the node and
// registers it. On registration failure the checkout is removed again.
func (p *Provisioner) Provision(node keys.Key) (models.Worktree, error) {
	return p.provision(node, "")
}

// Branch creates a worktree branched off an existing one, preserving the
// parent link in the record.
func (p *Provisioner) Branch(parent models.Worktree, node keys.Key) (models.Worktree, error) {
	return p.provision(node, parent.ID)
}

func (p *Provisioner) provision(node keys.Key, parentID string) (models.Worktree, error) {
	id := "wt-" + uuid.NewString()[:8]
	branch := branchName(node)
	path := filepath.Join(p.root, id)

	if exists, err := p.git.BranchExists(branch); err != nil {
		return models.Worktree{}, fmt.Errorf("provision worktree for %s: %w", node, err)
	} else if exists {
		return models.Worktree{}, fmt.Errorf("provision worktree for %s: branch %s already exists", node, branch)
	}
	if err := p.git.AddWorktree(path, branch); err != nil {
		return models.Worktree{}, fmt.Errorf("provision worktree for %s: %w", node, err)
	}

	now := time.Now().UTC()
	w := models.Worktree{
		ID:        id,
		NodeID:    node,
		ParentID:  parentID,
		Path:      path,
		Branch:    branch,
		Status:    models.WorktreeActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.orch.RegisterWorktree(w); err != nil {
		_ = p.git.RemoveWorktree(path)
		_ = p.git.DeleteBranch(branch)
		return models.Worktree{}, fmt.Errorf("register worktree %s: %w", id, err)
	}
	return w, nil
}

// Integrate merges the worktree's branch into the current branch and
// reports the result to the merge node. A conflicting merge is aborted
// and routed as a conflict; the checkout stays in place for follow-up. A
// clean merge removes the checkout and its branch.
func (p *Provisioner) Integrate(mergeID keys.Key, w models.Worktree) (models.Node, error) {
	if err := p.git.Merge(w.Branch); err != nil {
		files, _ := p.git.ConflictedFiles()
		_ = p.git.MergeAbort()
		detail := fmt.Sprintf("merge of %s failed: %v", w.Branch, err)
		if len(files) > 0 {
			detail = fmt.Sprintf("conflicts in %s", strings.Join(files, ", "))
		}
		return p.orch.CompleteMerge(mergeID, orchestrator.MergeOutcome{
			Conflict: true,
			Detail:   detail,
		})
	}

	node, err := p.orch.CompleteMerge(mergeID, orchestrator.MergeOutcome{
		Detail: "merged " + w.Branch,
	})
	if err != nil {
		return nil, err
	}
	p.cleanup(w)
	return node, nil
}

// Discard drops the worktree's checkout and branch without merging.
func (p *Provisioner) Discard(w models.Worktree) error {
	if err := p.git.RemoveWorktree(w.Path); err != nil {
		return fmt.Errorf("discard worktree %s: %w", w.ID, err)
	}
	_ = p.git.DeleteBranch(w.Branch)
	_ = p.git.PruneWorktrees()
	return nil
}

// cleanup removes a merged checkout. Failures are non-fatal: the merge
// already landed and a stale checkout is recoverable with prune.
func (p *Provisioner) cleanup(w models.Worktree) {
	_ = p.git.RemoveWorktree(w.Path)
	_ = p.git.DeleteBranch(w.Branch)
	_ = p.git.PruneWorktrees()
}

// branchName derives a branch name from a node key.
func branchName(node keys.Key) string {
	return "loom/" + strings.ToLower(node.String())
}
