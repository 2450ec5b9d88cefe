// Package worktree provisions and settles isolated git worktrees for
// graph nodes. The graph tracks worktree records; this package owns the
// mechanics behind them.
package worktree

import (
	"fmt"
	"os/exec"
	"strings"
)

// Git is the narrow set of git operations the provisioner needs.
type Git interface {
	// CurrentBranch returns the name of the current branch.
	CurrentBranch() (string, error)
	// BranchExists returns true if the branch exists.
	BranchExists(name string) (bool, error)
	// DeleteBranch deletes the specified branch (force delete).
	DeleteBranch(name string) error
	// AddWorktree creates a worktree at path on a new branch.
	AddWorktree(path, branch string) error
	// RemoveWorktree removes the worktree at the given path.
	RemoveWorktree(path string) error
	// PruneWorktrees removes stale worktree entries.
	PruneWorktrees() error
	// Merge merges the specified branch into the current branch.
	Merge(branch string) error
	// MergeAbort aborts an in-progress merge.
	MergeAbort() error
	// ConflictedFiles returns files with unmerged changes.
	ConflictedFiles() ([]string, error)
}

// ExecGit implements Git by shelling out to the git CLI.
type ExecGit struct {
	repoPath string
}

// NewExecGit creates a git runner for the repository at the given path.
func NewExecGit(repoPath string) *ExecGit {
	return &ExecGit{repoPath: repoPath}
}

// run executes a git command and returns its output.
func (g *ExecGit) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// runSilent executes a git command and ignores output.
func (g *ExecGit) runSilent(args ...string) error {
	_, err := g.run(args...)
	return err
}

func (g *ExecGit) CurrentBranch() (string, error) {
	return g.run("rev-parse", "--abbrev-ref", "HEAD")
}

func (g *ExecGit) BranchExists(name string) (bool, error) {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	cmd.Dir = g.repoPath
	err := cmd.Run()
	if err != nil {
		// Exit code 1 means branch doesn't exist (not an error)
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("check branch exists: %w", err)
	}
	return true, nil
}

func (g *ExecGit) DeleteBranch(name string) error {
	return g.runSilent("branch", "-D", name)
}

func (g *ExecGit) AddWorktree(path, branch string) error {
	return g.runSilent("worktree", "add", path, "-b", branch)
}

func (g *ExecGit) RemoveWorktree(path string) error {
	return g.runSilent("worktree", "remove", "--force", path)
}

func (g *ExecGit) PruneWorktrees() error {
	return g.runSilent("worktree", "prune")
}

func (g *ExecGit) Merge(branch string) error {
	return g.runSilent("merge", "--no-ff", branch)
}

func (g *ExecGit) MergeAbort() error {
	return g.runSilent("merge", "--abort")
}

func (g *ExecGit) ConflictedFiles() ([]string, error) {
	out, err := g.run("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, nil
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

var _ Git = (*ExecGit)(nil)
