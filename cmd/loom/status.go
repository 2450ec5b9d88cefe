package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/loom/internal/config"
	"github.com/ShayCichocki/loom/internal/store"
	"github.com/ShayCichocki/loom/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current workflow graph",
	Long: `Display the state of the recorded workflow graph.

Shows:
  - Each run root and its goal
  - The node tree with per-node status
  - Status totals and worktree summary`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Storage.Backend == "" || cfg.Storage.Backend == "sqlite" {
		path := cfg.Storage.Path
		if path == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			path = store.ProjectDBPath(cwd)
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Println("No workflow recorded. Run 'loom run <goal>' to start.")
			return nil
		}
	}

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	nodes, err := stores.Graph.FindAll()
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}
	if len(nodes) == 0 {
		fmt.Println("No workflow recorded. Run 'loom run <goal>' to start.")
		return nil
	}

	byID := make(map[string]models.Node, len(nodes))
	counts := make(map[models.Status]int)
	var roots []models.Node
	for _, n := range nodes {
		byID[n.Base().ID.String()] = n
		counts[n.Base().Status]++
		if n.Base().ParentID.IsZero() {
			roots = append(roots, n)
		}
	}

	for _, root := range roots {
		displayRoot(root)
		displayTree(byID, root, 1)
		fmt.Println()
	}

	displayTotals(len(nodes), counts)

	worktrees, err := stores.Worktrees.FindAll()
	if err != nil {
		return fmt.Errorf("load worktrees: %w", err)
	}
	displayWorktrees(worktrees)

	eventCount, err := stores.Log.Count()
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}
	fmt.Printf("Events recorded: %d\n", eventCount)
	return nil
}

func displayRoot(root models.Node) {
	base := root.Base()
	fmt.Printf("Run %s: %q\n", base.ID, base.Title)
	fmt.Printf("  Started: %s ago\n", formatDuration(time.Since(base.CreatedAt)))
	fmt.Printf("  Status: %s\n", colorForStatus(base.Status).Sprint(string(base.Status)))
}

func displayTree(byID map[string]models.Node, n models.Node, depth int) {
	for _, childID := range n.Base().ChildIDs {
		child, ok := byID[childID.String()]
		if !ok {
			continue
		}
		base := child.Base()
		for i := 0; i < depth; i++ {
			fmt.Print("  ")
		}
		fmt.Printf("%s %q [%s]\n",
			child.Kind(),
			base.Title,
			colorForStatus(base.Status).Sprint(string(base.Status)))
		displayTree(byID, child, depth+1)
	}
}

func displayTotals(total int, counts map[models.Status]int) {
	fmt.Printf("Nodes: %d total", total)
	for _, s := range []models.Status{
		models.StatusPending, models.StatusReady, models.StatusRunning,
		models.StatusWaitingReview, models.StatusWaitingInput,
		models.StatusCompleted, models.StatusFailed,
		models.StatusCanceled, models.StatusPruned,
	} {
		if counts[s] > 0 {
			fmt.Printf(", %d %s", counts[s], colorForStatus(s).Sprint(string(s)))
		}
	}
	fmt.Println()
}

func displayWorktrees(worktrees []models.Worktree) {
	if len(worktrees) == 0 {
		return
	}
	active, merged, discarded := 0, 0, 0
	for _, w := range worktrees {
		switch w.Status {
		case models.WorktreeActive:
			active++
		case models.WorktreeMerged:
			merged++
		case models.WorktreeDiscarded:
			discarded++
		}
	}
	fmt.Printf("Worktrees: %d active, %d merged, %d discarded\n", active, merged, discarded)
}

func colorForStatus(s models.Status) *color.Color {
	switch s {
	case models.StatusRunning:
		return color.New(color.FgYellow)
	case models.StatusReady:
		return color.New(color.FgCyan)
	case models.StatusWaitingReview, models.StatusWaitingInput:
		return color.New(color.FgMagenta)
	case models.StatusCompleted:
		return color.New(color.FgGreen)
	case models.StatusFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgWhite)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
