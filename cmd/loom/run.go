package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/loom/internal/config"
	"github.com/ShayCichocki/loom/internal/orchestrator"
	"github.com/ShayCichocki/loom/internal/store"
	"github.com/ShayCichocki/loom/internal/stream"
	"github.com/ShayCichocki/loom/internal/tui"
	"github.com/ShayCichocki/loom/internal/worktree"
	"github.com/ShayCichocki/loom/pkg/events"
	"github.com/ShayCichocki/loom/pkg/models"
)

var (
	runTickets   []string
	runNoTUI     bool
	runWorktrees bool
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Start a workflow run",
	Long: `Start a new workflow run rooted at the given goal.

Creates the root node, attaches any --ticket children, and opens the
TUI to watch the event stream. With --no-tui, events are printed to
stdout instead.

Examples:
  loom run "ship the release"
  loom run "refactor auth" --ticket "extract session store" --ticket "add tests"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringArrayVar(&runTickets, "ticket", nil, "Attach a ticket under the root (repeatable)")
	runCmd.Flags().BoolVar(&runNoTUI, "no-tui", false, "Print events to stdout instead of the TUI")
	runCmd.Flags().BoolVar(&runWorktrees, "worktrees", false, "Provision a git worktree per ticket")
}

func runRun(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	bus := events.NewBus()
	if err := bus.Subscribe(orchestrator.NewEventLogListener(stores.Log)); err != nil {
		return fmt.Errorf("subscribe event log: %w", err)
	}

	logger := orchestrator.NopLogger()
	if cfg.Logging.Debug {
		logger = newDebugLogger(cfg)
		defer logger.Close()
		if err := bus.Subscribe(orchestrator.NewDebugLogListener(logger)); err != nil {
			return fmt.Errorf("subscribe debug log: %w", err)
		}
	}

	hub, err := stream.NewHub(bus, stores.Log, stream.WithQueueSize(cfg.Stream.QueueSize))
	if err != nil {
		return fmt.Errorf("create stream hub: %w", err)
	}

	orch := orchestrator.New(stores.Graph, stores.Worktrees, bus,
		orchestrator.WithLogger(logger),
		orchestrator.WithArtifacts(stores.Artifacts))

	if runNoTUI {
		return runHeadless(orch, hub, goal)
	}
	return runWithTUI(orch, hub, cfg, goal)
}

// runWithTUI attaches a stream subscriber, starts the run, and hands the
// terminal to the TUI until the user quits.
func runWithTUI(orch *orchestrator.Orchestrator, hub *stream.Hub, cfg *config.Config, goal string) error {
	sub, err := hub.Attach("tui")
	if err != nil {
		return fmt.Errorf("attach stream: %w", err)
	}

	app := tui.New(orch.Graph(), sub, cfg.TUI.RefreshRate)
	program := tea.NewProgram(app, tea.WithAltScreen())

	startErr := make(chan error, 1)
	go func() {
		startErr <- startRun(orch, goal)
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return <-startErr
}

// runHeadless starts the run and prints the stream until it drains.
func runHeadless(orch *orchestrator.Orchestrator, hub *stream.Hub, goal string) error {
	sub, err := hub.Attach("stdout")
	if err != nil {
		return fmt.Errorf("attach stream: %w", err)
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for e := range sub.Events() {
			printEvent(os.Stdout, e)
		}
	}()

	runErr := startRun(orch, goal)
	sub.Close()
	<-drained
	return runErr
}

// startRun creates the root and attaches the requested tickets.
func startRun(orch *orchestrator.Orchestrator, goal string) error {
	var prov *worktree.Provisioner
	if runWorktrees {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		prov = worktree.NewProvisioner(
			worktree.NewExecGit(cwd),
			filepath.Join(cwd, ".loom", "worktrees"),
			orch,
		)
	}

	root, err := orch.StartRun(goal)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	for _, title := range runTickets {
		ticket := models.TicketNode{
			Core:          models.NewCore(root.ID.Child(), title, title, root.ID),
			TicketDetails: title,
		}
		if prov != nil {
			w, err := prov.Provision(ticket.ID)
			if err != nil {
				return fmt.Errorf("provision worktree for %q: %w", title, err)
			}
			ticket.WorktreeID = w.ID
		}
		if _, err := orch.AddChild(root.ID, ticket); err != nil {
			return fmt.Errorf("attach ticket %q: %w", title, err)
		}
	}
	return nil
}

// runStores bundles the opened backends so run/status/events share setup.
type runStores struct {
	Graph     store.Graph
	Log       store.EventLog
	Worktrees store.Worktrees
	Artifacts store.Artifacts
	db        *store.DB
}

func (s *runStores) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// openStores opens the configured storage backend.
func openStores(cfg *config.Config) (*runStores, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return &runStores{
			Graph:     store.NewMemoryGraph(),
			Log:       store.NewMemoryEventLog(),
			Worktrees: store.NewMemoryWorktrees(),
			Artifacts: store.NewMemoryArtifacts(),
		}, nil

	case "", "sqlite":
		path := cfg.Storage.Path
		if path == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("get working directory: %w", err)
			}
			path = store.ProjectDBPath(cwd)
		}
		db, err := store.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		return &runStores{
			Graph:     store.NewSQLiteGraph(db),
			Log:       store.NewSQLiteEventLog(db),
			Worktrees: store.NewSQLiteWorktrees(db),
			Artifacts: store.NewSQLiteArtifacts(db),
			db:        db,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func newDebugLogger(cfg *config.Config) *orchestrator.DebugLogger {
	if cfg.Logging.Path != "" {
		if l, err := orchestrator.NewDebugLogger(cfg.Logging.Path); err == nil {
			return l
		}
		return orchestrator.NopLogger()
	}
	cwd, err := os.Getwd()
	if err != nil {
		return orchestrator.NopLogger()
	}
	return orchestrator.NewDebugLoggerForRepo(cwd)
}
