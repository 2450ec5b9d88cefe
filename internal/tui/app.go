// Package tui provides the terminal user interface for Loom: a live view
// of the workflow graph and its event stream.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/loom/internal/store"
	"github.com/ShayCichocki/loom/internal/stream"
	"github.com/ShayCichocki/loom/pkg/events"
)

// EventMsg wraps a stream event for the bubbletea loop.
type EventMsg struct {
	Event events.Event
}

// StreamClosedMsg signals the subscriber channel closed.
type StreamClosedMsg struct{}

// tickMsg drives the periodic graph refresh.
type tickMsg time.Time

// LogEntry is one rendered line of the event panel.
type LogEntry struct {
	Timestamp time.Time
	Type      events.Type
	Detail    string
}

// App is the main bubbletea model for the Loom TUI.
type App struct {
	graph       store.Graph
	sub         *stream.Subscriber
	refreshRate time.Duration

	nodes    *NodesPanel
	viewport viewport.Model
	spinner  spinner.Model

	logs     []LogEntry
	width    int
	height   int
	ready    bool
	quitting bool
	done     bool
}

// New creates the TUI app over a graph store and a stream subscriber.
func New(graph store.Graph, sub *stream.Subscriber, refreshRate time.Duration) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	if refreshRate <= 0 {
		refreshRate = 100 * time.Millisecond
	}
	return &App{
		graph:       graph,
		sub:         sub,
		refreshRate: refreshRate,
		nodes:       NewNodesPanel(),
		spinner:     sp,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.waitForEvent(), a.tick(), a.spinner.Tick)
}

// waitForEvent blocks on the subscriber channel and feeds the next event
// into the update loop.
func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-a.sub.Events()
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg{Event: e}
	}
}

func (a *App) tick() tea.Cmd {
	return tea.Tick(a.refreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			a.quitting = true
			a.sub.Close()
			return a, tea.Quit
		}
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.nodes.SetWidth(msg.Width)
		vpHeight := msg.Height - a.nodes.Height() - 3
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !a.ready {
			a.viewport = viewport.New(msg.Width, vpHeight)
			a.ready = true
		} else {
			a.viewport.Width = msg.Width
			a.viewport.Height = vpHeight
		}
		a.viewport.SetContent(a.renderLogs())
		return a, nil

	case EventMsg:
		a.appendLog(msg.Event)
		if msg.Event.Type() == events.TypeGoalCompleted {
			a.done = true
		}
		if a.ready {
			a.viewport.SetContent(a.renderLogs())
			a.viewport.GotoBottom()
		}
		return a, a.waitForEvent()

	case StreamClosedMsg:
		a.done = true
		return a, nil

	case tickMsg:
		a.nodes.Refresh(a.graph)
		return a, a.tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

// appendLog converts an event into a display line.
func (a *App) appendLog(e events.Event) {
	a.logs = append(a.logs, LogEntry{
		Timestamp: e.OccurredAt(),
		Type:      e.Type(),
		Detail:    eventDetail(e),
	})
	const maxLogs = 500
	if len(a.logs) > maxLogs {
		a.logs = a.logs[len(a.logs)-maxLogs:]
	}
}

// eventDetail picks the most useful one-line summary per event type.
func eventDetail(e events.Event) string {
	switch ev := e.(type) {
	case *events.NodeAdded:
		return fmt.Sprintf("%s %q", ev.Kind, ev.Title)
	case *events.NodeStatusChanged:
		return fmt.Sprintf("%s -> %s (%s)", ev.OldStatus, ev.NewStatus, ev.Reason)
	case *events.NodeError:
		return ev.Message
	case *events.NodeReviewRequested:
		return fmt.Sprintf("%s review requested", ev.ReviewType)
	case *events.GoalCompleted:
		return "goal completed"
	case *events.WorktreeMerged:
		return fmt.Sprintf("%s -> %s", ev.WorktreeID, ev.TargetWorktreeID)
	case *events.WorktreeDiscarded:
		return ev.WorktreeID
	case *events.InterruptStatus:
		return fmt.Sprintf("%s %s", ev.InterruptType, ev.InterruptStatus)
	case *events.MergePhaseCompleted:
		if ev.Success {
			return ev.Phase + " ok"
		}
		return ev.Phase + " failed: " + ev.Detail
	case *events.ActionCompleted:
		return ev.Action
	default:
		return events.NodeKey(e).String()
	}
}

func (a *App) renderLogs() string {
	var out string
	for _, entry := range a.logs {
		out += renderLogLine(entry) + "\n"
	}
	return out
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}
	header := titleStyle.Render("loom")
	status := a.spinner.View() + " running"
	if a.done {
		status = doneStyle.Render("✓ done (q to quit)")
	}

	body := a.nodes.View()
	if a.ready {
		body += "\n" + a.viewport.View()
	}
	return header + "  " + status + "\n" + body
}
