package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/loom/internal/config"
	"github.com/ShayCichocki/loom/pkg/events"
	"github.com/ShayCichocki/loom/pkg/keys"
)

var (
	eventsNode string
	eventsJSON bool
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Aliases: []string{"replay"},
	Short:   "Replay the recorded event stream",
	Long: `Print every recorded event in the order it was published.

By default events are formatted one per line. Use --node to restrict
the replay to one node and its descendants, or --json to emit the raw
event envelopes.`,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsNode, "node", "", "Only events for this node key and its subtree")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "Emit raw event envelopes")
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	var list []events.Event
	if eventsNode != "" {
		key, err := keys.Parse(eventsNode)
		if err != nil {
			return fmt.Errorf("parse node key %q: %w", eventsNode, err)
		}
		list, err = stores.Log.ListForNode(key)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
	} else {
		list, err = stores.Log.List()
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
	}

	if len(list) == 0 {
		fmt.Println("No events recorded. Run 'loom run <goal>' to start.")
		return nil
	}

	for _, e := range list {
		if eventsJSON {
			raw, err := events.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal event %s: %w", e.EventID(), err)
			}
			fmt.Println(string(raw))
			continue
		}
		printEvent(os.Stdout, e)
	}
	return nil
}

// printEvent writes one formatted event line.
func printEvent(w io.Writer, e events.Event) {
	ts := e.OccurredAt().Format("15:04:05.000")
	typ := colorForType(e.Type()).Sprintf("%-24s", string(e.Type()))
	node := events.NodeKey(e).String()
	fmt.Fprintf(w, "%s  %s %s\n", ts, typ, node)
}

func colorForType(t events.Type) *color.Color {
	switch t {
	case events.TypeNodeError, events.TypeNodeDeleted:
		return color.New(color.FgRed)
	case events.TypeGoalCompleted, events.TypeWorktreeMerged:
		return color.New(color.FgGreen)
	case events.TypeNodeStatusChanged:
		return color.New(color.FgYellow)
	case events.TypeInterruptRequested, events.TypeInterruptStatus, events.TypeInterruptResolved:
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgCyan)
	}
}
