package tui

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/loom/internal/store"
	"github.com/ShayCichocki/loom/pkg/models"
)

// NodesPanel renders the workflow graph as an indented tree with a
// status summary line.
type NodesPanel struct {
	width    int
	maxRows  int
	rendered string
}

func NewNodesPanel() *NodesPanel {
	return &NodesPanel{maxRows: 12}
}

func (p *NodesPanel) SetWidth(w int) {
	p.width = w
}

// Height reports the rendered row count including the panel border.
func (p *NodesPanel) Height() int {
	if p.rendered == "" {
		return 3
	}
	return strings.Count(p.rendered, "\n") + 1
}

// Refresh re-reads the graph and rebuilds the panel content.
func (p *NodesPanel) Refresh(g store.Graph) {
	nodes, err := g.FindAll()
	if err != nil {
		p.rendered = panelStyle.Render(dimStyle.Render("graph unavailable: " + err.Error()))
		return
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

	var b strings.Builder
	b.WriteString(summaryLine(len(nodes), counts))
	for _, root := range roots {
		p.writeTree(&b, byID, root, 0)
	}
	p.rendered = panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func summaryLine(total int, counts map[models.Status]int) string {
	parts := []string{fmt.Sprintf("%d nodes", total)}
	for _, s := range []models.Status{
		models.StatusRunning,
		models.StatusReady,
		models.StatusPending,
		models.StatusWaitingReview,
		models.StatusWaitingInput,
		models.StatusCompleted,
		models.StatusFailed,
	} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], renderStatus(s)))
		}
	}
	return strings.Join(parts, dimStyle.Render(" | ")) + "\n"
}

func (p *NodesPanel) writeTree(b *strings.Builder, byID map[string]models.Node, n models.Node, depth int) {
	if strings.Count(b.String(), "\n") >= p.maxRows {
		return
	}
	base := n.Base()
	indent := strings.Repeat("  ", depth)
	line := fmt.Sprintf("%s%s %s [%s]", indent, dimStyle.Render(string(n.Kind())), base.Title, renderStatus(base.Status))
	if p.width > 4 && len(line) > p.width-4 {
		line = line[:p.width-4]
	}
	b.WriteString(line + "\n")
	for _, childID := range base.ChildIDs {
		if child, ok := byID[childID.String()]; ok {
			p.writeTree(b, byID, child, depth+1)
		}
	}
}

// View returns the last rendered panel.
func (p *NodesPanel) View() string {
	return p.rendered
}
