package configuration

import (
	"fmt"
	"io"

	"github.com/wbrown/janus-por/por/event"
)

// ToDot renders the configuration as a Graphviz dot graph, coloring
// each event in the backing unfolding by its relationship to this
// configuration:
//
//   - included events (this configuration's downward-closed set): black
//   - frontier events (each thread's latest included event): dark green
//   - events with an immediate conflict against something included,
//     but not included themselves: red
//   - every other event of the unfolding: gray
//   - cutoff events: dashed border, in addition to their color above
func (c *Configuration) ToDot(w io.Writer) {
	fmt.Fprintln(w, "digraph configuration {")
	fmt.Fprintln(w, `  rankdir="TB";`)

	frontier := c.frontierSet()

	for _, e := range c.u.All() {
		color := "black"
		switch {
		case c.included[e] && frontier[e]:
			color = "darkgreen"
		case c.included[e]:
			color = "black"
		case c.conflictsWithIncluded(e):
			color = "red"
		default:
			color = "gray70"
		}
		style := "solid"
		if e.IsCutoff() {
			style = "dashed"
		}
		fmt.Fprintf(w, "  %q [label=%q, color=%q, style=%q];\n", nodeID(e), e.String(), color, style)
		for _, p := range e.Predecessors() {
			fmt.Fprintf(w, "  %q -> %q;\n", nodeID(p), nodeID(e))
		}
	}
	fmt.Fprintln(w, "}")
}

func nodeID(e *event.Event) string {
	return fmt.Sprintf("%p", e)
}

func (c *Configuration) frontierSet() map[*event.Event]bool {
	out := make(map[*event.Event]bool, len(c.frontier))
	for _, e := range c.frontier {
		out[e] = true
	}
	return out
}

func (c *Configuration) conflictsWithIncluded(e *event.Event) bool {
	for _, conflict := range e.ImmediateConflicts() {
		if c.included[conflict] {
			return true
		}
	}
	return false
}
