package unfolding

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/wbrown/janus-por/por"
)

// Statistics summarizes the current contents of an Unfolding, for the
// --log-por-events / explorer CLI to report after a run.
type Statistics struct {
	TotalEvents   int
	CutoffEvents  int
	ConflictEdges int
	MaxDepth      uint64
	ByKind        map[por.EventKind]int
	ByThread      map[string]int
}

// Stats computes a fresh Statistics snapshot. It walks every event
// currently in the store, so it should only be called for reporting,
// not in a hot exploration loop.
func (u *Unfolding) Stats() Statistics {
	s := Statistics{
		ByKind:   make(map[por.EventKind]int),
		ByThread: make(map[string]int),
	}
	for _, e := range u.all {
		s.TotalEvents++
		s.ByKind[e.Kind()]++
		s.ByThread[e.Tid().String()]++
		if e.IsCutoff() {
			s.CutoffEvents++
		}
		if e.Depth() > s.MaxDepth {
			s.MaxDepth = e.Depth()
		}
		s.ConflictEdges += len(e.ImmediateConflicts())
	}
	// Each immediate-conflict edge is recorded symmetrically on both
	// endpoints, so the raw sum double-counts.
	s.ConflictEdges /= 2
	return s
}

// Render writes stats to w as two human-readable markdown tables: the
// totals, then the per-kind counts.
func Render(w io.Writer, s Statistics) {
	table := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"metric", "value"})
	table.Append([]string{"total events", humanize.Comma(int64(s.TotalEvents))})
	table.Append([]string{"cutoff events", humanize.Comma(int64(s.CutoffEvents))})
	table.Append([]string{"conflict edges", humanize.Comma(int64(s.ConflictEdges))})
	table.Append([]string{"max depth", humanize.Comma(int64(s.MaxDepth))})
	table.Append([]string{"threads", humanize.Comma(int64(len(s.ByThread)))})
	table.Render()

	kinds := make([]por.EventKind, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	byKind := tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	byKind.Header([]string{"kind", "count"})
	for _, k := range kinds {
		byKind.Append([]string{k.String(), humanize.Comma(int64(s.ByKind[k]))})
	}
	byKind.Render()

	fmt.Fprintf(w, "\n")
}
