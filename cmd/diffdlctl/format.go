package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/wbrown/janus-diffdl/diffdl"
)

// resultRenderer pretty-prints arrangement/relation query results, the
// same shape as the teacher's RelationRenderer: a count colorized by
// size, plus a markdown table of the member values.
type resultRenderer struct {
	useColor bool
}

func newResultRenderer() *resultRenderer {
	return &resultRenderer{useColor: isTerminal(os.Stdout)}
}

func isTerminal(f *os.File) bool {
	return f.Fd() == uintptr(1) || f.Fd() == uintptr(2)
}

// colorizeCount formats a count, colored by size the way the teacher's
// relation renderer colors tuple counts.
func (r *resultRenderer) colorizeCount(count int) string {
	s := fmt.Sprintf("%d", count)
	if !r.useColor {
		return s
	}
	switch {
	case count == 0:
		return color.RedString(s)
	case count < 10:
		return color.GreenString(s)
	case count < 1000:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// renderValues renders a ValueSet as "<label>: N values [v1 v2 ...]".
func (r *resultRenderer) renderValues(label string, set *diffdl.ValueSet) string {
	if set == nil || set.Len() == 0 {
		return fmt.Sprintf("%s: %s values", label, r.colorizeCount(0))
	}
	parts := make([]string, 0, set.Len())
	for _, v := range set.Values() {
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	return fmt.Sprintf("%s: %s values [%s]", label, r.colorizeCount(set.Len()), strings.Join(parts, " "))
}

// renderEdgeTable renders a slice of edge values as a markdown table.
func (r *resultRenderer) renderEdgeTable(title string, edges []diffdl.Value) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s rows)\n", title, r.colorizeCount(len(edges)))
	if len(edges) == 0 {
		return b.String()
	}

	table := tablewriter.NewTable(&b,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment([]tw.Align{tw.AlignNone, tw.AlignNone}),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"from", "to"})
	for _, v := range edges {
		e := v.(edge)
		table.Append([]string{fmt.Sprintf("%d", e.From), fmt.Sprintf("%d", e.To)})
	}
	table.Render()
	return b.String()
}
