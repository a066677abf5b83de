// Package report renders usage summaries, provider status and call results
// as terminal tables. Colour is used only when the writer is a terminal.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"github.com/upb/agency-llm-client/services/credentials"
	"github.com/upb/agency-llm-client/services/providers"
	"github.com/upb/agency-llm-client/services/usage"
)

type fdWriter interface {
	Fd() uintptr
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(fdWriter)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type styles struct {
	title  lipgloss.Style
	header lipgloss.Style
	cell   lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	bad    lipgloss.Style
	dim    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	cell := lipgloss.NewStyle().Padding(0, 1)
	if !IsTerminal(w) {
		plain := lipgloss.NewStyle()
		return styles{title: plain, header: cell, cell: cell, ok: cell, warn: cell, bad: cell, dim: cell}
	}
	return styles{
		title:  lipgloss.NewStyle().Bold(true),
		header: cell.Bold(true).Foreground(lipgloss.Color("6")),
		cell:   cell,
		ok:     cell.Foreground(lipgloss.Color("2")),
		warn:   cell.Foreground(lipgloss.Color("3")),
		bad:    cell.Bold(true).Foreground(lipgloss.Color("1")),
		dim:    cell.Foreground(lipgloss.Color("8")),
	}
}

func (s styles) newTable(headers []string, rows [][]string, rowStyle func(row int) lipgloss.Style) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.header
			}
			if rowStyle != nil && row >= 0 && row < len(rows) {
				return rowStyle(row)
			}
			return s.cell
		})
	return t
}

// RenderSummary writes the usage totals followed by per-provider and
// per-agent tables. Rows are sorted by name.
func RenderSummary(w io.Writer, summary *usage.Summary) error {
	if summary == nil {
		return fmt.Errorf("summary is nil")
	}
	s := newStyles(w)

	fmt.Fprintln(w, s.title.Render("Usage summary"))
	fmt.Fprintf(w, "Total calls:  %d (%d failed)\n", summary.TotalCalls, summary.FailedCalls)
	fmt.Fprintf(w, "Total tokens: %d\n", summary.TotalTokens)
	fmt.Fprintf(w, "Total cost:   $%.4f\n", summary.TotalCost)

	if len(summary.ByProvider) == 0 {
		_, err := fmt.Fprintln(w, "No successful calls recorded.")
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, s.title.Render("By provider"))
	fmt.Fprintln(w, s.newTable([]string{"Provider", "Calls", "Tokens", "Cost"}, bucketRows(summary.ByProvider), nil))

	fmt.Fprintln(w)
	fmt.Fprintln(w, s.title.Render("By agent"))
	_, err := fmt.Fprintln(w, s.newTable([]string{"Agent", "Calls", "Tokens", "Cost"}, bucketRows(summary.ByAgent), nil))
	return err
}

func bucketRows(buckets map[string]*usage.Bucket) [][]string {
	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		b := buckets[name]
		rows = append(rows, []string{name, fmt.Sprint(b.Calls), fmt.Sprint(b.Tokens), fmt.Sprintf("$%.4f", b.Cost)})
	}
	return rows
}

// RenderStatus writes one row per configured provider with its credential
// readiness.
func RenderStatus(w io.Writer, statuses map[string]credentials.Status) error {
	s := newStyles(w)

	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		st := statuses[name]
		rows = append(rows, []string{name, yesNo(st.Enabled), yesNo(st.Available), dash(st.EnvVar), st.Reason})
	}

	rowStyle := func(row int) lipgloss.Style {
		st := statuses[names[row]]
		switch {
		case !st.Enabled:
			return s.dim
		case st.Available:
			return s.ok
		case st.EnvVar == "":
			return s.bad
		default:
			return s.warn
		}
	}

	fmt.Fprintln(w, s.title.Render("Provider status"))
	_, err := fmt.Fprintln(w, s.newTable([]string{"Provider", "Enabled", "Available", "Env var", "Detail"}, rows, rowStyle))
	return err
}

// RenderResponse writes the content of a call followed by its provider,
// token counts and cost.
func RenderResponse(w io.Writer, resp *providers.APIResponse) error {
	if resp == nil {
		return fmt.Errorf("response is nil")
	}
	s := newStyles(w)

	fmt.Fprintln(w, resp.Content)
	fmt.Fprintln(w)
	fmt.Fprintln(w, s.title.Render("Provided by: "+resp.Provider+" ("+resp.Model+")"))
	fmt.Fprintf(w, "Tokens: %d in + %d out\n", resp.InputTokens, resp.OutputTokens)
	_, err := fmt.Fprintf(w, "Cost: $%.4f\n", resp.CostUSD)
	return err
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func dash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
