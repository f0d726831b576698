package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF"))

	countStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF"))

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFF00"))
)

// Console prints the short summary shown at the end of a run.
type Console struct {
	out           io.Writer
	styled        bool
	minGroups     int
	minConnection int
}

// NewConsole writes to out. Styling is enabled only when out is a terminal.
func NewConsole(out io.Writer, minGroups, minConnections int) *Console {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Console{out: out, styled: styled, minGroups: minGroups, minConnection: minConnections}
}

func (c *Console) render(style lipgloss.Style, s string) string {
	if !c.styled {
		return s
	}
	return style.Render(s)
}

// Print shows only buckets at or above the configured thresholds.
func (c *Console) Print(rep Report, outputPath string) {
	if rep.FetchGroups {
		fmt.Fprintln(c.out, c.render(titleStyle, fmt.Sprintf("People with %d or more shared groups:", c.minGroups)))
		c.printHistogram(rep.Groups.AtLeast(c.minGroups))
	}
	if rep.FetchConnections {
		fmt.Fprintln(c.out, c.render(titleStyle, fmt.Sprintf("People with %d or more shared connections:", c.minConnection)))
		c.printHistogram(rep.Connections.AtLeast(c.minConnection))
	}

	s := rep.Stats
	fmt.Fprintln(c.out, c.render(statsStyle, fmt.Sprintf(
		"resolved %d of %d, abandoned %d, rate limited %d times (%s waiting)",
		s.Resolved, s.Total, s.Abandoned, s.RateLimitEvents, s.TotalBackoff,
	)))
	if s.Cancelled {
		fmt.Fprintln(c.out, c.render(warnStyle, "run was cancelled; results are partial"))
	}
	if outputPath != "" {
		fmt.Fprintf(c.out, "Full results are in %s\n", outputPath)
	}
}

func (c *Console) printHistogram(h Histogram) {
	for _, b := range h {
		label := fmt.Sprintf("%d:", b.Count)
		fmt.Fprintf(c.out, "%s [%s]\n", c.render(countStyle, label), strings.Join(b.Names, ", "))
	}
	fmt.Fprintln(c.out)
}
