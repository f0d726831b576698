package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	dErrors "mutuals/pkg/domain-errors"
)

// FormatLine renders one bucket as "<count>: [<name>, <name>]".
func FormatLine(b Bucket) string {
	return fmt.Sprintf("%d: [%s]", b.Count, strings.Join(b.Names, ", "))
}

// Write renders the full report: the enabled histograms, every bucket, then
// the per-user detail.
func Write(w io.Writer, rep Report) error {
	bw := bufio.NewWriter(w)

	if rep.FetchGroups {
		writeHistogram(bw, "Shared groups:", rep.Groups)
	}
	if rep.FetchConnections {
		writeHistogram(bw, "Shared connections:", rep.Connections)
	}

	fmt.Fprintln(bw, "Individual user data:")
	for _, u := range rep.Users {
		fmt.Fprintf(bw, "%s (%s):\n", u.Name, u.Identifier)
		if rep.FetchGroups {
			groups := make([]string, len(u.Groups))
			for i, g := range u.Groups {
				groups[i] = g.String()
			}
			fmt.Fprintf(bw, "Shared groups: %s\n", strings.Join(groups, ", "))
		}
		if rep.FetchConnections {
			fmt.Fprintf(bw, "Shared connections: %s\n", strings.Join(u.Connections, ", "))
		}
		fmt.Fprintln(bw)
	}

	return bw.Flush()
}

func writeHistogram(w io.Writer, title string, h Histogram) {
	fmt.Fprintln(w, title)
	for _, b := range h {
		fmt.Fprintln(w, FormatLine(b))
	}
	fmt.Fprintln(w)
}

// WriteFile replaces path with the rendered report.
func WriteFile(path string, rep Report) error {
	f, err := os.Create(path)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create report file")
	}
	if err := Write(f, rep); err != nil {
		_ = f.Close()
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write report")
	}
	if err := f.Close(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to close report file")
	}
	return nil
}
