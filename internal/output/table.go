package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/reglet-dev/kiln/internal/engine"
)

// TableFormatter formats a build result as a human-readable table.
type TableFormatter struct {
	writer io.Writer
}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{writer: w}
}

// Format writes the build result as a table.
func (f *TableFormatter) Format(result *engine.BuildResult) error {
	fmt.Fprintf(f.writer, "Build: %s\n", result.BuildID)
	if result.Ref != "" {
		fmt.Fprintf(f.writer, "Image: %s\n", result.Ref)
	}
	if result.Digest != "" {
		fmt.Fprintf(f.writer, "Digest: %s\n", result.Digest)
	}
	fmt.Fprintf(f.writer, "Started: %s\n", result.StartTime.Format(time.RFC3339))
	fmt.Fprintf(f.writer, "Duration: %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintln(f.writer)

	fmt.Fprintln(f.writer, "Phases:")
	fmt.Fprintln(f.writer, strings.Repeat("─", 80))

	for _, p := range result.Phases {
		f.formatPhase(p)
	}

	fmt.Fprintln(f.writer, strings.Repeat("─", 80))

	if result.Failed() {
		fmt.Fprintln(f.writer, "Result: FAILED")
	} else {
		fmt.Fprintln(f.writer, "Result: OK")
		if result.Lockfile != "" {
			fmt.Fprintf(f.writer, "Lockfile: %s\n", result.Lockfile)
		}
	}

	return nil
}

func (f *TableFormatter) formatPhase(p engine.PhaseResult) {
	status := strings.ToUpper(string(p.Status))
	fmt.Fprintf(f.writer, "  %-16s %-8s %8s", p.Name, status, p.Duration.Round(time.Millisecond))
	if p.Detail != "" {
		detail := p.Detail
		if idx := strings.IndexByte(detail, '\n'); idx >= 0 {
			detail = detail[:idx] + " ..."
		}
		fmt.Fprintf(f.writer, "  %s", detail)
	}
	fmt.Fprintln(f.writer)
}
