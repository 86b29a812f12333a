// Package output provides formatters for Kiln build reports.
package output

import (
	"fmt"
	"io"

	"github.com/reglet-dev/kiln/internal/engine"
)

// Formatter writes a build result in one output format.
type Formatter interface {
	Format(result *engine.BuildResult) error
}

// NewFormatter returns a formatter for the given format name.
func NewFormatter(format string, writer io.Writer) (Formatter, error) {
	switch format {
	case "table":
		return NewTableFormatter(writer), nil
	case "json":
		return NewJSONFormatter(writer), nil
	case "yaml":
		return NewYAMLFormatter(writer), nil
	default:
		return nil, fmt.Errorf("unknown format: %s (supported: %v)", format, SupportedFormats())
	}
}

// SupportedFormats returns list of available format names.
func SupportedFormats() []string {
	return []string{"table", "json", "yaml"}
}
