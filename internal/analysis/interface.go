package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mikematt33/qgate/internal/config"
	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/pkg/models"
)

// DefaultToolTimeout bounds tools that have no configured timeout of their own.
const DefaultToolTimeout = 10 * time.Minute

// Config defines the scope of one collection
type Config struct {
	Targets    []string // Directories analyzed, relative to the project root
	MetricsDir string   // Where tool working output is written
	Tools      config.ToolsConfig
}

// Analyzer is the interface every metric family implements.
type Analyzer interface {
	Name() string
	// Analyze runs the underlying tool and fills its sub-record of m.
	Analyze(ctx context.Context, tc *toolchain.Context, cfg Config, m *models.Metrics) error
	// Skip marks the sub-record as not collected.
	Skip(m *models.Metrics, reason string)
}

// CommandLine splits a configured command line and appends extra arguments.
// Configured commands are plain words; quoting is not interpreted.
func CommandLine(line string, extra ...string) (toolchain.Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return toolchain.Command{}, fmt.Errorf("no command configured")
	}
	args := append(fields[1:len(fields):len(fields)], extra...)
	return toolchain.Command{Name: fields[0], Args: args}, nil
}

// OutputError describes a tool whose output could not be used.
func OutputError(tool string, res *toolchain.Result, cause error) error {
	tail := ""
	if res != nil {
		tail = strings.TrimSpace(res.Tail(3))
	}
	if tail == "" {
		return fmt.Errorf("%s produced unusable output: %w", tool, cause)
	}
	return fmt.Errorf("%s produced unusable output: %w (%s)", tool, cause, tail)
}
