package refactor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mikematt33/qgate/internal/config"
	"github.com/mikematt33/qgate/internal/toolchain"
)

// GateType identifies a validation gate.
type GateType string

const (
	GateLint      GateType = "lint"
	GateTypecheck GateType = "typecheck"
	GateTest      GateType = "test"
)

const defaultGateTimeout = 10 * time.Minute

// GateResult represents the outcome of a single validation gate.
type GateResult struct {
	Gate     GateType
	Command  string
	Passed   bool
	Skipped  bool
	Output   string
	Duration time.Duration
	Err      error
}

// GateOptions controls a RunAll pass.
type GateOptions struct {
	SkipTests bool
	// FailFast stops at the first failing gate.
	FailFast bool
}

// Gates runs the project's lint, typecheck and test scripts.
type Gates struct {
	tc  *toolchain.Context
	cfg config.RefactorConfig
}

func NewGates(tc *toolchain.Context, cfg config.RefactorConfig) *Gates {
	return &Gates{tc: tc, cfg: cfg}
}

func (g *Gates) command(gate GateType) string {
	switch gate {
	case GateLint:
		return g.cfg.LintCommand
	case GateTypecheck:
		return g.cfg.TypecheckCommand
	case GateTest:
		return g.cfg.TestCommand
	}
	return ""
}

// Run executes one gate. A gate with no configured command passes as skipped.
func (g *Gates) Run(ctx context.Context, gate GateType) *GateResult {
	line := strings.TrimSpace(g.command(gate))
	result := &GateResult{Gate: gate, Command: line}
	if line == "" {
		result.Passed = true
		result.Skipped = true
		return result
	}

	cmd := toolchain.Shell(line)
	cmd.Timeout = g.cfg.ValidationTimeout
	if cmd.Timeout <= 0 {
		cmd.Timeout = defaultGateTimeout
	}

	res, err := g.tc.Run(ctx, cmd)
	if res != nil {
		result.Output = res.Combined()
		result.Duration = res.Duration
	}
	switch {
	case err != nil:
		result.Err = fmt.Errorf("%s gate: %w", gate, err)
	case !res.OK():
		result.Err = fmt.Errorf("%s gate failed: `%s` exited %d", gate, line, res.ExitCode)
	default:
		result.Passed = true
	}
	return result
}

// RunAll executes lint, typecheck and test in that order.
// Returns the results and whether all gates passed.
func (g *Gates) RunAll(ctx context.Context, opts GateOptions) ([]*GateResult, bool) {
	order := []GateType{GateLint, GateTypecheck, GateTest}

	var results []*GateResult
	allPassed := true
	for _, gate := range order {
		if gate == GateTest && opts.SkipTests {
			results = append(results, &GateResult{Gate: gate, Passed: true, Skipped: true})
			continue
		}

		result := g.Run(ctx, gate)
		results = append(results, result)
		if !result.Passed {
			allPassed = false
			if opts.FailFast {
				break
			}
		}
	}
	return results, allPassed
}

// FirstFailure returns the first failing result, if any.
func FirstFailure(results []*GateResult) *GateResult {
	for _, r := range results {
		if !r.Passed {
			return r
		}
	}
	return nil
}

// TimedOut reports whether the gate was killed by its timeout.
func (r *GateResult) TimedOut() bool {
	return r != nil && errors.Is(r.Err, toolchain.ErrTimeout)
}
