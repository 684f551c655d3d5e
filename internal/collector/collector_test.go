package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mikematt33/qgate/internal/analysis"
	"github.com/mikematt33/qgate/internal/analysis/analyzers/coverage"
	"github.com/mikematt33/qgate/internal/analysis/analyzers/dependencies"
	"github.com/mikematt33/qgate/internal/analysis/analyzers/lint"
	"github.com/mikematt33/qgate/internal/analysis/analyzers/security"
	"github.com/mikematt33/qgate/internal/analysis/analyzers/techdebt"
	"github.com/mikematt33/qgate/internal/cache"
	"github.com/mikematt33/qgate/internal/config"
	"github.com/mikematt33/qgate/internal/runlog"
	"github.com/mikematt33/qgate/internal/toolchain"
	"github.com/mikematt33/qgate/internal/toolchain/toolchaintest"
	"github.com/mikematt33/qgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commit = "0123456789abcdef0123456789abcdef01234567"

var fixedNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

// stub reuses a real analyzer's name and skip behavior but scripts Analyze.
type stub struct {
	analysis.Analyzer
	err   error
	fill  func(*models.Metrics)
	calls int
}

func (s *stub) Analyze(ctx context.Context, tc *toolchain.Context, cfg analysis.Config, m *models.Metrics) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	if s.fill != nil {
		s.fill(m)
	}
	return nil
}

func projectDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte(`{"name":"app"}`), 0644))
	return root
}

func gitRunner(root, status string) *toolchaintest.FakeRunner {
	prefix := "git -C " + root + " "
	return toolchaintest.NewFakeRunner().
		On(prefix+"rev-parse --is-inside-work-tree", toolchaintest.Stdout(0, "true\n")).
		On(prefix+"rev-parse --abbrev-ref HEAD", toolchaintest.Stdout(0, "main\n")).
		On(prefix+"rev-parse HEAD", toolchaintest.Stdout(0, commit+"\n")).
		On(prefix+"status --porcelain", toolchaintest.Stdout(0, status)).
		On("node --version", toolchaintest.Stdout(0, "v20.11.0\n")).
		On("npm --version", toolchaintest.Stdout(0, "10.2.4\n")).
		On("git --version", toolchaintest.Stdout(0, "git version 2.43.0\n"))
}

func newCollector(runner toolchain.Runner, analyzers ...analysis.Analyzer) *Collector {
	c := New(runner, config.Default(), runlog.Nop())
	c.Analyzers = analyzers
	c.Now = func() time.Time { return fixedNow }
	return c
}

func TestCollect(t *testing.T) {
	root := projectDir(t)
	runner := gitRunner(root, "")

	lintStub := &stub{Analyzer: lint.New(), fill: func(m *models.Metrics) { m.ESLint.Errors = 4 }}
	covStub := &stub{Analyzer: coverage.New(), err: errors.New("jest exploded")}
	secStub := &stub{Analyzer: security.New()}
	c := newCollector(runner, lintStub, covStub, secStub)

	snap, err := c.Collect(context.Background(), Options{Root: root, SkipSecurity: true})
	require.NoError(t, err)

	assert.Equal(t, models.SchemaVersion, snap.SchemaVersion)
	assert.Equal(t, fixedNow, snap.Timestamp)
	assert.Equal(t, []string{"src"}, snap.Targets)
	assert.Equal(t, models.GitInfo{Commit: commit, Branch: "main"}, snap.Git)
	assert.Equal(t, map[string]string{
		"node": "v20.11.0",
		"npm":  "10.2.4",
		"git":  "git version 2.43.0",
	}, snap.ToolVersions)

	assert.Equal(t, 4, snap.Metrics.ESLint.Errors)
	assert.False(t, snap.Metrics.ESLint.Skipped)

	assert.True(t, snap.Metrics.Coverage.Skipped)
	assert.Equal(t, "jest exploded", snap.Metrics.Coverage.SkipReason)

	assert.True(t, snap.Metrics.Security.Skipped)
	assert.Equal(t, SkipByFlag, snap.Metrics.Security.SkipReason)
	assert.Zero(t, secStub.calls, "flag-skipped analyzer must not run")
}

func TestCollectFindsRootFromSubdirectory(t *testing.T) {
	root := projectDir(t)
	sub := filepath.Join(root, "src", "components")
	require.NoError(t, os.MkdirAll(sub, 0755))

	c := newCollector(gitRunner(root, ""))
	snap, err := c.Collect(context.Background(), Options{Root: sub, Targets: []string{"lib"}})
	require.NoError(t, err)
	assert.Equal(t, commit, snap.Git.Commit)
	assert.Equal(t, []string{"lib"}, snap.Targets)
}

func TestCollectNoProjectRoot(t *testing.T) {
	c := newCollector(toolchaintest.NewFakeRunner())
	_, err := c.Collect(context.Background(), Options{Root: t.TempDir()})
	assert.True(t, errors.Is(err, toolchain.ErrNoProjectRoot))
}

func TestCollectRequiresNode(t *testing.T) {
	root := projectDir(t)
	runner := gitRunner(root, "").Missing("node")
	lintStub := &stub{Analyzer: lint.New()}

	_, err := newCollector(runner, lintStub).Collect(context.Background(), Options{Root: root})
	assert.True(t, errors.Is(err, toolchain.ErrToolUnavailable))
	assert.Zero(t, lintStub.calls)
}

func TestCollectWithoutGit(t *testing.T) {
	root := projectDir(t)
	runner := toolchaintest.NewFakeRunner().Missing("git")

	snap, err := newCollector(runner, &stub{Analyzer: lint.New()}).Collect(context.Background(), Options{Root: root})
	require.NoError(t, err)
	assert.Equal(t, models.GitInfo{}, snap.Git)
	assert.NotContains(t, snap.ToolVersions, "git")
}

func TestCollectUsesCacheOnCleanTree(t *testing.T) {
	root := projectDir(t)
	store, err := cache.New(t.TempDir(), time.Hour)
	require.NoError(t, err)

	deps := &stub{Analyzer: dependencies.New(), fill: func(m *models.Metrics) { m.Dependencies.OutdatedCount = 7 }}
	c := newCollector(gitRunner(root, ""), deps)
	c.Cache = store

	first, err := c.Collect(context.Background(), Options{Root: root})
	require.NoError(t, err)
	second, err := c.Collect(context.Background(), Options{Root: root})
	require.NoError(t, err)

	assert.Equal(t, 1, deps.calls)
	assert.Equal(t, first.Metrics, second.Metrics)
	assert.Equal(t, first.ToolVersions, second.ToolVersions)

	_, err = c.Collect(context.Background(), Options{Root: root, NoCache: true})
	require.NoError(t, err)
	assert.Equal(t, 2, deps.calls)
}

// eslintByDir answers eslint with a per-directory error count.
func eslintByDir(errs map[string]int) toolchaintest.Handler {
	return func(cmd toolchain.Command) (*toolchain.Result, error) {
		n := errs[cmd.Dir]
		return &toolchain.Result{
			ExitCode: 1,
			Stdout:   fmt.Sprintf(`[{"filePath":"src/index.js","errorCount":%d,"warningCount":0}]`, n),
		}, nil
	}
}

func TestCollectCacheIsScopedToProjectRoot(t *testing.T) {
	repo := t.TempDir()
	pkgA := filepath.Join(repo, "packages", "a")
	pkgB := filepath.Join(repo, "packages", "b")
	runner := toolchaintest.NewFakeRunner().
		On("npx eslint", eslintByDir(map[string]int{pkgA: 5, pkgB: 42}))
	for _, root := range []string{pkgA, pkgB} {
		require.NoError(t, os.MkdirAll(root, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte(`{"name":"pkg"}`), 0644))
		prefix := "git -C " + root + " "
		runner.
			On(prefix+"rev-parse --is-inside-work-tree", toolchaintest.Stdout(0, "true\n")).
			On(prefix+"rev-parse --abbrev-ref HEAD", toolchaintest.Stdout(0, "main\n")).
			On(prefix+"rev-parse HEAD", toolchaintest.Stdout(0, commit+"\n"))
	}

	store, err := cache.New(t.TempDir(), time.Hour)
	require.NoError(t, err)
	c := newCollector(runner, lint.New())
	c.Cache = store

	a, err := c.Collect(context.Background(), Options{Root: pkgA})
	require.NoError(t, err)
	b, err := c.Collect(context.Background(), Options{Root: pkgB})
	require.NoError(t, err)

	assert.Equal(t, a.Git.Commit, b.Git.Commit)
	assert.Equal(t, 5, a.Metrics.ESLint.Errors)
	assert.Equal(t, 42, b.Metrics.ESLint.Errors)
}

func TestCollectCacheIsScopedToToolCommands(t *testing.T) {
	root := projectDir(t)
	store, err := cache.New(t.TempDir(), time.Hour)
	require.NoError(t, err)

	deps := &stub{Analyzer: dependencies.New()}
	c := newCollector(gitRunner(root, ""), deps)
	c.Cache = store

	_, err = c.Collect(context.Background(), Options{Root: root})
	require.NoError(t, err)

	c.Config.Tools.Outdated = "pnpm outdated --format json"
	_, err = c.Collect(context.Background(), Options{Root: root})
	require.NoError(t, err)
	assert.Equal(t, 2, deps.calls, "a changed tool command must not reuse cached metrics")
}

func TestCollectIsIdempotentOnUnchangedTree(t *testing.T) {
	root := projectDir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "lib"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "index.js"),
		[]byte("// TODO: split\nconst url = \"http://x FIXME\";\n/* HACK */\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "lib", "util.ts"),
		[]byte("export const a = 1; // FIXME types\n"), 0644))

	runner := gitRunner(root, "").On("npx eslint", eslintByDir(map[string]int{root: 3}))
	store, err := cache.New(t.TempDir(), time.Hour)
	require.NoError(t, err)
	c := newCollector(runner, lint.New(), techdebt.New())
	c.Cache = store

	first, err := c.Collect(context.Background(), Options{Root: root, NoCache: true})
	require.NoError(t, err)
	second, err := c.Collect(context.Background(), Options{Root: root, NoCache: true})
	require.NoError(t, err)

	if diff := cmp.Diff(first.Metrics, second.Metrics); diff != "" {
		t.Errorf("metrics changed between identical collections (-first +second):\n%s", diff)
	}
	assert.Equal(t, models.TechDebtMetrics{TodoCount: 1, FixmeCount: 1, HackCount: 1, TotalDebt: 3}, first.Metrics.TechDebt)
	assert.Equal(t, 3, first.Metrics.ESLint.Errors)

	eslintRuns := 0
	for _, call := range runner.Calls() {
		if strings.HasPrefix(call, "npx eslint") {
			eslintRuns++
		}
	}
	assert.Equal(t, 2, eslintRuns, "both collections must run the tools")
}

func TestCollectSkipsCacheOnDirtyTree(t *testing.T) {
	root := projectDir(t)
	store, err := cache.New(t.TempDir(), time.Hour)
	require.NoError(t, err)

	deps := &stub{Analyzer: dependencies.New()}
	c := newCollector(gitRunner(root, " M src/index.js\n"), deps)
	c.Cache = store

	for i := 0; i < 2; i++ {
		snap, err := c.Collect(context.Background(), Options{Root: root})
		require.NoError(t, err)
		assert.True(t, snap.Git.Dirty)
	}
	assert.Equal(t, 2, deps.calls)
}

func TestCollectDoesNotCacheFailures(t *testing.T) {
	root := projectDir(t)
	store, err := cache.New(t.TempDir(), time.Hour)
	require.NoError(t, err)

	flaky := &stub{Analyzer: security.New(), err: errors.New("registry unreachable")}
	c := newCollector(gitRunner(root, ""), flaky)
	c.Cache = store

	for i := 0; i < 2; i++ {
		_, err := c.Collect(context.Background(), Options{Root: root})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, flaky.calls)
}

func TestCollectCancelled(t *testing.T) {
	root := projectDir(t)
	ctx, cancel := context.WithCancel(context.Background())

	first := &stub{Analyzer: lint.New(), fill: func(*models.Metrics) { cancel() }}
	second := &stub{Analyzer: coverage.New()}

	_, err := newCollector(gitRunner(root, ""), first, second).Collect(ctx, Options{Root: root})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, second.calls)
}

func TestCollectShowsProgress(t *testing.T) {
	root := projectDir(t)
	var out bytes.Buffer

	c := newCollector(gitRunner(root, ""), &stub{Analyzer: lint.New()})
	c.Progress = &out
	_, err := c.Collect(context.Background(), Options{Root: root, ShowProgress: true})
	require.NoError(t, err)
	assert.NotEmpty(t, out.String())
}

func TestDefaultAnalyzersOrder(t *testing.T) {
	var names []string
	for _, az := range DefaultAnalyzers() {
		names = append(names, az.Name())
	}
	assert.Equal(t, []string{"eslint", "duplication", "coverage", "security", "techDebt", "dependencies"}, names)
}
