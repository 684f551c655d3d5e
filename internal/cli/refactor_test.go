package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mikematt33/qgate/internal/git"
	"github.com/mikematt33/qgate/internal/toolchain/toolchaintest"
	"github.com/mikematt33/qgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// repoRunner answers the git plumbing a refactor run needs for a clean
// repository on main.
func repoRunner(project string) *toolchaintest.FakeRunner {
	g := "git -C " + project + " "
	return toolchaintest.NewFakeRunner().
		On(g+"rev-parse --is-inside-work-tree", toolchaintest.Stdout(0, "true\n")).
		On(g+"rev-parse --abbrev-ref HEAD", toolchaintest.Stdout(0, "main\n")).
		On(g+"rev-parse HEAD", toolchaintest.Stdout(0, "4b825dc642cb6eb9a060e54bf8d69288fbee4904\n"))
}

func gitCalls(fake *toolchaintest.FakeRunner, project string, verb string) []string {
	prefix := "git -C " + project + " " + verb
	var out []string
	for _, c := range fake.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, strings.TrimPrefix(c, "git -C "+project+" "))
		}
	}
	return out
}

func TestRefactorSucceeds(t *testing.T) {
	project := sandbox(t)
	fake := repoRunner(project)
	useRunner(t, fake)

	out, err := execute(t, "refactor", "-C", project, "--command", "npx eslint --fix src",
		"--description", "autofix", "--skip-metrics", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "SAFE REFACTOR SUCCEEDED")

	assert.True(t, fake.Ran("sh -c npx eslint --fix src"))
	assert.True(t, fake.Ran("sh -c npm test"), "pre-flight and validation run the tests")

	branches := gitCalls(fake, project, "branch")
	require.Len(t, branches, 2)
	assert.True(t, strings.HasPrefix(branches[0], "branch safe-refactor/backup-"))
	assert.True(t, strings.HasPrefix(branches[1], "branch -D safe-refactor/backup-"))
	assert.Empty(t, gitCalls(fake, project, "reset"))

	logs, err := filepath.Glob(filepath.Join(project, ".metrics", "logs", "refactor-*.log"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRefactorValidationFailureRollsBack(t *testing.T) {
	project := sandbox(t)
	fake := repoRunner(project).
		On("sh -c npm run --if-present lint", toolchaintest.Stdout(1, "src/a.js: 'x' is not defined\n"))
	useRunner(t, fake)

	out, err := execute(t, "refactor", "-C", project, "-c", "npm run codemod", "--skip-tests", "--skip-metrics", "--force")
	require.Error(t, err)
	assert.Equal(t, models.ExitRolledBack, ExitCode(err))
	assert.Contains(t, out, "SAFE REFACTOR ROLLED BACK")

	resets := gitCalls(fake, project, "reset")
	require.Len(t, resets, 2)
	assert.Equal(t, "reset --hard", resets[0])
	assert.True(t, strings.HasPrefix(resets[1], "reset --hard safe-refactor/backup-"))

	clean := gitCalls(fake, project, "clean")
	require.Len(t, clean, 1)
	assert.Equal(t, "clean -fd -e .metrics -e "+filepath.Join(".metrics", "logs"), clean[0])
}

func TestRefactorDirtyTreeAborts(t *testing.T) {
	project := sandbox(t)
	fake := repoRunner(project).
		On("git -C "+project+" status --porcelain", toolchaintest.Stdout(0, " M src/index.js\n"))
	useRunner(t, fake)

	_, err := execute(t, "refactor", "-C", project, "-c", "npm run codemod", "--skip-metrics", "--force")
	require.Error(t, err)
	assert.Equal(t, models.ExitPreflightFailure, ExitCode(err))
	assert.Empty(t, gitCalls(fake, project, "branch"), "nothing may change before pre-flight passes")
	assert.False(t, fake.Ran("sh -c npm run codemod"))
}

func TestRefactorNeedsConfirmationOrForce(t *testing.T) {
	project := sandbox(t)
	fake := repoRunner(project)
	useRunner(t, fake)

	_, err := execute(t, "refactor", "-C", project, "-c", "npm run codemod", "--skip-metrics")
	require.Error(t, err)
	assert.Equal(t, models.ExitPreflightFailure, ExitCode(err))
	assert.False(t, fake.Ran("sh -c npm run codemod"))
}

func TestRefactorDryRun(t *testing.T) {
	project := sandbox(t)
	fake := repoRunner(project)
	useRunner(t, fake)

	out, err := execute(t, "refactor", "-C", project, "-c", "npm run codemod", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "SAFE REFACTOR DRY RUN")
	assert.Empty(t, gitCalls(fake, project, "branch"))
	assert.False(t, fake.Ran("sh -c"))
}

func TestRefactorRequiresCommandOrScript(t *testing.T) {
	project := sandbox(t)
	useRunner(t, repoRunner(project))

	_, err := execute(t, "refactor", "-C", project, "--force")
	assert.Error(t, err)

	_, err = execute(t, "refactor", "-C", project, "-c", "true", "-s", "run.sh", "--force")
	assert.Error(t, err)
}

func TestRefactorOutsideGitRepo(t *testing.T) {
	project := sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner().
		On("git -C "+project+" rev-parse --is-inside-work-tree", toolchaintest.Stdout(128, "")))

	_, err := execute(t, "refactor", "-C", project, "-c", "true", "--force")
	require.Error(t, err)
	assert.Equal(t, models.ExitPreflightFailure, ExitCode(err))
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestRefactorCleanup(t *testing.T) {
	project := sandbox(t)
	now := time.Now()
	old := git.BackupBranchName("safe-refactor/backup", now.Add(-10*24*time.Hour), "aaaaaaaa-0000")
	recent := git.BackupBranchName("safe-refactor/backup", now.Add(-time.Hour), "bbbbbbbb-0000")
	fake := repoRunner(project).
		On("git -C "+project+" for-each-ref", toolchaintest.Stdout(0, old+"\n"+recent+"\n"))
	useRunner(t, fake)

	out, err := execute(t, "refactor", "cleanup", "-C", project, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Would delete "+old)
	assert.NotContains(t, out, "Would delete "+recent)
	assert.Empty(t, gitCalls(fake, project, "branch -D"))

	out, err = execute(t, "refactor", "cleanup", "-C", project)
	require.NoError(t, err)
	assert.Equal(t, []string{"branch -D " + old}, gitCalls(fake, project, "branch -D"))
	assert.Contains(t, out, "Deleted 1 backup branch(es), kept 1")
}

func TestRefactorCleanupDeleteFailure(t *testing.T) {
	project := sandbox(t)
	old := git.BackupBranchName("safe-refactor/backup", time.Now().Add(-30*24*time.Hour), "cccccccc-0000")
	useRunner(t, repoRunner(project).
		On("git -C "+project+" for-each-ref", toolchaintest.Stdout(0, old+"\n")).
		On("git -C "+project+" branch -D", toolchaintest.Stdout(1, "error: branch is checked out\n")))

	_, err := execute(t, "refactor", "cleanup", "-C", project)
	require.Error(t, err)
	assert.Equal(t, models.ExitFatal, ExitCode(err))
}

func TestFormatAge(t *testing.T) {
	for d, want := range map[time.Duration]string{
		90 * time.Minute:    "1h30m0s",
		72 * time.Hour:      "3d",
		10*24*time.Hour + 1: "10d",
	} {
		assert.Equal(t, want, formatAge(d), fmt.Sprint(d))
	}
}
