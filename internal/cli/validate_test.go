package cli

import (
	"testing"

	"github.com/mikematt33/qgate/internal/toolchain/toolchaintest"
	"github.com/mikematt33/qgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePasses(t *testing.T) {
	project := sandbox(t)
	fake := toolchaintest.NewFakeRunner()
	useRunner(t, fake)

	out, err := execute(t, "validate", "-C", project)
	require.NoError(t, err)
	assert.Regexp(t, `lint\s+PASS`, out)
	assert.Regexp(t, `typecheck\s+PASS`, out)
	assert.Regexp(t, `test\s+PASS`, out)
	assert.False(t, fake.Ran("git"), "validate never touches git")
}

func TestValidateRunsEveryGateAndFails(t *testing.T) {
	project := sandbox(t)
	fake := toolchaintest.NewFakeRunner().
		On("sh -c npm run --if-present lint", toolchaintest.Stdout(1, "2 problems (2 errors, 0 warnings)\n"))
	useRunner(t, fake)

	out, err := execute(t, "validate", "-C", project)
	require.Error(t, err)
	assert.Equal(t, models.ExitValidationFailed, ExitCode(err))
	assert.Regexp(t, `lint\s+FAIL`, out)
	assert.Contains(t, out, "--- lint output ---")
	assert.Contains(t, out, "2 problems")
	assert.True(t, fake.Ran("sh -c npm test"), "later gates still run")
}

func TestValidateSkipTests(t *testing.T) {
	project := sandbox(t)
	fake := toolchaintest.NewFakeRunner()
	useRunner(t, fake)

	out, err := execute(t, "validate", "-C", project, "--skip-tests")
	require.NoError(t, err)
	assert.Regexp(t, `test\s+SKIP`, out)
	assert.False(t, fake.Ran("sh -c npm test"))
}

func TestValidateNeedsProject(t *testing.T) {
	sandbox(t)
	useRunner(t, toolchaintest.NewFakeRunner())
	chdir(t, t.TempDir())

	_, err := execute(t, "validate")
	require.Error(t, err)
	assert.Equal(t, models.ExitPreflightFailure, ExitCode(err))
}
