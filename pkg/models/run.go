package models

import (
	"time"
)

// Phase is a step of a safe refactor run. Phases only ever move forward.
type Phase string

const (
	PhaseInit       Phase = "Init"
	PhasePreFlight  Phase = "PreFlight"
	PhaseBackup     Phase = "Backup"
	PhaseRefactor   Phase = "Refactor"
	PhaseValidation Phase = "Validation"
	PhaseMetrics    Phase = "Metrics"
	PhaseComplete   Phase = "Complete"
)

// Outcome is the terminal state of a refactor run.
type Outcome string

const (
	OutcomeSucceeded      Outcome = "succeeded"
	OutcomeAborted        Outcome = "aborted"
	OutcomeRolledBack     Outcome = "rolled_back"
	OutcomeRollbackFailed Outcome = "rollback_failed"
)

// ErrorCategory classifies failures for logging and exit codes.
type ErrorCategory string

const (
	CategoryNone                 ErrorCategory = ""
	CategoryToolUnavailable      ErrorCategory = "tool_unavailable"
	CategoryToolExecutionFailure ErrorCategory = "tool_execution_failure"
	CategoryPrecondition         ErrorCategory = "precondition_failure"
	CategoryGate                 ErrorCategory = "gate_failure"
	CategoryTimeout              ErrorCategory = "timeout"
	CategoryRollback             ErrorCategory = "rollback_failure"
)

// Exit codes shared by every command so CI pipelines can branch on failure class.
const (
	ExitSuccess          = 0
	ExitPreflightFailure = 1
	ExitIOError          = 2
	ExitValidationFailed = 3
	ExitMetricsGate      = 4
	ExitRolledBack       = 5
	ExitFatal            = 6
)

// RefactorRun records one safe refactor attempt.
type RefactorRun struct {
	ID              string            `json:"id"`
	Description     string            `json:"description"`
	StartedAt       time.Time         `json:"startedAt"`
	FinishedAt      time.Time         `json:"finishedAt"`
	Duration        string            `json:"duration"`
	LogPath         string            `json:"logPath,omitempty"`
	Phase           Phase             `json:"phase"`
	Outcome         Outcome           `json:"outcome"`
	Success         bool              `json:"success"`
	Error           string            `json:"error,omitempty"`
	Category        ErrorCategory     `json:"category,omitempty"`
	RollbackDone    bool              `json:"rollbackPerformed"`
	RollbackFailed  bool              `json:"rollbackFailed,omitempty"`
	BackupBranch    string            `json:"backupBranch,omitempty"`
	BackupKept      bool              `json:"backupKept,omitempty"`
	DryRun          bool              `json:"dryRun,omitempty"`
	ExitCode        int               `json:"exitCode"`
	Comparison      *ComparisonResult `json:"comparison,omitempty"`
	CompletedPhases []Phase           `json:"completedPhases"`
}
