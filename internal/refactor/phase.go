package refactor

import (
	"fmt"

	"github.com/mikematt33/qgate/pkg/models"
)

// next is the forward transition table. Complete has no successor.
var next = map[models.Phase]models.Phase{
	models.PhaseInit:       models.PhasePreFlight,
	models.PhasePreFlight:  models.PhaseBackup,
	models.PhaseBackup:     models.PhaseRefactor,
	models.PhaseRefactor:   models.PhaseValidation,
	models.PhaseValidation: models.PhaseMetrics,
	models.PhaseMetrics:    models.PhaseComplete,
}

// Phases returns every phase in execution order.
func Phases() []models.Phase {
	phases := []models.Phase{models.PhaseInit}
	for p := models.PhaseInit; ; {
		n, ok := next[p]
		if !ok {
			return phases
		}
		phases = append(phases, n)
		p = n
	}
}

// mutates reports whether the working tree may have changed by the time
// phase runs, which makes a failure there require a rollback.
func mutates(phase models.Phase) bool {
	switch phase {
	case models.PhaseInit, models.PhasePreFlight:
		return false
	}
	return true
}

// PhaseError is a failure attributed to a phase.
type PhaseError struct {
	Phase    models.Phase
	Category models.ErrorCategory
	Err      error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

func phaseErr(phase models.Phase, cat models.ErrorCategory, format string, args ...interface{}) *PhaseError {
	return &PhaseError{Phase: phase, Category: cat, Err: fmt.Errorf(format, args...)}
}
