package refactor

import (
	"errors"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// ErrNotInteractive is returned when a confirmation is needed but nobody can answer it.
var ErrNotInteractive = errors.New("confirmation requires an interactive terminal; pass --force to skip it")

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(title, description string) (bool, error)
}

// TerminalConfirmer prompts on the controlling terminal.
type TerminalConfirmer struct {
	In *os.File
}

// NewTerminalConfirmer returns a confirmer bound to stdin, or nil when stdin is not a terminal.
func NewTerminalConfirmer() Confirmer {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	return &TerminalConfirmer{In: os.Stdin}
}

func (c *TerminalConfirmer) Confirm(title, description string) (bool, error) {
	if c.In == nil || !term.IsTerminal(int(c.In.Fd())) {
		return false, ErrNotInteractive
	}

	var confirm bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Value(&confirm).
		Affirmative("Yes").
		Negative("No").
		Run()
	if err != nil {
		return false, err
	}
	return confirm, nil
}
