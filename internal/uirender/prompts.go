package uirender

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// Confirm asks a yes/no question before a destructive operation
// (volctl's hide command), defaulting to
// defaultYes in non-interactive mode the way the teacher's
// PromptYesNo defaults rather than blocking. It upgrades the
// teacher's hand-rolled bufio prompt to huh's form-based confirm,
// since the teacher's go.mod already depends on huh.
func Confirm(question string, defaultYes bool) (bool, error) {
	if !IsTerminal() {
		return defaultYes, nil
	}

	answer := defaultYes
	field := huh.NewConfirm().
		Title(question).
		Value(&answer)

	if err := huh.NewForm(huh.NewGroup(field)).Run(); err != nil {
		return defaultYes, fmt.Errorf("reading confirmation: %w", err)
	}
	return answer, nil
}

// Input prompts for a single line of free text, e.g. a merge label or
// a branch name, defaulting to defaultValue in non-interactive mode.
func Input(question, defaultValue string) (string, error) {
	if !IsTerminal() {
		return defaultValue, nil
	}

	value := defaultValue
	field := huh.NewInput().
		Title(question).
		Placeholder(defaultValue).
		Value(&value)

	if err := huh.NewForm(huh.NewGroup(field)).Run(); err != nil {
		return defaultValue, fmt.Errorf("reading input: %w", err)
	}
	if value == "" {
		return defaultValue, nil
	}
	return value, nil
}
