package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// Confirm asks a yes/no question. Empty input answers defaultYes.
func Confirm(label string, defaultYes bool) (bool, error) {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	p := promptui.Prompt{Label: fmt.Sprintf("%s [%s]", label, hint), IsConfirm: true}

	result, err := p.Run()
	switch {
	case errors.Is(err, promptui.ErrInterrupt):
		return false, ErrAborted
	case errors.Is(err, promptui.ErrAbort):
		// promptui reports "n" as an abort
		return false, nil
	case err != nil && result == "":
		return defaultYes, nil
	case err != nil:
		return false, err
	}
	answer := strings.ToLower(result)
	return answer == "y" || answer == "yes", nil
}

// ConfirmWithForce skips the question when force is set.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label, false)
}
