// Package prompt wraps promptui for the interactive parts of the CLI.
package prompt

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/manifoldco/promptui"
)

// Prompt errors
var (
	ErrAborted          = errors.New("aborted")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// IsAborted reports whether err means the user pressed Ctrl+C or declined.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

func wrapError(err error) error {
	if err != nil && IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Input prompts for text, returning def on empty input.
func Input(label, def string) (string, error) {
	p := promptui.Prompt{Label: label, Default: def}
	result, err := p.Run()
	return strings.TrimSpace(result), wrapError(err)
}

// InputURL prompts for an absolute http(s) URL.
func InputURL(label, def string) (string, error) {
	p := promptui.Prompt{
		Label:   label,
		Default: def,
		Validate: func(s string) error {
			u, err := url.Parse(strings.TrimSpace(s))
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return errors.New("enter an http or https URL")
			}
			return nil
		},
	}
	result, err := p.Run()
	return strings.TrimSpace(result), wrapError(err)
}

// NewPassword prompts twice for a masked password of at least minLength
// characters.
func NewPassword(label string, minLength int) (string, error) {
	first := promptui.Prompt{
		Label: label,
		Mask:  '*',
		Validate: func(s string) error {
			if len(s) < minLength {
				return fmt.Errorf("password must be at least %d characters", minLength)
			}
			return nil
		},
	}
	password, err := first.Run()
	if err != nil {
		return "", wrapError(err)
	}

	confirm := promptui.Prompt{Label: "Confirm " + strings.ToLower(label), Mask: '*'}
	again, err := confirm.Run()
	if err != nil {
		return "", wrapError(err)
	}
	if password != again {
		return "", ErrPasswordMismatch
	}
	return password, nil
}

// Option is one choice of Select.
type Option struct {
	Label       string
	Value       string
	Description string
}

// Select prompts for one of options and returns its value.
func Select(label string, options []Option) (string, error) {
	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label }}",
		Selected: "* {{ .Label | green }}",
		Details:  `{{ if .Description }}{{ .Description | faint }}{{ end }}`,
	}
	s := promptui.Select{Label: label, Items: options, Templates: templates, Size: 10}
	i, _, err := s.Run()
	if err != nil {
		return "", wrapError(err)
	}
	return options[i].Value, nil
}
