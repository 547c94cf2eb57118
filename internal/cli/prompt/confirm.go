// Package prompt provides interactive terminal prompts for CLI commands.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/marmos91/lockstep/internal/logger"
)

// ErrAborted is returned when the user presses Ctrl+C at a prompt.
var ErrAborted = errors.New("aborted")

// IsAborted returns true if the error indicates the user aborted.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, ErrAborted)
}

// Interactive reports whether stdin is a terminal a prompt can read from.
// Tests replace it.
var Interactive = func() bool {
	return logger.IsTerminal(os.Stdin.Fd())
}

// Confirm prompts the user for yes/no confirmation on in/out.
// Returns ErrAborted if the user presses Ctrl+C.
func Confirm(label string, defaultYes bool, in io.ReadCloser, out io.WriteCloser) (bool, error) {
	defaultStr := "y/N"
	if defaultYes {
		defaultStr = "Y/n"
	}

	p := promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", label, defaultStr),
		IsConfirm: true,
		Stdin:     in,
		Stdout:    out,
	}

	result, err := p.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, ErrAborted
		}
		// promptui returns ErrAbort for "n"
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		if result == "" {
			return defaultYes, nil
		}
		return false, err
	}

	result = strings.ToLower(result)
	return result == "y" || result == "yes", nil
}

// ConfirmWithForce returns true immediately if force is set. Otherwise it
// asks on the terminal, and declines without asking when stdin is not one.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	if !Interactive() {
		return false, nil
	}
	return Confirm(label, false, os.Stdin, os.Stdout)
}
