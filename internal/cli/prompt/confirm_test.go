package prompt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withInteractive(t *testing.T, v bool) {
	t.Helper()
	prev := Interactive
	Interactive = func() bool { return v }
	t.Cleanup(func() { Interactive = prev })
}

func TestConfirmWithForce(t *testing.T) {
	t.Run("ForceSkipsPrompt", func(t *testing.T) {
		withInteractive(t, true)
		ok, err := ConfirmWithForce("Overwrite?", true)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("NonInteractiveDeclines", func(t *testing.T) {
		withInteractive(t, false)
		ok, err := ConfirmWithForce("Overwrite?", false)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestIsAborted(t *testing.T) {
	assert.True(t, IsAborted(ErrAborted))
	assert.True(t, IsAborted(fmt.Errorf("prompt: %w", promptui.ErrInterrupt)))
	assert.False(t, IsAborted(errors.New("boom")))
	assert.False(t, IsAborted(nil))
}
