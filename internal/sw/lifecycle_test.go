package sw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleHappyPath(t *testing.T) {
	l := newLifecycle()
	for _, next := range []State{StateInstalling, StateInstalled, StateActivating, StateActive, StateRedundant} {
		require.NoError(t, l.transition(next), "transition to %s", next)
	}
	assert.Equal(t, StateRedundant, l.current())
	assert.False(t, l.since(StateActive).IsZero())
}

func TestLifecycleRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		from State
		to   State
	}{
		{StateUnregistered, StateActive},
		{StateInstalling, StateActivating},
		{StateInstalled, StateActive},
		{StateActive, StateInstalling},
		{StateRedundant, StateRedundant},
		{StateRedundant, StateInstalling},
	}
	for _, tc := range cases {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	l := newLifecycle()
	err := l.transition(StateActive)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateUnregistered, l.current())
}

func TestAnyLiveStateCanBecomeRedundant(t *testing.T) {
	for _, from := range []State{StateUnregistered, StateInstalling, StateInstalled, StateActivating, StateActive} {
		assert.True(t, CanTransition(from, StateRedundant), from)
	}
}
