package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidTransition(t *testing.T) {
	valid := []struct{ from, to State }{
		{StateGenerating, StateValidatingImports},
		{StateGenerating, StateFailed},
		{StateValidatingImports, StateReviewing},
		{StateValidatingImports, StateInstallingDependencies},
		{StateValidatingImports, StateRetrying},
		{StateValidatingImports, StateFailed},
		{StateInstallingDependencies, StateReviewing},
		{StateInstallingDependencies, StateRetrying},
		{StateInstallingDependencies, StateFailed},
		{StateReviewing, StatePassed},
		{StateReviewing, StateRetrying},
		{StateReviewing, StateFailed},
		{StateRetrying, StateGenerating},
	}
	for _, tc := range valid {
		assert.True(t, IsValidTransition(tc.from, tc.to), "%s -> %s should be valid", tc.from, tc.to)
	}

	invalid := []struct{ from, to State }{
		{StateGenerating, StateReviewing},
		{StateGenerating, StatePassed},
		{StateValidatingImports, StateGenerating},
		{StateInstallingDependencies, StatePassed},
		{StateReviewing, StateInstallingDependencies},
		{StateRetrying, StateReviewing},
		{StatePassed, StateGenerating},
		{StateFailed, StateGenerating},
	}
	for _, tc := range invalid {
		assert.False(t, IsValidTransition(tc.from, tc.to), "%s -> %s should be invalid", tc.from, tc.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatePassed))
	assert.True(t, IsTerminal(StateFailed))
	assert.False(t, IsTerminal(StateGenerating))
	assert.False(t, IsTerminal(StateRetrying))
}

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	assert.Empty(t, TaskTransitions[StatePassed])
	assert.Empty(t, TaskTransitions[StateFailed])
}
