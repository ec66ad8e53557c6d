package mutexchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine(t *testing.T) {
	var seen []State
	m := stateMachine{onChange: func(s State) { seen = append(seen, s) }}
	assert.Equal(t, StateIdle, m.load())

	require.Error(t, m.advance(StateStreaming))
	require.NoError(t, m.advance(StateRendezvous))
	require.NoError(t, m.advance(StateStreaming))
	require.NoError(t, m.advance(StateDone))
	assert.True(t, m.load().Terminal())

	require.ErrorIs(t, m.advance(StateRendezvous), ErrSessionUsed)
	require.ErrorIs(t, m.advance(StateAborted), ErrSessionUsed)
	assert.Equal(t, []State{StateRendezvous, StateStreaming, StateDone}, seen)
}

func TestStateAbortFromRendezvous(t *testing.T) {
	var m stateMachine
	require.NoError(t, m.advance(StateRendezvous))
	require.NoError(t, m.advance(StateAborted))
	assert.True(t, m.load().Terminal())
	assert.Equal(t, "aborted", m.load().String())
	assert.Equal(t, "state(9)", State(9).String())
}
