package integration

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reins/internal/api"
)

func TestStateMachine_StartsInstalled(t *testing.T) {
	sm := NewStateMachine("github")
	assert.Equal(t, api.StateInstalled, sm.State())
}

func TestStateMachine_TransitionTable(t *testing.T) {
	states := []api.IntegrationState{
		api.StateInstalled,
		api.StateConfigured,
		api.StateConnected,
		api.StateActive,
		api.StateSuspended,
		api.StateDisconnected,
	}

	legal := map[api.IntegrationState]map[api.IntegrationState]bool{
		api.StateInstalled:    {api.StateConfigured: true, api.StateDisconnected: true},
		api.StateConfigured:   {api.StateConnected: true, api.StateDisconnected: true},
		api.StateConnected:    {api.StateActive: true, api.StateDisconnected: true},
		api.StateActive:       {api.StateSuspended: true, api.StateDisconnected: true},
		api.StateSuspended:    {api.StateActive: true, api.StateDisconnected: true},
		api.StateDisconnected: {api.StateInstalled: true},
	}

	for _, from := range states {
		for _, to := range states {
			sm := NewStateMachine("github")
			sm.mu.Lock()
			sm.state = from
			sm.mu.Unlock()

			err := sm.Transition(to)
			if legal[from][to] {
				assert.NoError(t, err, "%s -> %s should be legal", from, to)
				assert.Equal(t, to, sm.State())
			} else {
				assert.Error(t, err, "%s -> %s should be rejected", from, to)
				assert.Equal(t, from, sm.State(), "rejected transition must not change state")
			}
		}
	}
}

func TestStateMachine_RejectionNamesStates(t *testing.T) {
	sm := NewStateMachine("github")
	err := sm.Transition(api.StateActive)
	require.Error(t, err)

	var ie *api.IntegrationError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, api.SubCodeStateTransition, ie.SubCode)
	assert.Contains(t, err.Error(), "github")
	assert.Contains(t, err.Error(), string(api.StateInstalled))
	assert.Contains(t, err.Error(), string(api.StateActive))
}

func TestStateMachine_ListenersNotifiedInOrder(t *testing.T) {
	sm := NewStateMachine("github")

	var order []string
	sm.AddListener("first", func(id string, from, to api.IntegrationState) {
		order = append(order, "first:"+string(from)+">"+string(to))
	})
	sm.AddListener("second", func(id string, from, to api.IntegrationState) {
		order = append(order, "second:"+string(from)+">"+string(to))
	})

	require.NoError(t, sm.Transition(api.StateConfigured))
	assert.Equal(t, []string{
		"first:installed>configured",
		"second:installed>configured",
	}, order)
}

func TestStateMachine_ListenerPanicIsolated(t *testing.T) {
	sm := NewStateMachine("github")

	var reached bool
	sm.AddListener("boom", func(id string, from, to api.IntegrationState) {
		panic("listener failure")
	})
	sm.AddListener("after", func(id string, from, to api.IntegrationState) {
		reached = true
	})

	require.NoError(t, sm.Transition(api.StateConfigured))
	assert.True(t, reached, "listener after the panicking one must still run")
	assert.Equal(t, api.StateConfigured, sm.State(), "panic must not undo the transition")
}

func TestStateMachine_DuplicateListenerNoOp(t *testing.T) {
	sm := NewStateMachine("github")

	var calls int
	listener := func(id string, from, to api.IntegrationState) { calls++ }
	sm.AddListener("dup", listener)
	sm.AddListener("dup", listener)

	require.NoError(t, sm.Transition(api.StateConfigured))
	assert.Equal(t, 1, calls)
}

func TestStateMachine_RejectedTransitionSkipsListeners(t *testing.T) {
	sm := NewStateMachine("github")

	var calls int
	sm.AddListener("counter", func(id string, from, to api.IntegrationState) { calls++ })

	require.Error(t, sm.Transition(api.StateActive))
	assert.Zero(t, calls)
}

func TestStateMachine_CanTransition(t *testing.T) {
	sm := NewStateMachine("github")
	assert.True(t, sm.CanTransition(api.StateConfigured))
	assert.False(t, sm.CanTransition(api.StateActive))
	assert.Equal(t, api.StateInstalled, sm.State(), "query must not mutate")
}
