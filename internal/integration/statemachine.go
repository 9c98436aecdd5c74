package integration

import (
	"sync"

	"reins/internal/api"
	"reins/pkg/logging"
)

// TransitionListener is notified after every accepted transition.
type TransitionListener func(integrationID string, from, to api.IntegrationState)

// allowedTransitions is the lifecycle table. Disconnect is reachable from
// every non-disconnected state; disconnected only re-enters installed.
var allowedTransitions = map[api.IntegrationState][]api.IntegrationState{
	api.StateInstalled:    {api.StateConfigured, api.StateDisconnected},
	api.StateConfigured:   {api.StateConnected, api.StateDisconnected},
	api.StateConnected:    {api.StateActive, api.StateDisconnected},
	api.StateActive:       {api.StateSuspended, api.StateDisconnected},
	api.StateSuspended:    {api.StateActive, api.StateDisconnected},
	api.StateDisconnected: {api.StateInstalled},
}

// StateMachine enforces the six-state lifecycle for one integration and
// broadcasts transitions to listeners. Listener registration is
// append-only within a lifetime; duplicate registration is a no-op.
type StateMachine struct {
	mu            sync.RWMutex
	integrationID string
	state         api.IntegrationState
	listeners     []TransitionListener
	listenerIDs   map[string]struct{}
}

// NewStateMachine creates a machine starting in the installed state.
func NewStateMachine(integrationID string) *StateMachine {
	return &StateMachine{
		integrationID: integrationID,
		state:         api.StateInstalled,
		listenerIDs:   make(map[string]struct{}),
	}
}

// State returns the current lifecycle state.
func (sm *StateMachine) State() api.IntegrationState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// CanTransition is the non-mutating legality query.
func (sm *StateMachine) CanTransition(to api.IntegrationState) bool {
	sm.mu.RLock()
	from := sm.state
	sm.mu.RUnlock()
	return transitionAllowed(from, to)
}

func transitionAllowed(from, to api.IntegrationState) bool {
	for _, target := range allowedTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition moves to the target state if the lifecycle table allows it.
// Rejection returns an error naming the integration, the current state,
// and the requested state; the state does not change. Listener panics are
// isolated: one failing listener neither blocks the rest nor undoes the
// transition.
func (sm *StateMachine) Transition(to api.IntegrationState) error {
	sm.mu.Lock()
	from := sm.state
	if !transitionAllowed(from, to) {
		sm.mu.Unlock()
		return api.NewStateTransitionError(sm.integrationID, from, to)
	}
	sm.state = to
	listeners := append([]TransitionListener(nil), sm.listeners...)
	sm.mu.Unlock()

	logging.Debug("StateMachine", "Integration %s: %s -> %s", sm.integrationID, from, to)

	for _, listener := range listeners {
		notifyListener(listener, sm.integrationID, from, to)
	}
	return nil
}

func notifyListener(listener TransitionListener, id string, from, to api.IntegrationState) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn("StateMachine", "Transition listener panicked for %s (%s -> %s): %v", id, from, to, r)
		}
	}()
	listener(id, from, to)
}

// AddListener registers a transition listener under a caller-chosen
// identity. Registering the same identity twice is a no-op.
func (sm *StateMachine) AddListener(listenerID string, listener TransitionListener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, exists := sm.listenerIDs[listenerID]; exists {
		return
	}
	sm.listenerIDs[listenerID] = struct{}{}
	sm.listeners = append(sm.listeners, listener)
}
