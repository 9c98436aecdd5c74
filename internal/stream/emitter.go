package stream

import (
	"sync"
	"time"
)

// ProgressState is one of the four progress lifecycle states.
type ProgressState string

const (
	ProgressStarted  ProgressState = "started"
	ProgressRunning  ProgressState = "progress"
	ProgressComplete ProgressState = "complete"
	ProgressError    ProgressState = "error"
)

// ProgressEvent is one progress update for a stream key.
type ProgressEvent struct {
	StreamKey string        `json:"streamKey"`
	State     ProgressState `json:"state"`
	Percent   float64       `json:"percent,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ProgressListener receives forwarded events synchronously.
type ProgressListener func(ProgressEvent)

const defaultMinInterval = 60 * time.Second

// Emitter delivers progress events to listeners. EmitThrottled always
// forwards the started, complete, and error states and drops intermediate
// progress events arriving within the minimum interval. The last
// forwarded event per key is cached for latecomers.
type Emitter struct {
	mu          sync.Mutex
	listeners   []ProgressListener
	minInterval time.Duration
	lastForward map[string]time.Time
	lastEvent   map[string]ProgressEvent
	now         func() time.Time
}

// NewEmitter creates an emitter. A non-positive minInterval uses the 60s
// default.
func NewEmitter(minInterval time.Duration) *Emitter {
	if minInterval <= 0 {
		minInterval = defaultMinInterval
	}
	return &Emitter{
		minInterval: minInterval,
		lastForward: make(map[string]time.Time),
		lastEvent:   make(map[string]ProgressEvent),
		now:         time.Now,
	}
}

// AddListener registers a listener for forwarded events.
func (e *Emitter) AddListener(listener ProgressListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, listener)
}

// Emit forwards an event to every listener unconditionally.
func (e *Emitter) Emit(event ProgressEvent) {
	e.forward(event)
}

// EmitThrottled forwards lifecycle states always and progress events at
// most once per minimum interval per stream key. Returns whether the
// event was forwarded.
func (e *Emitter) EmitThrottled(event ProgressEvent) bool {
	if event.State == ProgressRunning {
		e.mu.Lock()
		last, seen := e.lastForward[event.StreamKey]
		if seen && e.now().Sub(last) < e.minInterval {
			e.mu.Unlock()
			return false
		}
		e.mu.Unlock()
	}
	e.forward(event)
	return true
}

// LastEvent returns the most recently forwarded event for a stream key,
// letting subscribers that arrive mid-operation catch up.
func (e *Emitter) LastEvent(streamKey string) (ProgressEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	event, ok := e.lastEvent[streamKey]
	return event, ok
}

// Forget clears the cached state for a finished stream key.
func (e *Emitter) Forget(streamKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.lastForward, streamKey)
	delete(e.lastEvent, streamKey)
}

func (e *Emitter) forward(event ProgressEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}

	e.mu.Lock()
	e.lastForward[event.StreamKey] = e.now()
	e.lastEvent[event.StreamKey] = event
	listeners := append([]ProgressListener(nil), e.listeners...)
	e.mu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}
