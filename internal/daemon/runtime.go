package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"

	"reins/internal/api"
	"reins/pkg/logging"
)

const defaultShutdownTimeout = 10 * time.Second

// ManagedService is one supervised unit: the integration service, a
// transport, the credential store. Stop receives the triggering signal
// when shutdown was signal-initiated, nil otherwise.
type ManagedService interface {
	ID() string
	Start(ctx context.Context) error
	Stop(ctx context.Context, sig os.Signal) error
}

// Options configures the runtime.
type Options struct {
	// ShutdownTimeout bounds the whole stop cascade. Default 10s.
	ShutdownTimeout time.Duration

	// Logger receives lifecycle events. Nil uses the structured logger.
	Logger EventLogger

	// Notify reports readiness to the service manager. Nil uses
	// systemd's sd_notify; tests inject a recorder.
	Notify func(state string)
}

// Runtime supervises an ordered list of managed services.
type Runtime struct {
	opts Options

	mu       sync.Mutex
	services []ManagedService
	running  []ManagedService
	started  bool
}

// NewRuntime creates a runtime with no services registered.
func NewRuntime(opts Options) *Runtime {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logEventLogger{}
	}
	if opts.Notify == nil {
		opts.Notify = func(state string) {
			// Not running under systemd is fine; sd_notify is a no-op then.
			_, _ = sd.SdNotify(false, state)
		}
	}
	return &Runtime{opts: opts}
}

// RegisterService appends a service to the start order. Registration is
// refused once the runtime is started and for duplicate ids.
func (r *Runtime) RegisterService(svc ManagedService) error {
	if svc == nil {
		return api.NewValidationError("cannot register nil service")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return api.NewValidationError("cannot register service %s on a started runtime", svc.ID())
	}
	for _, existing := range r.services {
		if existing.ID() == svc.ID() {
			return api.NewValidationError("service %s already registered", svc.ID())
		}
	}
	r.services = append(r.services, svc)
	r.opts.Logger.Event(Event{Type: EventServiceRegistered, Service: svc.ID()})
	return nil
}

// Start brings every service up in registration order. Idempotent: a
// second start returns success without restarting anything. A failed
// service start stops the already-started services in reverse order and
// returns the failure.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	services := append([]ManagedService(nil), r.services...)
	r.mu.Unlock()

	r.opts.Logger.Event(Event{Type: EventStartRequested})

	var running []ManagedService
	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			r.opts.Logger.Event(Event{
				Type:    EventError,
				Service: svc.ID(),
				Err:     err,
				Message: "start failed, rolling back",
			})
			r.stopServices(ctx, running, nil)
			return fmt.Errorf("failed to start service %s: %w", svc.ID(), err)
		}
		running = append(running, svc)
		r.opts.Logger.Event(Event{
			Type:    EventStateTransition,
			Service: svc.ID(),
			Message: "started",
		})
	}

	r.mu.Lock()
	r.running = running
	r.started = true
	r.mu.Unlock()
	return nil
}

// Stop shuts every running service down in reverse registration order,
// bounded by the shutdown timeout. Idempotent.
func (r *Runtime) Stop(ctx context.Context, sig os.Signal) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	running := r.running
	r.running = nil
	r.mu.Unlock()

	r.opts.Logger.Event(Event{Type: EventStopRequested})
	return r.stopServices(ctx, running, sig)
}

// Started reports whether the runtime is running.
func (r *Runtime) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *Runtime) stopServices(ctx context.Context, running []ManagedService, sig os.Signal) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.ShutdownTimeout)
	defer cancel()

	var firstErr error
	for i := len(running) - 1; i >= 0; i-- {
		svc := running[i]
		if err := svc.Stop(stopCtx, sig); err != nil {
			r.opts.Logger.Event(Event{
				Type:    EventError,
				Service: svc.ID(),
				Err:     err,
				Message: "stop failed",
			})
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to stop service %s: %w", svc.ID(), err)
			}
			continue
		}
		r.opts.Logger.Event(Event{
			Type:    EventStateTransition,
			Service: svc.ID(),
			Message: "stopped",
		})
	}
	return firstErr
}

// Run starts the runtime and blocks until SIGTERM, SIGINT, or context
// cancellation, then performs an orderly stop. Returns nil on clean
// shutdown; callers map errors to exit code 1.
func (r *Runtime) Run(ctx context.Context) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signals)

	if err := r.Start(ctx); err != nil {
		return err
	}
	r.opts.Notify("READY=1")

	var received os.Signal
	select {
	case received = <-signals:
		r.opts.Logger.Event(Event{Type: EventSignalReceived, Signal: received})
	case <-ctx.Done():
		logging.Info("Runtime", "Context cancelled, shutting down")
	}

	r.opts.Notify("STOPPING=1")
	return r.Stop(context.WithoutCancel(ctx), received)
}
