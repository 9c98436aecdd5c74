package daemon

import (
	"context"
	"os"
)

// ServiceFunc adapts plain start/stop functions into a ManagedService.
type ServiceFunc struct {
	Name      string
	StartFunc func(ctx context.Context) error
	StopFunc  func(ctx context.Context, sig os.Signal) error
}

func (s ServiceFunc) ID() string { return s.Name }

func (s ServiceFunc) Start(ctx context.Context) error {
	if s.StartFunc == nil {
		return nil
	}
	return s.StartFunc(ctx)
}

func (s ServiceFunc) Stop(ctx context.Context, sig os.Signal) error {
	if s.StopFunc == nil {
		return nil
	}
	return s.StopFunc(ctx, sig)
}
