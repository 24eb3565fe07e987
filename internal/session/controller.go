package session

import (
	"context"
	"errors"
	"log/slog"
)

// ErrControllerStopped is returned when the controller is no longer running
var ErrControllerStopped = errors.New("session controller stopped")

type command func(ctx context.Context)

// Controller owns the current session. Every call is handed to a single
// goroutine, so the session and the terminal are only ever driven by one
// caller at a time.
type Controller struct {
	deps     Deps
	commands chan command
	stopped  chan struct{}

	// owned by the Run goroutine
	current *Session
}

// NewController creates a Controller. Run must be started before it is used.
func NewController(deps Deps) *Controller {
	return &Controller{
		deps:     deps,
		commands: make(chan command),
		stopped:  make(chan struct{}),
	}
}

// Run executes commands until ctx is cancelled. Terminal operations run with
// ctx, not the caller's context, so a disconnecting client does not cut a
// macro short.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)
	slog.Info("Session controller started")
	for {
		select {
		case <-ctx.Done():
			if c.current != nil && !c.current.State().Terminal() {
				slog.Warn("Shutting down with an active session", "rma", c.current.rma, "state", c.current.State())
			}
			return ctx.Err()
		case cmd := <-c.commands:
			cmd(ctx)
		}
	}
}

// do hands fn to the Run goroutine and waits for it to finish
func (c *Controller) do(ctx context.Context, fn func(runCtx context.Context)) error {
	done := make(chan struct{})
	cmd := func(runCtx context.Context) {
		defer close(done)
		fn(runCtx)
	}

	select {
	case c.commands <- cmd:
	case <-c.stopped:
		return ErrControllerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// Start opens a new session unless one is still in progress
func (c *Controller) Start(ctx context.Context, rma string, damaged bool) (Status, error) {
	var (
		status Status
		err    error
	)
	if doErr := c.do(ctx, func(runCtx context.Context) {
		if c.current != nil && !c.current.State().Terminal() {
			err = ErrSessionActive
			return
		}
		var s *Session
		s, err = Start(runCtx, rma, damaged, c.deps)
		if s != nil {
			c.current = s
			status = s.Status()
		}
	}); doErr != nil {
		return Status{}, doErr
	}
	return status, err
}

// Advance processes the next serial number of the current session
func (c *Controller) Advance(ctx context.Context) (*ItemResult, Status, error) {
	var (
		result *ItemResult
		status Status
		err    error
	)
	if doErr := c.do(ctx, func(runCtx context.Context) {
		if c.current == nil {
			err = ErrNoSession
			return
		}
		result, err = c.current.AdvanceOne(runCtx)
		status = c.current.Status()
	}); doErr != nil {
		return nil, Status{}, doErr
	}
	return result, status, err
}

// SetDamaged toggles the damaged flag of the current session. Once the
// session has ended the flag belongs to the next Start, so ErrSessionEnded is
// returned and nothing changes.
func (c *Controller) SetDamaged(ctx context.Context, damaged bool) (Status, error) {
	var ended bool
	status, err := c.withSession(ctx, func(s *Session) {
		if s.State().Terminal() {
			ended = true
			return
		}
		s.SetDamaged(damaged)
	})
	if err == nil && ended {
		err = ErrSessionEnded
	}
	return status, err
}

// Abort stops the current session
func (c *Controller) Abort(ctx context.Context) (Status, error) {
	return c.withSession(ctx, func(s *Session) {
		s.Abort()
	})
}

// Status returns the state of the current or most recent session
func (c *Controller) Status(ctx context.Context) (Status, error) {
	return c.withSession(ctx, func(*Session) {})
}

func (c *Controller) withSession(ctx context.Context, fn func(s *Session)) (Status, error) {
	var (
		status Status
		err    error
	)
	if doErr := c.do(ctx, func(context.Context) {
		if c.current == nil {
			err = ErrNoSession
			return
		}
		fn(c.current)
		status = c.current.Status()
	}); doErr != nil {
		return Status{}, doErr
	}
	return status, err
}
