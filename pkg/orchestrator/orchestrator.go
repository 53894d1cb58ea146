// Package orchestrator runs a denoising session: it opens the capture
// and render streams, connects them to a FrameProcessor through two ring
// buffers and tears everything down on Stop or on a fatal error.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
	"github.com/xaionaro-go/poise/pkg/frameprocessor"
)

type Orchestrator struct {
	Config Config

	processor *frameprocessor.FrameProcessor
	capture   types.CaptureBackend
	render    types.RenderBackend
	sleep     func(ctx context.Context, d time.Duration) error

	// locker serializes the state transitions (Start and Stop).
	locker sync.Mutex
	state  atomic.Int32

	fieldsLocker sync.Mutex
	err          error
	done         chan struct{}
	session      *session

	statsCh chan Stats

	// lingering is the worker of a previous session that did not stop
	// within StopTimeout; guarded by locker.
	lingering <-chan struct{}
}

// ErrWorkerRunning is reported when the processing goroutine of a
// stopped session still holds the FrameProcessor.
var ErrWorkerRunning = errors.New("the processing goroutine of the previous session is still running")

type Option func(o *Orchestrator)

// OptionSleep replaces the function waiting between render open attempts.
func OptionSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.sleep = fn
	}
}

// New does not touch any device; configuration errors are reported here.
// The capture and render backends may be the same combined backend.
func New(
	processor *frameprocessor.FrameProcessor,
	capture types.CaptureBackend,
	render types.RenderBackend,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if processor == nil {
		return nil, errkind.Configf("no frame processor")
	}
	if capture == nil || render == nil {
		return nil, errkind.Configf("both the capture and the render backends are required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		Config:    cfg,
		processor: processor,
		capture:   capture,
		render:    render,
		sleep:     sleep,
		done:      make(chan struct{}),
		statsCh:   make(chan Stats, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(ctx context.Context, state State) {
	old := State(o.state.Swap(int32(state)))
	logger.Debugf(ctx, "state: %s -> %s", old, state)
}

// Err returns the error the last session ended with.
func (o *Orchestrator) Err() error {
	o.fieldsLocker.Lock()
	defer o.fieldsLocker.Unlock()
	return o.err
}

// Done is closed when the current session ends, either by Stop or by
// a failure.
func (o *Orchestrator) Done() <-chan struct{} {
	o.fieldsLocker.Lock()
	defer o.fieldsLocker.Unlock()
	return o.done
}

// Stats returns the channel of the periodic session snapshots. An
// unread snapshot is replaced by the next one.
func (o *Orchestrator) Stats() <-chan Stats {
	return o.statsCh
}

// Start opens the streams and begins processing. Cancelling ctx aborts
// the opening only; the session itself lives until Stop.
func (o *Orchestrator) Start(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()

	o.locker.Lock()
	defer o.locker.Unlock()

	switch state := o.State(); state {
	case StateIdle, StateFailed:
	default:
		return errkind.Configf("unable to start a session in state %s", state)
	}
	if err := o.waitLingering(ctx); err != nil {
		return err
	}

	o.fieldsLocker.Lock()
	o.err = nil
	select {
	case <-o.done:
		o.done = make(chan struct{})
	default:
	}
	o.fieldsLocker.Unlock()

	o.setState(ctx, StateOpening)
	s, err := o.open(ctx)
	if err != nil {
		o.finish(ctx, StateFailed, err)
		return err
	}

	o.fieldsLocker.Lock()
	o.session = s
	o.fieldsLocker.Unlock()
	o.setState(ctx, StateRunning)
	o.Config.Metrics.SessionsActive.Add(ctx, 1)
	return nil
}

// waitLingering waits up to StopTimeout for the worker of the previous
// session, which must be done with the FrameProcessor before Reset.
func (o *Orchestrator) waitLingering(ctx context.Context) error {
	if o.lingering == nil {
		return nil
	}
	t := time.NewTimer(o.Config.StopTimeout)
	defer t.Stop()
	select {
	case <-o.lingering:
		o.lingering = nil
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return errkind.Transient(ErrWorkerRunning)
	}
}

// Stop is idempotent and may be called from any goroutine.
func (o *Orchestrator) Stop(ctx context.Context) error {
	return o.stop(ctx, nil, nil)
}

// Run starts a session and waits until ctx is cancelled or the session
// ends by itself, then stops it.
func (o *Orchestrator) Run(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Run")
	defer func() { logger.Debugf(ctx, "/Run: %v", _err) }()

	if err := o.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-o.Done():
	}
	stopErr := o.Stop(context.WithoutCancel(ctx))
	if err := o.Err(); err != nil {
		return err
	}
	return stopErr
}

func (o *Orchestrator) finish(ctx context.Context, state State, err error) {
	o.fieldsLocker.Lock()
	if err != nil && o.err == nil {
		o.err = err
	}
	o.session = nil
	close(o.done)
	o.fieldsLocker.Unlock()
	o.setState(ctx, state)
}

// fail ends the session from a goroutine of its own: the callbacks and
// the worker cannot wait for their own streams to stop.
func (o *Orchestrator) fail(ctx context.Context, s *session, err error) {
	logger.Errorf(ctx, "the session failed: %v", err)
	observability.Go(ctx, func(ctx context.Context) {
		if stopErr := o.stop(ctx, s, err); stopErr != nil {
			logger.Errorf(ctx, "unable to cleanly stop the failed session: %v", stopErr)
		}
	})
}

func (o *Orchestrator) stop(
	ctx context.Context,
	failed *session,
	cause error,
) (_err error) {
	logger.Debugf(ctx, "stop(%v)", cause)
	defer func() { logger.Debugf(ctx, "/stop(%v): %v", cause, _err) }()

	o.locker.Lock()
	defer o.locker.Unlock()

	if o.State() != StateRunning {
		return nil
	}
	o.fieldsLocker.Lock()
	s := o.session
	o.fieldsLocker.Unlock()
	if failed != nil && failed != s {
		return nil
	}
	o.setState(ctx, StateStopping)

	s.stopping.Store(true)
	s.cancel()
	workerStopped := true
	if s.workerDone != nil {
		select {
		case <-s.workerDone:
		case <-time.After(o.Config.StopTimeout):
			workerStopped = false
			o.lingering = s.workerDone
			logger.Warnf(ctx, "the processing goroutine did not stop within %v", o.Config.StopTimeout)
		}
	}

	var mErr *multierror.Error
	for _, item := range []struct {
		name   string
		stream types.Stream
	}{
		{"capture", s.captureStream},
		{"render", s.renderStream},
	} {
		if err := item.stream.Stop(ctx); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to stop the %s stream: %w", item.name, err))
		}
		if err := item.stream.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to close the %s stream: %w", item.name, err))
		}
	}

	if workerStopped {
		s.publishStats(ctx, time.Now())
	}
	o.Config.Metrics.SessionsActive.Add(ctx, -1)

	if !workerStopped && cause == nil {
		cause = errkind.Transient(ErrWorkerRunning)
	}
	state := StateIdle
	if cause != nil {
		state = StateFailed
	}
	o.finish(ctx, state, cause)
	return mErr.ErrorOrNil()
}
