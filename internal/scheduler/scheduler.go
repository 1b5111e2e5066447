// Package scheduler runs a task periodically with bounded retries and a cooldown.
//
// After a failure the task is retried every RetryInterval up to MaxRetryCount
// times. When retries are exhausted the scheduler waits 2×RetryInterval, resets
// the retry counter and starts over; it never gives up. A success resets the
// counter and schedules the next run after Interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Task is one unit of periodic work. It must return promptly once ctx is done.
type Task func(ctx context.Context) error

// Result reports one execution, scheduled or manual.
type Result struct {
	Status    Status
	Message   string
	Err       error
	StartedAt time.Time
	Duration  time.Duration
	Attempt   int // 1 for the first try of a cycle, 2.. for retries; 0 for manual runs
	Manual    bool
}

// Observer receives every Result. It runs on the executing goroutine and must not call Trigger.
type Observer func(Result)

type Config struct {
	Interval       time.Duration
	RetryInterval  time.Duration
	MaxRetryCount  int
	RunImmediately bool
	Timeout        time.Duration // zero disables the per-execution timeout
	AutoStart      bool
}

func (c Config) validate() error {
	switch {
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	case c.RetryInterval <= 0:
		return fmt.Errorf("%w: retry interval must be positive", ErrInvalidConfig)
	case c.MaxRetryCount < 0:
		return fmt.Errorf("%w: max retry count must not be negative", ErrInvalidConfig)
	case c.Timeout < 0:
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Cooldown is the wait applied once retries are exhausted.
func (c Config) Cooldown() time.Duration {
	return 2 * c.RetryInterval
}

type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, o) }
}

type Scheduler struct {
	name      string
	cfg       Config
	task      Task
	logger    *slog.Logger
	observers []Observer

	// lifecycle serializes Start and Stop so a restart never overlaps a draining loop.
	lifecycle sync.Mutex

	mu     sync.Mutex
	state  State
	runCtx context.Context
	cancel context.CancelFunc
	done   chan struct{}
	resume chan struct{} // non-nil while Paused; closed on Resume

	execMu   sync.Mutex // one execution at a time
	inflight sync.WaitGroup

	statsMu  sync.Mutex
	runs     int
	failures int
	last     *Result
}

func New(name string, task Task, cfg Config, opts ...Option) (*Scheduler, error) {
	if task == nil {
		return nil, fmt.Errorf("%w: nil task", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		name:   name,
		cfg:    cfg,
		task:   task,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("scheduler", name)

	if cfg.AutoStart {
		if err := s.Start(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches the loop. It fails unless the scheduler is Stopped.
func (s *Scheduler) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Stopped {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.state)
	}

	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})
	s.resume = nil
	s.state = Running

	go s.loop(s.runCtx, s.done)

	s.logger.Info("SCHEDULER_STARTED",
		"interval", s.cfg.Interval,
		"retry_interval", s.cfg.RetryInterval,
		"max_retry_count", s.cfg.MaxRetryCount,
		"run_immediately", s.cfg.RunImmediately,
	)
	return nil
}

// Stop cancels any pending wait or execution and returns only after the loop
// and every manual execution have exited. No execution starts after Stop returns.
func (s *Scheduler) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if !s.state.canTransition(Stopped) {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, st)
	}
	cancel, done := s.cancel, s.done
	s.state = Stopped
	s.resume = nil
	s.mu.Unlock()

	cancel()
	<-done
	s.inflight.Wait()

	s.logger.Info("SCHEDULER_STOPPED")
	return nil
}

// Pause suspends new executions without tearing down the loop.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.canTransition(Paused) {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, s.state)
	}
	s.state = Paused
	s.resume = make(chan struct{})
	s.logger.Debug("SCHEDULER_PAUSED")
	return nil
}

func (s *Scheduler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Paused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, s.state)
	}
	s.state = Running
	close(s.resume)
	s.resume = nil
	s.logger.Debug("SCHEDULER_RESUMED")
	return nil
}

// Trigger runs the task once outside the schedule. It is usable while Running or Paused
// and is cancelled by either ctx or Stop.
func (s *Scheduler) Trigger(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return Result{}, ErrNotStarted
	}
	runCtx := s.runCtx
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	execCtx, cancel := context.WithCancel(runCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return s.execute(execCtx, 0, true), nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	retries := 0
	delay := s.cfg.Interval
	if s.cfg.RunImmediately {
		delay = 0
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if !s.awaitRunnable(ctx) {
			return
		}

		res := s.execute(ctx, retries+1, false)
		if ctx.Err() != nil {
			return
		}

		switch {
		case res.Status == StatusSucceeded:
			retries = 0
			delay = s.cfg.Interval
		case retries < s.cfg.MaxRetryCount:
			retries++
			delay = s.cfg.RetryInterval
		default:
			retries = 0
			delay = s.cfg.Cooldown()
			s.logger.Warn("SCHEDULER_RETRIES_EXHAUSTED", "cooldown", delay)
		}
		timer.Reset(delay)
	}
}

// awaitRunnable blocks while the scheduler is Paused. It returns false once ctx is done.
func (s *Scheduler) awaitRunnable(ctx context.Context) bool {
	for {
		s.mu.Lock()
		resume := s.resume
		s.mu.Unlock()

		if resume == nil {
			return ctx.Err() == nil
		}
		select {
		case <-ctx.Done():
			return false
		case <-resume:
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, attempt int, manual bool) Result {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	res := Result{
		StartedAt: time.Now(),
		Attempt:   attempt,
		Manual:    manual,
	}

	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	err := s.safeRun(runCtx)
	res.Duration = time.Since(res.StartedAt)
	res.Err = err

	var pe *PanicError
	switch {
	case err == nil:
		res.Status = StatusSucceeded
		res.Message = "task succeeded"
	case errors.As(err, &pe):
		res.Status = StatusFaulted
		res.Message = err.Error()
	case errors.Is(err, context.DeadlineExceeded) && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.Status = StatusFaulted
		res.Message = fmt.Sprintf("task timed out after %s", s.cfg.Timeout)
	default:
		res.Status = StatusFailed
		res.Message = err.Error()
	}

	s.record(res)
	return res
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("task panic: %v", e.Value) }

func (s *Scheduler) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("SCHEDULER_TASK_PANIC", "err", r, "stack", string(debug.Stack()))
			err = &PanicError{Value: r}
		}
	}()
	return s.task(ctx)
}

func (s *Scheduler) record(res Result) {
	s.statsMu.Lock()
	s.runs++
	if res.Status != StatusSucceeded {
		s.failures++
	}
	s.last = &res
	s.statsMu.Unlock()

	if res.Status == StatusSucceeded {
		s.logger.Debug("SCHEDULER_TASK_SUCCEEDED", "attempt", res.Attempt, "manual", res.Manual, "duration_ms", res.Duration.Milliseconds())
	} else {
		s.logger.Warn("SCHEDULER_TASK_FAILED",
			"status", res.Status.String(),
			"attempt", res.Attempt,
			"manual", res.Manual,
			"err", res.Err,
			"duration_ms", res.Duration.Milliseconds(),
		)
	}

	for _, o := range s.observers {
		o(res)
	}
}

// LastResult returns the most recent execution outcome, if any.
func (s *Scheduler) LastResult() (Result, bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

// Info renders a one-line status report.
func (s *Scheduler) Info() string {
	state := s.State()

	s.statsMu.Lock()
	runs, failures, last := s.runs, s.failures, s.last
	s.statsMu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%s: state=%s interval=%s retry_interval=%s max_retries=%d runs=%d failures=%d",
		s.name, state, s.cfg.Interval, s.cfg.RetryInterval, s.cfg.MaxRetryCount, runs, failures)
	if last != nil {
		fmt.Fprintf(&b, " last=%s at %s (%s)", last.Status, last.StartedAt.Format(time.RFC3339), last.Duration.Round(time.Millisecond))
		if last.Err != nil {
			fmt.Fprintf(&b, " err=%q", last.Err.Error())
		}
	}
	return b.String()
}
