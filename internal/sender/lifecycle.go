package sender

import (
	"errors"
	"fmt"
	"time"

	"github.com/vincentruan/telegram-spring-bot/internal/command"
	"github.com/vincentruan/telegram-spring-bot/internal/config"
	"github.com/vincentruan/telegram-spring-bot/internal/events"
	"github.com/vincentruan/telegram-spring-bot/internal/journal"
	"github.com/vincentruan/telegram-spring-bot/internal/pool"
)

// Start allocates the queue and both pools, then launches the dispatch loop.
// It returns once the loop is running. Start is valid only in state NEW.
func (s *Sender) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.State(); st != StateNew {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, st)
	}
	s.setState(StateStarting)

	if err := s.cfg.Validate(); err != nil {
		s.setState(StateTerminated)
		_ = s.closeRecorder()
		return fmt.Errorf("sender config: %w", err)
	}

	executor, err := pool.New(poolOptions("executor", s.cfg.Executor, s))
	if err != nil {
		s.setState(StateTerminated)
		_ = s.closeRecorder()
		return fmt.Errorf("executor pool: %w", err)
	}
	callback, err := pool.New(poolOptions("callback", s.cfg.Callback, s))
	if err != nil {
		_ = executor.Shutdown(0)
		s.setState(StateTerminated)
		_ = s.closeRecorder()
		return fmt.Errorf("callback pool: %w", err)
	}

	s.executor = executor
	s.callback = callback
	s.queue = make(chan command.Command, s.cfg.QueueSize)
	s.stop = make(chan struct{})
	s.loopDone = make(chan struct{})

	ready := make(chan struct{})
	go s.run(ready)
	<-ready

	s.setState(StateRunning)
	s.logger.Info("sender started",
		"queue_size", s.cfg.QueueSize,
		"executor", poolSummary(s.cfg.Executor),
		"callback", poolSummary(s.cfg.Callback),
	)
	s.events.Publish(events.SenderStarted, map[string]any{"queue_size": s.cfg.QueueSize})
	return nil
}

// Stop halts dispatching and shuts down the executor pool, then the callback
// pool, each bounded by the shutdown timeout. Commands still queued are
// discarded. Outcomes still waiting for the journal are flushed last.
// Stopping a NEW sender terminates it directly; stopping an already stopped
// sender is a no-op.
//
// The returned error wraps pool.ErrShutdownTimeout when a pool had to be
// forcibly terminated.
func (s *Sender) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch st := s.State(); st {
	case StateNew:
		s.setState(StateTerminated)
		return s.closeRecorder()
	case StateStopping, StateTerminated:
		return nil
	}

	s.setState(StateStopping)
	s.logger.Info("stopping sender")

	close(s.stop)
	<-s.loopDone

	// Offers that passed the state check before stop closed finish under the
	// read lock, so nothing lands in the queue once it is drained here.
	s.sendMu.Lock()
	n := s.discardQueued()
	s.sendMu.Unlock()
	if n > 0 {
		s.logger.Warn("discarded queued commands on stop", "count", n)
	}

	var errs []error
	if err := s.executor.Shutdown(s.cfg.ShutdownTimeout); err != nil {
		s.logger.Error("executor pool forced to terminate", "error", err)
		errs = append(errs, fmt.Errorf("executor: %w", err))
	} else if !s.waitCompletions(s.cfg.ShutdownTimeout) {
		s.logger.Warn("completion handlers still running after executor drained")
	}
	if err := s.callback.Shutdown(s.cfg.ShutdownTimeout); err != nil {
		s.logger.Error("callback pool forced to terminate", "error", err)
		errs = append(errs, fmt.Errorf("callback: %w", err))
	}
	if err := s.closeRecorder(); err != nil {
		s.logger.Error("journal backlog not flushed", "error", err)
		errs = append(errs, err)
	}

	s.setState(StateTerminated)
	s.logger.Info("sender stopped",
		"accepted", s.accepted.Load(),
		"dispatched", s.dispatched.Load(),
		"dropped", s.dropped.Load(),
	)
	s.events.Publish(events.SenderStopped, map[string]any{"forced": len(errs) > 0})
	return errors.Join(errs...)
}

// waitCompletions waits up to timeout for completion handlers registered by
// dispatch. Handlers of abandoned tasks never run, so the wait is bounded.
func (s *Sender) waitCompletions(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.completions.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (s *Sender) closeRecorder() error {
	if s.rec == nil {
		return nil
	}
	return s.rec.close(s.cfg.ShutdownTimeout)
}

// discardQueued empties the queue without executing anything.
func (s *Sender) discardQueued() int {
	n := 0
	for {
		select {
		case cmd := <-s.queue:
			n++
			s.dropped.Add(1)
			s.record(cmd, journal.StatusDropped, errDiscarded, 0)
		default:
			return n
		}
	}
}

var errDiscarded = errors.New("discarded: sender stopped before dispatch")

func poolOptions(name string, pc config.PoolConfig, s *Sender) pool.Options {
	return pool.Options{
		Name:          name,
		CoreSize:      pc.CoreSize,
		MaxSize:       pc.MaxSize,
		KeepAlive:     pc.KeepAlive,
		QueueCapacity: pc.QueueCapacity,
		Logger:        s.logger.With("pool", name),
	}
}

func poolSummary(pc config.PoolConfig) string {
	return fmt.Sprintf("core=%d max=%d keep_alive=%s queue=%d", pc.CoreSize, pc.MaxSize, pc.KeepAlive, pc.QueueCapacity)
}
