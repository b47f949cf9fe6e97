package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vincentruan/telegram-spring-bot/internal/command"
	"github.com/vincentruan/telegram-spring-bot/internal/events"
	"github.com/vincentruan/telegram-spring-bot/internal/journal"
	"github.com/vincentruan/telegram-spring-bot/internal/pool"
)

// outcome is what an execution task hands to its continuation.
type outcome struct {
	value json.RawMessage
	took  time.Duration
}

// run is the dispatch loop. It exits when stop is closed; commands left in
// the queue are not dispatched.
func (s *Sender) run(ready chan<- struct{}) {
	defer close(s.loopDone)

	poll := time.NewTimer(s.cfg.PollInterval)
	defer poll.Stop()

	close(ready)
	for {
		// Stop wins over pending work.
		select {
		case <-s.stop:
			return
		default:
		}

		poll.Reset(s.cfg.PollInterval)
		select {
		case <-s.stop:
			return
		case cmd := <-s.queue:
			s.dispatch(cmd)
		case <-poll.C:
		}
	}
}

// dispatch hands cmd to the executor pool and chains completion handling.
// It never waits on the command or the journal, and completion handling
// never runs on the loop.
func (s *Sender) dispatch(cmd command.Command) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("dispatch panicked", "command_id", cmd.ID(), "name", cmd.Name(), "panic", fmt.Sprint(r))
		}
	}()

	future, err := s.executor.Submit(s.executeTask(cmd))
	if err != nil {
		s.rejected.Add(1)
		s.logger.Error("executor rejected command", "command_id", cmd.ID(), "name", cmd.Name(), "error", err)
		s.record(cmd, journal.StatusRejected, err, 0)
		s.events.Publish(events.CommandRejected, outcomeData(cmd, err))
		return
	}
	s.dispatched.Add(1)

	s.completions.Add(1)
	future.OnComplete(func(v any, err error) {
		defer s.completions.Done()
		out, _ := v.(outcome)
		s.complete(cmd, out, err)
	})
}

func (s *Sender) executeTask(cmd command.Command) pool.Task {
	return func(ctx context.Context) (any, error) {
		ctx, span := s.tracer.Start(ctx, "command.execute",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("command.id", cmd.ID()),
				attribute.String("command.name", cmd.Name()),
			),
		)
		defer span.End()

		start := time.Now()
		value, err := cmd.Execute(ctx, s.api)
		out := outcome{value: value, took: time.Since(start)}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return out, err
		}
		span.SetStatus(codes.Ok, "")
		return out, nil
	}
}

// complete runs on the executor worker that finished cmd, or on its own
// goroutine when cmd finished before dispatch registered it.
func (s *Sender) complete(cmd command.Command, out outcome, execErr error) {
	res := command.Result{
		CommandID: cmd.ID(),
		Name:      cmd.Name(),
		Value:     out.value,
		Err:       execErr,
		Duration:  out.took,
	}

	if cmd.HasCallback() {
		s.scheduleCallback(cmd, res)
	}

	logger := s.logger.With("command_id", cmd.ID(), "name", cmd.Name(), "duration", out.took)
	if execErr != nil {
		if errors.Is(execErr, pool.ErrPanic) {
			logger.Error("command panicked", "error", execErr)
		} else {
			logger.Warn("command failed", "error", execErr)
		}
		s.record(cmd, journal.StatusFailed, execErr, out.took)
		s.events.Publish(events.CommandFailed, outcomeData(cmd, execErr))
		return
	}

	logger.Debug("command succeeded")
	s.record(cmd, journal.StatusSucceeded, nil, out.took)
	s.events.Publish(events.CommandSucceeded, outcomeData(cmd, nil))
}

func (s *Sender) scheduleCallback(cmd command.Command, res command.Result) {
	future, err := s.callback.Submit(func(context.Context) (any, error) {
		cmd.RunCallback(res)
		return nil, nil
	})
	if err != nil {
		s.callbackFailed(cmd, fmt.Errorf("schedule callback: %w", err))
		return
	}
	future.OnComplete(func(_ any, err error) {
		if err != nil {
			s.callbackFailed(cmd, err)
		}
	})
}

func (s *Sender) callbackFailed(cmd command.Command, err error) {
	s.logger.Error("callback failed", "command_id", cmd.ID(), "name", cmd.Name(), "error", err)
	s.events.Publish(events.CallbackFailed, outcomeData(cmd, err))
}
