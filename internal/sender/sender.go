package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vincentruan/telegram-spring-bot/internal/command"
	"github.com/vincentruan/telegram-spring-bot/internal/config"
	"github.com/vincentruan/telegram-spring-bot/internal/events"
	"github.com/vincentruan/telegram-spring-bot/internal/journal"
	"github.com/vincentruan/telegram-spring-bot/internal/log"
	"github.com/vincentruan/telegram-spring-bot/internal/pool"
)

const tracerName = "github.com/vincentruan/telegram-spring-bot/internal/sender"

// State is the lifecycle state of a Sender. Transitions only move forward.
type State int32

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrInvalidState   = errors.New("invalid sender state")
	ErrNotRunning     = errors.New("sender is not running")
	ErrQueueFull      = errors.New("command queue full")
	ErrInvalidCommand = errors.New("invalid command")
)

// Journal records command outcomes.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Option configures a Sender.
type Option func(*Sender)

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

// WithEvents publishes lifecycle and outcome events to h.
func WithEvents(h *events.Hub) Option {
	return func(s *Sender) { s.events = h }
}

// WithJournal records outcomes to j.
func WithJournal(j Journal) Option {
	return func(s *Sender) { s.journal = j }
}

// WithTracerProvider sets the provider for command execution spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Sender) { s.tracer = tp.Tracer(tracerName) }
}

// Sender queues commands and dispatches them to the executor pool.
type Sender struct {
	api     command.API
	cfg     config.SenderConfig
	logger  *slog.Logger
	events  *events.Hub
	journal Journal
	tracer  trace.Tracer
	rec     *recorder

	mu    sync.Mutex // serializes Start and Stop
	state atomic.Int32

	// sendMu is held shared by Offer while it may touch the queue. Stop takes
	// it exclusively once stop is closed, so no send lands after the queue
	// is drained.
	sendMu sync.RWMutex

	// completions counts completion continuations registered by dispatch.
	completions sync.WaitGroup

	queue    chan command.Command
	executor *pool.Pool
	callback *pool.Pool
	stop     chan struct{}
	loopDone chan struct{}

	accepted   atomic.Int64
	dropped    atomic.Int64
	dispatched atomic.Int64
	rejected   atomic.Int64
}

// New creates a Sender in state NEW. api is borrowed, not owned: the Sender
// never closes or reconfigures it.
func New(api command.API, cfg config.SenderConfig, opts ...Option) *Sender {
	s := &Sender{
		api:    api,
		cfg:    cfg,
		logger: log.WithComponent("sender"),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.journal != nil {
		s.rec = newRecorder(s.journal, s.logger, journalBacklog)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Sender) State() State {
	return State(s.state.Load())
}

func (s *Sender) setState(st State) {
	s.state.Store(int32(st))
}

// Submit enqueues cmd, waiting up to the enqueue timeout for room. It never
// reports failure to the caller: a command that cannot be queued is dropped
// and the drop is logged.
func (s *Sender) Submit(ctx context.Context, cmd command.Command) {
	_ = s.Offer(ctx, cmd)
}

// Offer is Submit that also returns why a command was dropped. A nil error
// only means the command was queued, not that it has executed.
//
// If ctx ends while waiting the command is dropped; the cancellation stays
// observable through ctx.Err().
func (s *Sender) Offer(ctx context.Context, cmd command.Command) error {
	if err := cmd.Validate(); err != nil {
		return s.drop(cmd, fmt.Errorf("%w: %v", ErrInvalidCommand, err))
	}

	s.sendMu.RLock()
	err := s.enqueue(ctx, cmd)
	if err == nil {
		s.accept(cmd)
	}
	s.sendMu.RUnlock()

	if err != nil {
		return s.drop(cmd, err)
	}
	return nil
}

// enqueue waits up to the enqueue timeout for queue space. Callers hold
// sendMu shared.
func (s *Sender) enqueue(ctx context.Context, cmd command.Command) error {
	if st := s.State(); st != StateRunning {
		return fmt.Errorf("%w (state %s)", ErrNotRunning, st)
	}

	s.logger.Debug("sending command", "command_id", cmd.ID(), "name", cmd.Name())

	select {
	case <-s.stop:
		return fmt.Errorf("%w: stopping", ErrNotRunning)
	case s.queue <- cmd:
		return nil
	default:
	}

	timer := time.NewTimer(s.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case s.queue <- cmd:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrQueueFull, s.cfg.EnqueueTimeout)
	case <-ctx.Done():
		return fmt.Errorf("enqueue interrupted: %w", ctx.Err())
	case <-s.stop:
		return fmt.Errorf("%w: stopping", ErrNotRunning)
	}
}

func (s *Sender) accept(cmd command.Command) {
	s.accepted.Add(1)
	s.events.Publish(events.CommandAccepted, outcomeData(cmd, nil))
}

func (s *Sender) drop(cmd command.Command, reason error) error {
	s.dropped.Add(1)
	s.logger.Error("can't send command, dropping it",
		"command_id", cmd.ID(),
		"name", cmd.Name(),
		"error", reason,
	)
	s.record(cmd, journal.StatusDropped, reason, 0)
	s.events.Publish(events.CommandDropped, outcomeData(cmd, reason))
	return reason
}

// record hands an outcome to the journal writer. It never blocks.
func (s *Sender) record(cmd command.Command, status journal.Status, cause error, took time.Duration) {
	if s.rec == nil || cmd.ID() == "" {
		return
	}
	entry := journal.Entry{
		CommandID: cmd.ID(),
		Name:      cmd.Name(),
		Status:    status,
		Duration:  took,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	s.rec.record(entry)
}

func outcomeData(cmd command.Command, err error) map[string]any {
	data := map[string]any{
		"command_id": cmd.ID(),
		"name":       cmd.Name(),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	return data
}

// Stats is a point-in-time view of the sender.
type Stats struct {
	State         string      `json:"state"`
	QueueDepth    int         `json:"queue_depth"`
	QueueCapacity int         `json:"queue_capacity"`
	Accepted      int64       `json:"accepted"`
	Dropped       int64       `json:"dropped"`
	Dispatched    int64       `json:"dispatched"`
	Rejected      int64       `json:"rejected"`
	Executor      *pool.Stats `json:"executor,omitempty"`
	Callback      *pool.Stats `json:"callback,omitempty"`
}

// Stats returns current counters. Pool stats are absent before Start.
func (s *Sender) Stats() Stats {
	st := Stats{
		State:         s.State().String(),
		QueueCapacity: s.cfg.QueueSize,
		Accepted:      s.accepted.Load(),
		Dropped:       s.dropped.Load(),
		Dispatched:    s.dispatched.Load(),
		Rejected:      s.rejected.Load(),
	}
	if s.State() >= StateRunning && s.executor != nil {
		st.QueueDepth = len(s.queue)
		ex, cb := s.executor.Stats(), s.callback.Stats()
		st.Executor, st.Callback = &ex, &cb
	}
	return st
}
