package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vincentruan/telegram-spring-bot/internal/log"
)

// State is the lifecycle state of a Pool.
type State int32

const (
	StateRunning State = iota
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var (
	ErrRejected        = errors.New("pool saturated")
	ErrShutdown        = errors.New("pool is shut down")
	ErrShutdownTimeout = errors.New("pool shutdown timed out")
	ErrPanic           = errors.New("task panicked")
)

// Task is a unit of work. ctx is cancelled when the pool is forcibly
// terminated.
type Task func(ctx context.Context) (any, error)

// Options configures a Pool.
type Options struct {
	Name          string
	CoreSize      int
	MaxSize       int
	KeepAlive     time.Duration
	QueueCapacity int
	Logger        *slog.Logger
}

// Validate checks size bounds.
func (o Options) Validate() error {
	if o.CoreSize < 0 {
		return fmt.Errorf("core size must be >= 0 (got %d)", o.CoreSize)
	}
	if o.MaxSize < 1 {
		return fmt.Errorf("max size must be >= 1 (got %d)", o.MaxSize)
	}
	if o.MaxSize < o.CoreSize {
		return fmt.Errorf("max size %d is below core size %d", o.MaxSize, o.CoreSize)
	}
	if o.KeepAlive < 0 {
		return fmt.Errorf("keep-alive must be >= 0 (got %s)", o.KeepAlive)
	}
	if o.QueueCapacity < 0 {
		return fmt.Errorf("queue capacity must be >= 0 (got %d)", o.QueueCapacity)
	}
	return nil
}

// Stats is a point-in-time view of a Pool.
type Stats struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Workers   int    `json:"workers"`
	Active    int64  `json:"active"`
	Queued    int    `json:"queued"`
	Completed int64  `json:"completed"`
	Rejected  int64  `json:"rejected"`
	Abandoned int64  `json:"abandoned"`
}

type job struct {
	task   Task
	future *Future
}

// Pool executes tasks on worker goroutines.
type Pool struct {
	opts   Options
	logger *slog.Logger
	tasks  chan job

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	workers    int
	nextWorker int
	wg         sync.WaitGroup
	terminated chan struct{}

	forced    atomic.Bool
	active    atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	abandoned atomic.Int64
}

// New validates opts and returns a running Pool with no workers yet.
func New(opts Options) (*Pool, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("pool %q: %w", opts.Name, err)
	}
	if opts.Name == "" {
		opts.Name = "pool"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithComponent("pool")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		opts:       opts,
		logger:     logger.With("pool", opts.Name),
		tasks:      make(chan job, opts.QueueCapacity),
		ctx:        ctx,
		cancel:     cancel,
		terminated: make(chan struct{}),
	}, nil
}

// Name returns the pool's name prefix.
func (p *Pool) Name() string { return p.opts.Name }

// Submit schedules task and returns its Future.
func (p *Pool) Submit(task Task) (*Future, error) {
	if task == nil {
		return nil, errors.New("nil task")
	}
	j := job{task: task, future: newFuture(&p.forced)}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRunning {
		return nil, ErrShutdown
	}

	if p.workers < p.opts.CoreSize {
		p.startWorkerLocked(&j)
		return j.future, nil
	}

	select {
	case p.tasks <- j:
		// A zero-core pool may have queued work and nobody to run it.
		if p.workers == 0 {
			p.startWorkerLocked(nil)
		}
		return j.future, nil
	default:
	}

	if p.workers < p.opts.MaxSize {
		p.startWorkerLocked(&j)
		return j.future, nil
	}

	p.rejected.Add(1)
	return nil, ErrRejected
}

func (p *Pool) startWorkerLocked(first *job) {
	p.workers++
	p.nextWorker++
	name := fmt.Sprintf("%s-%d", p.opts.Name, p.nextWorker)
	p.wg.Add(1)
	go p.work(name, first)
}

func (p *Pool) work(name string, first *job) {
	defer p.wg.Done()
	logger := p.logger.With("worker", name)

	if first != nil {
		p.run(logger, *first)
	}

	idle := time.NewTimer(p.opts.KeepAlive)
	defer idle.Stop()
	idleC := idle.C

	for {
		select {
		case j, ok := <-p.tasks:
			if !ok {
				p.mu.Lock()
				p.workers--
				p.mu.Unlock()
				return
			}
			if p.forced.Load() {
				p.abandoned.Add(1)
				continue
			}
			p.run(logger, j)
			idle.Reset(p.opts.KeepAlive)
			idleC = idle.C
		case <-idleC:
			if p.retire() {
				logger.Debug("idle worker retired")
				return
			}
			// Within core size: wait for work without a deadline.
			idleC = nil
		}
	}
}

// retire removes the calling worker if the pool is above core size and no
// work is buffered.
func (p *Pool) retire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning || p.workers <= p.opts.CoreSize || len(p.tasks) > 0 {
		return false
	}
	p.workers--
	return true
}

func (p *Pool) run(logger *slog.Logger, j job) {
	p.active.Add(1)
	v, err := p.call(logger, j.task)
	p.active.Add(-1)
	p.completed.Add(1)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("task continuation panicked", "panic", r)
		}
	}()
	j.future.complete(v, err)
}

func (p *Pool) call(logger *slog.Logger, task Task) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", "panic", r)
			v, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return task(p.ctx)
}

// Shutdown stops accepting tasks and waits up to timeout for running and
// queued tasks to finish. Past the timeout the pool is forcibly terminated
// and ErrShutdownTimeout is returned. Calling Shutdown again waits for the
// first call to finish and returns nil.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		<-p.terminated
		return nil
	}
	p.state = StateShuttingDown
	close(p.tasks)
	p.mu.Unlock()

	p.logger.Debug("pool shutting down", "timeout", timeout)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case <-done:
	case <-timer.C:
		p.forced.Store(true)
		p.cancel()
		for range p.tasks {
			p.abandoned.Add(1)
		}
		p.logger.Warn("pool did not terminate in time, abandoning outstanding tasks",
			"timeout", timeout,
			"active", p.active.Load(),
			"abandoned", p.abandoned.Load(),
		)
		err = fmt.Errorf("%w: %s after %s", ErrShutdownTimeout, p.opts.Name, timeout)
	}
	p.cancel()

	p.mu.Lock()
	p.state = StateTerminated
	p.mu.Unlock()
	close(p.terminated)
	return err
}

// State returns the current lifecycle state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	workers, state := p.workers, p.state
	p.mu.Unlock()
	return Stats{
		Name:      p.opts.Name,
		State:     state.String(),
		Workers:   workers,
		Active:    p.active.Load(),
		Queued:    len(p.tasks),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Abandoned: p.abandoned.Load(),
	}
}
