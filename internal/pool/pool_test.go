package pool

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vincentruan/telegram-spring-bot/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

func newTestPool(t *testing.T, core, max, capacity int, keepAlive time.Duration) *Pool {
	t.Helper()
	p, err := New(Options{
		Name:          "test",
		CoreSize:      core,
		MaxSize:       max,
		KeepAlive:     keepAlive,
		QueueCapacity: capacity,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(time.Second) })
	return p
}

// blocker returns a task that waits on release and a channel that reports
// when the task has started.
func blocker(release <-chan struct{}) (Task, <-chan struct{}) {
	started := make(chan struct{})
	return func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "released", nil
	}, started
}

func waitStarted(t *testing.T, started <-chan struct{}) {
	t.Helper()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not start")
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"ok", Options{CoreSize: 1, MaxSize: 2, KeepAlive: time.Second}, false},
		{"zero core", Options{CoreSize: 0, MaxSize: 1}, false},
		{"negative core", Options{CoreSize: -1, MaxSize: 1}, true},
		{"zero max", Options{CoreSize: 0, MaxSize: 0}, true},
		{"max below core", Options{CoreSize: 4, MaxSize: 2}, true},
		{"negative keep-alive", Options{CoreSize: 1, MaxSize: 1, KeepAlive: -time.Second}, true},
		{"negative capacity", Options{CoreSize: 1, MaxSize: 1, QueueCapacity: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := New(Options{Name: "bad", CoreSize: 2, MaxSize: 1})
	assert.Error(t, err)
}

func TestSubmitReturnsResult(t *testing.T) {
	p := newTestPool(t, 1, 1, 0, time.Minute)

	f, err := p.Submit(func(ctx context.Context) (any, error) { return 42, nil })
	require.NoError(t, err)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSubmitPropagatesTaskError(t *testing.T) {
	p := newTestPool(t, 1, 1, 0, time.Minute)
	boom := errors.New("boom")

	f, err := p.Submit(func(ctx context.Context) (any, error) { return nil, boom })
	require.NoError(t, err)

	_, err = f.Result()
	assert.ErrorIs(t, err, boom)
}

func TestRendezvousRejectsWhenSaturated(t *testing.T) {
	p := newTestPool(t, 1, 1, 0, time.Minute)
	release := make(chan struct{})
	defer close(release)

	task, started := blocker(release)
	_, err := p.Submit(task)
	require.NoError(t, err)
	waitStarted(t, started)

	_, err = p.Submit(func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, int64(1), p.Stats().Rejected)
}

func TestRendezvousHandsOffToIdleWorker(t *testing.T) {
	p := newTestPool(t, 1, 1, 0, time.Minute)

	f, err := p.Submit(func(ctx context.Context) (any, error) { return 1, nil })
	require.NoError(t, err)
	_, _ = f.Result()

	// The single core worker is now idle and parked on the hand-off.
	assert.Eventually(t, func() bool {
		f, err := p.Submit(func(ctx context.Context) (any, error) { return 2, nil })
		if err != nil {
			return false
		}
		v, _ := f.Result()
		return v == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, p.Stats().Workers)
}

func TestBufferedQueueAcceptsUpToCapacity(t *testing.T) {
	p := newTestPool(t, 1, 1, 1, time.Minute)
	release := make(chan struct{})

	task, started := blocker(release)
	_, err := p.Submit(task)
	require.NoError(t, err)
	waitStarted(t, started)

	queued, err := p.Submit(func(ctx context.Context) (any, error) { return "queued", nil })
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stats().Queued)

	_, err = p.Submit(func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrRejected)

	close(release)
	v, err := queued.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "queued", v)
}

func TestGrowsToMaxThenRejects(t *testing.T) {
	p := newTestPool(t, 1, 3, 0, time.Minute)
	release := make(chan struct{})
	defer close(release)

	for range 3 {
		task, started := blocker(release)
		_, err := p.Submit(task)
		require.NoError(t, err)
		waitStarted(t, started)
	}
	assert.Equal(t, 3, p.Stats().Workers)

	_, err := p.Submit(func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrRejected)
}

func TestZeroCoreBufferedStillRuns(t *testing.T) {
	p := newTestPool(t, 0, 1, 4, 10*time.Millisecond)

	f, err := p.Submit(func(ctx context.Context) (any, error) { return "ran", nil })
	require.NoError(t, err)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ran", v)
}

func TestSurplusWorkersRetireAfterKeepAlive(t *testing.T) {
	p := newTestPool(t, 1, 3, 0, 20*time.Millisecond)
	release := make(chan struct{})

	for range 3 {
		task, started := blocker(release)
		_, err := p.Submit(task)
		require.NoError(t, err)
		waitStarted(t, started)
	}
	require.Equal(t, 3, p.Stats().Workers)
	close(release)

	assert.Eventually(t, func() bool { return p.Stats().Workers == 1 }, 2*time.Second, 10*time.Millisecond)

	// Core worker stays put well past the keep-alive.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, p.Stats().Workers)
}

func TestTaskPanicBecomesError(t *testing.T) {
	p := newTestPool(t, 1, 1, 0, time.Minute)

	f, err := p.Submit(func(ctx context.Context) (any, error) { panic("kaboom") })
	require.NoError(t, err)
	_, err = f.Result()
	assert.ErrorIs(t, err, ErrPanic)

	// Worker survives and keeps serving.
	assert.Eventually(t, func() bool {
		f, err := p.Submit(func(ctx context.Context) (any, error) { return "ok", nil })
		if err != nil {
			return false
		}
		v, _ := f.Result()
		return v == "ok"
	}, time.Second, 5*time.Millisecond)
}

func TestOnComplete(t *testing.T) {
	p := newTestPool(t, 1, 1, 0, time.Minute)
	release := make(chan struct{})
	task, started := blocker(release)

	f, err := p.Submit(task)
	require.NoError(t, err)
	waitStarted(t, started)

	got := make(chan any, 2)
	f.OnComplete(func(v any, err error) { got <- v })
	close(release)

	select {
	case v := <-got:
		assert.Equal(t, "released", v)
	case <-time.After(time.Second):
		t.Fatal("continuation did not run")
	}

	// Registering after completion still runs fn, but off the caller.
	caller := make(chan struct{})
	late := make(chan any, 1)
	f.OnComplete(func(v any, err error) {
		select {
		case <-caller:
			late <- v
		case <-time.After(time.Second):
			late <- "ran on caller"
		}
	})
	close(caller)

	select {
	case v := <-late:
		assert.Equal(t, "released", v)
	case <-time.After(time.Second):
		t.Fatal("late continuation did not run")
	}
}

func TestShutdownDrainsQueuedTasks(t *testing.T) {
	p := newTestPool(t, 1, 1, 4, time.Minute)
	release := make(chan struct{})
	task, started := blocker(release)

	_, err := p.Submit(task)
	require.NoError(t, err)
	waitStarted(t, started)

	var ran atomic.Int32
	var futures []*Future
	for range 3 {
		f, err := p.Submit(func(ctx context.Context) (any, error) {
			ran.Add(1)
			return nil, nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	require.NoError(t, p.Shutdown(2*time.Second))

	assert.Equal(t, int32(3), ran.Load())
	for _, f := range futures {
		select {
		case <-f.Done():
		default:
			t.Fatal("queued task future not completed")
		}
	}
	assert.Equal(t, StateTerminated, p.State())

	_, err = p.Submit(func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrShutdown)

	// Idempotent.
	assert.NoError(t, p.Shutdown(time.Second))
}

func TestShutdownTimeoutForcesTermination(t *testing.T) {
	p := newTestPool(t, 1, 1, 4, time.Minute)
	release := make(chan struct{})
	defer close(release)

	var sawCancel atomic.Bool
	started := make(chan struct{})
	stuck, err := p.Submit(func(ctx context.Context) (any, error) {
		close(started)
		select {
		case <-ctx.Done():
			sawCancel.Store(true)
		case <-time.After(5 * time.Second):
		}
		<-release
		return "late", nil
	})
	require.NoError(t, err)
	waitStarted(t, started)

	var queuedRan atomic.Bool
	queued, err := p.Submit(func(ctx context.Context) (any, error) {
		queuedRan.Store(true)
		return nil, nil
	})
	require.NoError(t, err)

	var continued atomic.Bool
	stuck.OnComplete(func(any, error) { continued.Store(true) })

	begin := time.Now()
	err = p.Shutdown(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrShutdownTimeout)
	assert.Less(t, time.Since(begin), 2*time.Second)
	assert.Equal(t, StateTerminated, p.State())

	assert.Eventually(t, sawCancel.Load, time.Second, 5*time.Millisecond)
	assert.False(t, queuedRan.Load())
	assert.Equal(t, int64(1), p.Stats().Abandoned)

	select {
	case <-queued.Done():
		t.Fatal("abandoned task must not complete")
	default:
	}
	select {
	case <-stuck.Done():
		t.Fatal("forced task result must be discarded")
	default:
	}
	assert.False(t, continued.Load())
}
