package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vincentruan/telegram-spring-bot/internal/journal"
)

// journalBacklog bounds outcome entries waiting for the journal writer.
const journalBacklog = 1024

// journalTimeout bounds a single journal write.
const journalTimeout = 5 * time.Second

var errJournalBacklog = errors.New("journal backlog not flushed in time")

// recorder writes outcome entries from one goroutine so that neither
// producers nor the dispatch loop ever wait on the journal. Entries that do
// not fit in the backlog are dropped and logged.
type recorder struct {
	journal Journal
	logger  *slog.Logger
	backlog int

	mu      sync.Mutex
	closed  bool
	entries chan journal.Entry
	done    chan struct{}
}

func newRecorder(j Journal, logger *slog.Logger, backlog int) *recorder {
	return &recorder{journal: j, logger: logger, backlog: backlog}
}

// record queues e for writing without blocking.
func (r *recorder) record(e journal.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Warn("journal closed, outcome not recorded", "command_id", e.CommandID, "status", e.Status)
		return
	}
	if r.entries == nil {
		r.entries = make(chan journal.Entry, r.backlog)
		r.done = make(chan struct{})
		go r.run(r.entries, r.done)
	}

	select {
	case r.entries <- e:
	default:
		r.logger.Error("journal backlog full, outcome not recorded",
			"command_id", e.CommandID,
			"status", e.Status,
			"backlog", r.backlog,
		)
	}
}

func (r *recorder) run(entries <-chan journal.Entry, done chan<- struct{}) {
	defer close(done)
	for e := range entries {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		err := r.journal.Record(ctx, e)
		cancel()
		if err != nil {
			r.logger.Error("failed to journal command outcome", "command_id", e.CommandID, "status", e.Status, "error", err)
		}
	}
}

// close stops intake and waits up to timeout for the backlog to be written.
func (r *recorder) close(timeout time.Duration) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries, done := r.entries, r.done
	r.mu.Unlock()

	if entries == nil {
		return nil
	}
	close(entries)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return errJournalBacklog
	}
}
