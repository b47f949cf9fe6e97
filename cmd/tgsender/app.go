package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vincentruan/telegram-spring-bot/internal/botapi"
	"github.com/vincentruan/telegram-spring-bot/internal/config"
	"github.com/vincentruan/telegram-spring-bot/internal/events"
	"github.com/vincentruan/telegram-spring-bot/internal/journal"
	"github.com/vincentruan/telegram-spring-bot/internal/log"
	"github.com/vincentruan/telegram-spring-bot/internal/sender"
	"github.com/vincentruan/telegram-spring-bot/internal/storage"
	"github.com/vincentruan/telegram-spring-bot/internal/tracing"
)

// tracingFlushTimeout bounds the final span export on Close.
const tracingFlushTimeout = 5 * time.Second

// app holds the long-lived components built from a Config.
type app struct {
	db      *sql.DB
	journal *journal.Journal
	events  *events.Hub
	sender  *sender.Sender

	shutdownTracing tracing.ShutdownFunc
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{events: events.NewHub(256)}

	tp, shutdown, err := tracing.Setup(ctx, cfg.Service.Tracing, cfg.Service.Name, version)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.shutdownTracing = shutdown
	if cfg.Service.Tracing.Enabled && cfg.Service.Tracing.Endpoint != "" {
		log.WithComponent("main").Info("tracing enabled", "endpoint", cfg.Service.Tracing.Endpoint, "sample_ratio", cfg.Service.Tracing.SampleRatio)
	}
	opts := []sender.Option{sender.WithEvents(a.events), sender.WithTracerProvider(tp)}

	if cfg.Journal.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open journal %s: %w", cfg.Journal.Path, err)
		}
		a.db = db
		a.journal = journal.New(db)
		opts = append(opts, sender.WithJournal(a.journal))
		log.WithComponent("main").Info("journal opened", "path", cfg.Journal.Path)
	}

	client, err := botapi.New(cfg.BotAPI)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("bot api client: %w", err)
	}
	a.sender = sender.New(client, cfg.Sender, opts...)
	return a, nil
}

// Close flushes pending spans and releases storage. The sender must already
// be stopped.
func (a *app) Close() {
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tracingFlushTimeout)
		if err := a.shutdownTracing(ctx); err != nil {
			log.WithComponent("main").Warn("failed to flush traces", "error", err)
		}
		cancel()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
