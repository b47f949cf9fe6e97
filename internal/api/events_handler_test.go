package api

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vincentruan/telegram-spring-bot/internal/events"
	"github.com/vincentruan/telegram-spring-bot/internal/sender"
)

func TestEventsStreamReplaysAndFollows(t *testing.T) {
	hub := events.NewHub(16)
	hub.Publish(events.SenderStarted, map[string]any{"queue_size": 10})

	srv := New(Config{APIKey: testKey}, &mockSender{state: sender.StateRunning}, nil, hub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEventType := func() string {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "event: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event: "))
			}
		}
	}

	assert.Equal(t, events.SenderStarted, readEventType())

	hub.Publish(events.CommandSucceeded, map[string]any{"command_id": "abc"})
	assert.Equal(t, events.CommandSucceeded, readEventType())
}

func TestEventsDisabled(t *testing.T) {
	srv := newTestServer(&mockSender{state: sender.StateRunning}, nil)
	rr := doRequest(t, srv, http.MethodGet, "/events", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestParseLastEventID(t *testing.T) {
	assert.EqualValues(t, 0, parseLastEventID(""))
	assert.EqualValues(t, 0, parseLastEventID("abc"))
	assert.EqualValues(t, 0, parseLastEventID("-4"))
	assert.EqualValues(t, 12, parseLastEventID("12"))
}
