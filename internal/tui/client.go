package tui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vincentruan/telegram-spring-bot/internal/events"
)

var healthClient = &http.Client{Timeout: 2 * time.Second}

// Run starts the monitor in the alternate screen and blocks until the user quits.
func Run(apiURL, apiKey string) error {
	_, err := tea.NewProgram(NewMonitor(apiURL, apiKey), tea.WithAltScreen()).Run()
	return err
}

// subscribe streams /events into m.incoming until the connection drops.
func (m Model) subscribe() tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, m.apiURL+"/events", nil)
		if err != nil {
			return disconnectedMsg{err: err}
		}
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
		req.Header.Set("Accept", "text/event-stream")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return disconnectedMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return disconnectedMsg{err: fmt.Errorf("events: %s", resp.Status)}
		}

		return disconnectedMsg{err: readStream(resp.Body, m.incoming)}
	}
}

// readStream parses server-sent event frames from r and sends each to out.
// Comment lines are ignored. Events are stamped with their receipt time.
func readStream(r io.Reader, out chan<- events.Event) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		cur  events.Event
		data []string
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				cur.Data = []byte(strings.Join(data, "\n"))
				cur.At = time.Now().UTC()
				out <- cur
			}
			cur, data = events.Event{}, nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id:"):
			cur.ID, _ = strconv.ParseInt(strings.TrimSpace(line[3:]), 10, 64)
		case strings.HasPrefix(line, "event:"):
			cur.Type = strings.TrimSpace(line[6:])
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(line[5:], " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (m Model) receiveNextEvent() tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-m.incoming)
	}
}

func (m Model) pollHealth() tea.Cmd {
	return func() tea.Msg {
		return m.fetchHealth()
	}
}

func (m Model) scheduleHealth() tea.Cmd {
	return tea.Tick(healthPeriod, func(time.Time) tea.Msg {
		return m.fetchHealth()
	})
}

func (m Model) fetchHealth() tea.Msg {
	req, err := http.NewRequest(http.MethodGet, m.apiURL+"/healthz", nil)
	if err != nil {
		return healthErrMsg{err: err}
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := healthClient.Do(req)
	if err != nil {
		return healthErrMsg{err: err}
	}
	defer resp.Body.Close()

	// 503 still carries the sender stats.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return healthErrMsg{err: fmt.Errorf("healthz: %s", resp.Status)}
	}
	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return healthErrMsg{err: err}
	}
	return h
}
