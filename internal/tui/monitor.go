// Package tui implements the live command monitor behind `tgsender monitor`.
package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vincentruan/telegram-spring-bot/internal/api"
	"github.com/vincentruan/telegram-spring-bot/internal/events"
	"github.com/vincentruan/telegram-spring-bot/internal/pool"
)

const (
	maxCommands  = 200
	maxEventLog  = 50
	shownEvents  = 10
	healthPeriod = 5 * time.Second
	retryPeriod  = 2 * time.Second
)

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	statusQueued  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	statusDropped = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Command statuses as shown in the table.
const (
	StatusQueued    = "queued"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusDropped   = "dropped"
	StatusRejected  = "rejected"
)

// CommandRow is the monitor's view of one command, built from outcome events.
type CommandRow struct {
	ID       string
	Name     string
	Status   string
	Error    string
	Accepted time.Time
	Finished time.Time
}

// Duration is the time from acceptance to outcome, or to now while queued.
func (c *CommandRow) Duration(now time.Time) string {
	if c.Accepted.IsZero() {
		return "-"
	}
	end := c.Finished
	if end.IsZero() {
		end = now
	}
	return end.Sub(c.Accepted).Round(time.Millisecond).String()
}

type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	commands map[string]*CommandRow
	order    []string // newest first
	eventLog []events.Event
	incoming chan events.Event
	lastID   int64

	health    api.HealthzResponse
	healthErr error
	connected bool

	table table.Model
	now   func() time.Time
}

type (
	eventMsg        events.Event
	healthMsg       api.HealthzResponse
	healthErrMsg    struct{ err error }
	disconnectedMsg struct{ err error }
	reconnectMsg    struct{}
)

// NewMonitor returns a monitor for the ops API at apiURL.
func NewMonitor(apiURL, apiKey string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Method", Width: 24},
			{Title: "Command", Width: 10},
			{Title: "Status", Width: 10},
			{Title: "Duration", Width: 10},
			{Title: "Error", Width: 30},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		apiURL:   strings.TrimRight(apiURL, "/"),
		apiKey:   apiKey,
		commands: make(map[string]*CommandRow),
		incoming: make(chan events.Event, 128),
		table:    t,
		now:      time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.subscribe(),
		m.receiveNextEvent(),
		m.pollHealth(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(m.width-6, 20))
		m.table.SetHeight(max(m.height/2-4, 5))

	case eventMsg:
		m.connected = true
		m.handleEvent(events.Event(msg))
		m.updateTable()
		return m, m.receiveNextEvent()

	case disconnectedMsg:
		m.connected = false
		return m, tea.Tick(retryPeriod, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.subscribe()

	case healthMsg:
		m.health = api.HealthzResponse(msg)
		m.healthErr = nil
		return m, m.scheduleHealth()

	case healthErrMsg:
		m.healthErr = msg.err
		return m, m.scheduleHealth()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) handleEvent(e events.Event) {
	// Reconnects replay the server's ring buffer. A lower sender.started
	// ID means the server restarted and numbering began again.
	if e.ID != 0 && e.ID <= m.lastID && e.Type != events.SenderStarted {
		return
	}
	if e.ID != 0 {
		m.lastID = e.ID
	}

	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[:maxEventLog]
	}

	var status string
	switch e.Type {
	case events.CommandAccepted:
		status = StatusQueued
	case events.CommandSucceeded:
		status = StatusSucceeded
	case events.CommandFailed:
		status = StatusFailed
	case events.CommandDropped:
		status = StatusDropped
	case events.CommandRejected:
		status = StatusRejected
	default:
		return
	}

	var data struct {
		CommandID string `json:"command_id"`
		Name      string `json:"name"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil || data.CommandID == "" {
		return
	}

	row, ok := m.commands[data.CommandID]
	if !ok {
		row = &CommandRow{ID: data.CommandID, Name: data.Name}
		m.commands[data.CommandID] = row
		m.order = append([]string{data.CommandID}, m.order...)
		m.trim()
	}
	if data.Name != "" {
		row.Name = data.Name
	}

	if status == StatusQueued {
		// An outcome can arrive first when the stream reconnects mid-flight.
		if row.Status == "" {
			row.Status = status
		}
		row.Accepted = e.At
		return
	}
	row.Status = status
	row.Error = data.Error
	row.Finished = e.At
}

func (m *Model) trim() {
	for len(m.order) > maxCommands {
		oldest := m.order[len(m.order)-1]
		m.order = m.order[:len(m.order)-1]
		delete(m.commands, oldest)
	}
}

func (m *Model) updateTable() {
	now := m.now()
	rows := make([]table.Row, 0, len(m.order))
	for _, id := range m.order {
		c := m.commands[id]
		rows = append(rows, table.Row{
			statusSymbol(c.Status),
			c.Name,
			shortID(c.ID),
			c.Status,
			c.Duration(now),
			c.Error,
		})
	}
	m.table.SetRows(rows)
}

func statusSymbol(status string) string {
	switch status {
	case StatusQueued:
		return statusQueued.Render("○")
	case StatusSucceeded:
		return statusOK.Render("●")
	case StatusFailed:
		return statusFailed.Render("∅")
	case StatusRejected:
		return statusFailed.Render("◔")
	case StatusDropped:
		return statusDropped.Render("◌")
	}
	return "○"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	commands := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Commands"),
			m.table.View(),
		),
	)
	stream := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Event Stream"),
			m.renderEvents(),
		),
	)
	help := dimStyle.Render(" [q] Quit • [↑/↓] Scroll Commands")

	return docStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.renderHeader(),
			commands,
			stream,
			help,
		),
	)
}

func (m Model) renderHeader() string {
	st := m.health.Sender

	var state string
	switch {
	case m.healthErr != nil:
		state = statusFailed.Render("UNREACHABLE")
	case st.State == "":
		state = statusQueued.Render("UNKNOWN")
	case st.State == "RUNNING":
		state = statusOK.Render(st.State)
	default:
		state = statusFailed.Render(st.State)
	}

	stream := statusOK.Render("live")
	if !m.connected {
		stream = statusQueued.Render("offline")
	}

	items := []string{
		"Sender: " + state,
		"Uptime: " + (time.Duration(m.health.UptimeSeconds) * time.Second).String(),
		fmt.Sprintf("Queue: %d/%d", st.QueueDepth, st.QueueCapacity),
		"Executor: " + poolSummary(st.Executor),
		"Callback: " + poolSummary(st.Callback),
		fmt.Sprintf("Dropped: %d", st.Dropped),
		"Events: " + stream,
	}

	width := (m.width - 4) / len(items)
	cells := make([]string, len(items))
	for i, item := range items {
		cells[i] = lipgloss.NewStyle().Width(width).Render(item)
	}
	return borderStyle.Width(m.width - 4).Render(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
}

func poolSummary(p *pool.Stats) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%d busy, %d queued", p.Active, p.Workers, p.Queued)
}

func (m Model) renderEvents() string {
	var lines []string
	for i, e := range m.eventLog {
		if i >= shownEvents {
			break
		}
		lines = append(lines, fmt.Sprintf("%s | %-17s | %s", e.At.Local().Format("15:04:05"), e.Type, string(e.Data)))
	}
	if len(lines) == 0 {
		return "  No events yet..."
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}
