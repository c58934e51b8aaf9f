// Package dashboard implements a terminal UI that polls a running
// component's status endpoint and renders its queue depth and processing
// counters live, refreshing on a timer.
package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorPrimary = lipgloss.Color("205")
	colorMuted   = lipgloss.Color("240")
	colorSuccess = lipgloss.Color("82")
	colorError   = lipgloss.Color("196")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(colorMuted)
	valueStyle = lipgloss.NewStyle().Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(colorError)
	okStyle    = lipgloss.NewStyle().Foreground(colorSuccess)
)

// Status mirrors transport.Status; duplicated here (rather than imported)
// so the dashboard only depends on the wire JSON shape, not the transport
// package's internals.
type Status struct {
	QueryName   string `json:"query_name"`
	QueueSize   int    `json:"queue_size"`
	Handled     int    `json:"handled"`
	Events      int    `json:"events"`
	Deltas      int    `json:"deltas"`
	Retractions int    `json:"retractions"`
}

type tickMsg time.Time

type statusMsg struct {
	status Status
	err    error
}

// Option configures a Model at construction time.
type Option func(*Model)

// WithRefreshInterval overrides the default 1-second poll interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Model) { m.refreshInterval = d }
}

// Model is the dashboard's bubbletea state: the polled URL, the last
// successfully fetched status, and the most recent fetch error (if any).
type Model struct {
	url             string
	refreshInterval time.Duration
	client          *http.Client

	status    Status
	lastErr   error
	lastFetch time.Time
}

// New builds a dashboard polling statusURL (a component's "host:port"
// status endpoint — "/status" is appended automatically).
func New(statusURL string, opts ...Option) *Model {
	m := &Model{
		url:             statusURL,
		refreshInterval: time.Second,
		client:          &http.Client{Timeout: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.tick())
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) fetch() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Get(fmt.Sprintf("http://%s/status", m.url))
		if err != nil {
			return statusMsg{err: err}
		}
		defer resp.Body.Close()

		var s Status
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{status: s}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())
	case statusMsg:
		m.lastFetch = time.Now()
		if msg.err != nil {
			m.lastErr = msg.err
		} else {
			m.lastErr = nil
			m.status = msg.status
		}
	}
	return m, nil
}

func (m *Model) View() string {
	header := titleStyle.Render(fmt.Sprintf("mbei component: %s", m.status.QueryName))

	var body string
	if m.lastErr != nil {
		body = errStyle.Render(fmt.Sprintf("polling %s failed: %v", m.url, m.lastErr))
	} else {
		body = fmt.Sprintf(
			"%s %s\n%s %s\n%s %s\n%s %s\n%s %s\n\n%s",
			labelStyle.Render("queue size: "), valueStyle.Render(fmt.Sprint(m.status.QueueSize)),
			labelStyle.Render("handled:    "), valueStyle.Render(fmt.Sprint(m.status.Handled)),
			labelStyle.Render("events:     "), valueStyle.Render(fmt.Sprint(m.status.Events)),
			labelStyle.Render("deltas:     "), valueStyle.Render(fmt.Sprint(m.status.Deltas)),
			labelStyle.Render("retractions:"), valueStyle.Render(fmt.Sprint(m.status.Retractions)),
			okStyle.Render(fmt.Sprintf("last updated: %s", m.lastFetch.Format(time.TimeOnly))),
		)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", header, body, labelStyle.Render("press q to quit"))
}
