// Package watch renders a live view of a running simulation: the feed
// connection state, the tracked job's progress, and the transient
// notification stack.
package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/QKD-VITAP/qkdctl/internal/channel"
	"github.com/QKD-VITAP/qkdctl/internal/notify"
	"github.com/QKD-VITAP/qkdctl/internal/tracker"
)

const defaultWidth = 60

type channelEventMsg channel.Event

type jobMsg tracker.Job

type notifyMsg []notify.Entry

type subClosedMsg struct{}

type styles struct {
	title     lipgloss.Style
	connected lipgloss.Style
	degraded  lipgloss.Style
	down      lipgloss.Style
	label     lipgloss.Style
	result    lipgloss.Style
	note      map[notify.Severity]lipgloss.Style
	exiting   lipgloss.Style
	help      lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:     lipgloss.NewStyle().Bold(true),
		connected: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		degraded:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		down:      lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		label:     lipgloss.NewStyle().Faint(true),
		result:    lipgloss.NewStyle().PaddingLeft(2),
		note: map[notify.Severity]lipgloss.Style{
			notify.Success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
			notify.Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
			notify.Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
			notify.Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		},
		exiting: lipgloss.NewStyle().Faint(true),
		help:    lipgloss.NewStyle().Faint(true),
	}
}

// Model is the watch view. It folds push-channel updates into the
// tracker so the progress display survives either transport.
type Model struct {
	ch  *channel.Client
	tr  *tracker.Tracker
	hub *notify.Hub

	events       <-chan channel.Event
	cancelEvents func()
	jobs         <-chan tracker.Job
	cancelJobs   func()
	notes        <-chan []notify.Entry
	cancelNotes  func()

	status  channel.Status
	job     tracker.Job
	entries []notify.Entry

	bar     progress.Model
	spin    spinner.Model
	styles  styles
	width   int
	stopped bool
}

// New builds the watch model and subscribes to its three sources.
func New(ch *channel.Client, tr *tracker.Tracker, hub *notify.Hub) Model {
	m := Model{
		ch:     ch,
		tr:     tr,
		hub:    hub,
		bar:    progress.New(progress.WithDefaultGradient()),
		spin:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		styles: newStyles(),
		width:  defaultWidth,
	}

	m.events, m.cancelEvents = ch.Updates()
	m.jobs, m.cancelJobs = tr.Watch()
	m.notes, m.cancelNotes = hub.Subscribe()
	m.job, _ = tr.Snapshot()
	m.status = ch.Status()

	return m
}

// Init starts the spinner and the three subscription pumps.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitEvent(), m.waitJob(), m.waitNotes())
}

func (m Model) waitEvent() tea.Cmd {
	events := m.events

	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return subClosedMsg{}
		}

		return channelEventMsg(ev)
	}
}

func (m Model) waitJob() tea.Cmd {
	jobs := m.jobs

	return func() tea.Msg {
		job, ok := <-jobs
		if !ok {
			return subClosedMsg{}
		}

		return jobMsg(job)
	}
}

func (m Model) waitNotes() tea.Cmd {
	notes := m.notes

	return func() tea.Msg {
		entries, ok := <-notes
		if !ok {
			return subClosedMsg{}
		}

		return notifyMsg(entries)
	}
}

// Update handles messages for the watch view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.teardown()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = min(msg.Width-8, defaultWidth)

		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)

		return m, cmd

	case channelEventMsg:
		m.status = msg.Status

		if msg.Latest != nil {
			m.observe(*msg.Latest)
		}

		return m, m.waitEvent()

	case jobMsg:
		m.job = tracker.Job(msg)

		return m, m.waitJob()

	case notifyMsg:
		m.entries = msg

		return m, m.waitNotes()

	case subClosedMsg:
		return m, nil
	}

	return m, nil
}

// observe folds a push-channel frame into the tracked job record.
func (m Model) observe(msg channel.Message) {
	if msg.SimulationID == "" {
		return
	}

	switch msg.Type {
	case channel.TypeSimulationUpdate:
		m.tr.Observe(msg.SimulationID, msg.Status, msg.Progress, nil, "")
	case channel.TypeSimulationComplete:
		m.tr.Observe(msg.SimulationID, "completed", 100, msg.Result, "")
	case channel.TypeSimulationError:
		m.tr.Observe(msg.SimulationID, "failed", 0, nil, msg.Error)
	}
}

func (m *Model) teardown() {
	if m.stopped {
		return
	}

	m.stopped = true
	m.cancelEvents()
	m.cancelJobs()
	m.cancelNotes()
}

// View renders the watch view.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.title.Render("qkdctl watch"))
	b.WriteString("\n\n")

	b.WriteString(m.styles.label.Render("feed  "))
	b.WriteString(m.connectionLine())
	b.WriteString("\n")

	b.WriteString(m.styles.label.Render("job   "))
	b.WriteString(m.jobLine())
	b.WriteString("\n")

	if m.job.State == tracker.StateRunning || m.job.State == tracker.StateSubmitted {
		b.WriteString("\n")
		b.WriteString(m.bar.ViewAs(float64(m.job.Progress) / 100))
		b.WriteString("\n")
	}

	if m.job.State == tracker.StateCompleted && len(m.job.Result) > 0 {
		b.WriteString("\n")
		b.WriteString(m.resultSummary())
	}

	if len(m.entries) > 0 {
		b.WriteString("\n")

		for _, e := range m.entries {
			b.WriteString(m.noteLine(e))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.styles.help.Render("q to quit"))
	b.WriteString("\n")

	return b.String()
}

func (m Model) connectionLine() string {
	switch m.status.State {
	case channel.StateConnected:
		return m.styles.connected.Render("connected")
	case channel.StateConnecting:
		return m.spin.View() + m.styles.degraded.Render("connecting")
	case channel.StateReconnecting:
		return m.spin.View() + m.styles.degraded.Render(
			fmt.Sprintf("reconnecting (attempt %d)", m.status.Attempt))
	default:
		return m.styles.down.Render("disconnected")
	}
}

func (m Model) jobLine() string {
	switch m.job.State {
	case tracker.StateIdle:
		return m.styles.label.Render("none")
	case tracker.StateSubmitted:
		return fmt.Sprintf("%s submitted", m.job.ID)
	case tracker.StateRunning:
		return fmt.Sprintf("%s running %d%%", m.job.ID, m.job.Progress)
	case tracker.StateCompleted:
		return m.styles.connected.Render(fmt.Sprintf("%s completed", m.job.ID))
	case tracker.StateFailed:
		return m.styles.down.Render(fmt.Sprintf("%s failed: %s", m.job.ID, m.job.Reason))
	}

	return string(m.job.State)
}

func (m Model) resultSummary() string {
	var b strings.Builder

	for _, key := range []string{"qber", "final_key_length", "key_rate", "sifted_key_length"} {
		if v, ok := m.job.Result[key]; ok {
			b.WriteString(m.styles.result.Render(fmt.Sprintf("%s: %v", key, v)))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (m Model) noteLine(e notify.Entry) string {
	style, ok := m.styles.note[e.Severity]
	if !ok {
		style = m.styles.label
	}

	line := style.Render(fmt.Sprintf("• %s", e.Text))
	if e.Phase == notify.Exiting {
		line = m.styles.exiting.Render(fmt.Sprintf("• %s", e.Text))
	}

	return line
}

// Run drives the watch view until the user quits or ctx-style teardown
// via the caller closing the subscriptions.
func Run(ch *channel.Client, tr *tracker.Tracker, hub *notify.Hub) error {
	p := tea.NewProgram(New(ch, tr, hub))

	_, err := p.Run()

	return err
}
