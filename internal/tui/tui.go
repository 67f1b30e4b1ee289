// Package tui is the interactive terminal front end: a live event view with
// single-key controls for connect, start/stop, clear, and export.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bft-labs/voltship/pkg/voltship"
)

const (
	// DefaultWorkbook is offered when the export prompt opens.
	DefaultWorkbook = "voltage_data.xlsx"

	maxLines       = 500
	statusInterval = 250 * time.Millisecond

	delayedNotice = "Voltages Displayed May be Delayed"
)

// Controller is the subset of *voltship.Voltship the UI drives.
type Controller interface {
	Connect(ctx context.Context, port string) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Clear(ctx context.Context) error
	Export(ctx context.Context, path string, appendTo bool) (voltship.ExportResult, error)
	Status() voltship.Status
}

// Options configures a Model.
type Options struct {
	// Port to connect to; empty runs discovery.
	Port string
	// AutoConnect attempts a connection as soon as the program starts.
	AutoConnect bool
	// OpTimeout bounds each controller call. Stop waits for the full drain,
	// so keep this generous.
	OpTimeout time.Duration
	// Workbook is the initial export path.
	Workbook string
}

type (
	eventsMsg []voltship.Event
	statusMsg voltship.Status
	opDoneMsg struct {
		op  string
		err error
	}
)

// Model is the bubbletea model.
type Model struct {
	ctl  Controller
	feed *voltship.Feed
	opts Options

	lines  []string
	status voltship.Status

	busy    string
	lastErr string

	prompt     textinput.Model
	prompting  bool
	appendMode bool

	width  int
	height int
}

// New creates a model reading events from feed.
func New(ctl Controller, feed *voltship.Feed, opts Options) Model {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = time.Minute
	}
	if opts.Workbook == "" {
		opts.Workbook = DefaultWorkbook
	}

	ti := textinput.New()
	ti.Placeholder = DefaultWorkbook
	ti.CharLimit = 4096
	ti.Width = 60

	m := Model{
		ctl:    ctl,
		feed:   feed,
		opts:   opts,
		prompt: ti,
		status: ctl.Status(),
	}
	m.push(progressStyle.Render(delayedNotice))
	if opts.AutoConnect {
		m.busy = "connect"
	}
	return m
}

// Init starts the event pump and the status ticker.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForEvents(), m.scheduleStatus()}
	if m.opts.AutoConnect {
		cmds = append(cmds, m.connect())
	}
	return tea.Batch(cmds...)
}

func (m Model) waitForEvents() tea.Cmd {
	feed := m.feed
	return func() tea.Msg {
		<-feed.Ready()
		return eventsMsg(feed.Drain())
	}
}

func (m Model) scheduleStatus() tea.Cmd {
	ctl := m.ctl
	return tea.Tick(statusInterval, func(time.Time) tea.Msg {
		return statusMsg(ctl.Status())
	})
}

// run executes a controller call off the UI goroutine.
func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	timeout := m.opts.OpTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m Model) connect() tea.Cmd {
	ctl, port := m.ctl, m.opts.Port
	return m.run("connect", func(ctx context.Context) error {
		return ctl.Connect(ctx, port)
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case eventsMsg:
		for _, e := range msg {
			m.push(renderEvent(e))
		}
		return m, m.waitForEvents()

	case statusMsg:
		m.status = voltship.Status(msg)
		return m, m.scheduleStatus()

	case opDoneMsg:
		m.busy = ""
		m.lastErr = ""
		if msg.err != nil {
			m.lastErr = fmt.Sprintf("%s: %v", msg.op, msg.err)
		}
		m.status = m.ctl.Status()
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "c", "s", "x", "e", "a":
	default:
		return m, nil
	}

	if m.busy != "" {
		m.lastErr = fmt.Sprintf("wait for %s to finish", m.busy)
		return m, nil
	}

	ctl := m.ctl
	switch key {
	case "c":
		m.busy = "connect"
		return m, m.connect()
	case "s":
		if m.status.State == voltship.StateRunning {
			m.busy = "stop"
			return m, m.run("stop", ctl.Stop)
		}
		m.busy = "start"
		return m, m.run("start", ctl.Start)
	case "x":
		m.busy = "clear"
		return m, m.run("clear", ctl.Clear)
	default:
		m.prompting = true
		m.appendMode = key == "a"
		m.prompt.SetValue(m.opts.Workbook)
		m.prompt.CursorEnd()
		return m, m.prompt.Focus()
	}
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.prompting = false
		m.prompt.Blur()
		return m, nil

	case tea.KeyEnter:
		path := strings.TrimSpace(m.prompt.Value())
		m.prompting = false
		m.prompt.Blur()
		if path == "" {
			return m, nil
		}
		m.opts.Workbook = path
		m.busy = "export"
		ctl, appendTo := m.ctl, m.appendMode
		return m, m.run("export", func(ctx context.Context) error {
			_, err := ctl.Export(ctx, path, appendTo)
			return err
		})
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m *Model) push(line string) {
	m.lines = append(m.lines, line)
	if over := len(m.lines) - maxLines; over > 0 {
		m.lines = append(m.lines[:0], m.lines[over:]...)
	}
}

func renderEvent(e voltship.Event) string {
	switch {
	case e.Kind.IsError():
		return errorStyle.Render(e.Message)
	case e.Kind == voltship.EventSample:
		return sampleStyle.Render(e.Message)
	case e.Kind == voltship.EventProgress:
		return progressStyle.Render(e.Message)
	default:
		return statusStyle.Render(e.Message)
	}
}

// View renders the screen.
func (m Model) View() string {
	b := &strings.Builder{}

	st := m.status
	state := st.State.String()
	style, ok := stateStyles[state]
	if !ok {
		style = stateStyles["Idle"]
	}
	port := st.Port
	if port == "" {
		port = "not connected"
	}
	fmt.Fprintf(b, "%s  %s  %s\n", titleStyle.Render("voltship"), style.Render(state), port)
	fmt.Fprintf(b, "saved %d (session %d)  queued %d  decoded %d  rejected %d\n",
		st.Flushed, st.Session.Records, st.QueueDepth, st.Decoded, st.Rejected)

	fmt.Fprintln(b, sectionStyle.Render("Output"))
	for _, l := range m.visibleLines() {
		fmt.Fprintln(b, l)
	}

	if m.prompting {
		label := "Export to"
		if m.appendMode {
			label = "Append to"
		}
		fmt.Fprintf(b, "\n%s %s\n", promptStyle.Render(label), m.prompt.View())
		fmt.Fprintln(b, helpStyle.Render("enter confirm  esc cancel"))
		return b.String()
	}

	if m.busy != "" {
		fmt.Fprintln(b, progressStyle.Render("\n"+m.busy+"..."))
	}
	if m.lastErr != "" {
		fmt.Fprintln(b, errorStyle.Render("\n"+m.lastErr))
	}
	fmt.Fprintln(b, helpStyle.Render("\nc connect  s start/stop  x clear  e export  a append  q quit"))
	return b.String()
}

func (m Model) visibleLines() []string {
	n := len(m.lines)
	if m.height > 0 {
		if room := m.height - 10; room < n {
			if room < 1 {
				room = 1
			}
			return m.lines[n-room:]
		}
	}
	return m.lines
}

// Run executes the program until the user quits. The caller shuts the
// controller down afterwards.
func Run(ctl Controller, feed *voltship.Feed, opts Options) error {
	p := tea.NewProgram(New(ctl, feed, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
