package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Messages the launcher feeds into the shell.

// LogLineMsg is one relayed backend output line.
type LogLineMsg struct {
	Err  bool
	Line string
}

// ReadyMsg records the readiness result for display.
type ReadyMsg struct {
	Attempts int
	Elapsed  time.Duration
}

// FailedMsg carries the readiness diagnostic. The splash layout stays
// on screen; only its content switches to the failure report.
type FailedMsg struct {
	Detail string
}

// BackendExitMsg reports that the backend terminated.
type BackendExitMsg struct {
	Code int
}

// Internal messages emitted by the program surfaces.

type splashCloseMsg struct{}
type mainShowMsg struct{}
type mainFocusMsg struct{}

type view int

const (
	viewSplash view = iota
	viewMain
	viewFailed
)

const defaultTailLines = 200

// Options configures the shell.
type Options struct {
	AppName   string
	Backend   string
	Port      int
	TailLines int
}

type logLine struct {
	err  bool
	text string
}

// Model is the root state for the fullscreen shell.
type Model struct {
	appName string
	backend string
	port    int

	styles  Styles
	spinner spinner.Model

	width   int
	height  int
	view    view
	focused bool
	started time.Time

	readyAttempts int
	readyElapsed  time.Duration
	failDetail    string
	exited        bool
	exitCode      int

	tail    []logLine
	maxTail int
}

// NewModel builds the shell in its splash state.
func NewModel(opts Options) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	styles := DefaultStyles()
	sp.Style = styles.Spinner

	maxTail := opts.TailLines
	if maxTail <= 0 {
		maxTail = defaultTailLines
	}
	appName := opts.AppName
	if appName == "" {
		appName = "OpenAutoNote"
	}

	return Model{
		appName: appName,
		backend: opts.Backend,
		port:    opts.Port,
		styles:  styles,
		spinner: sp,
		view:    viewSplash,
		started: time.Now(),
		maxTail: maxTail,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		if m.view != viewSplash {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case LogLineMsg:
		m.tail = append(m.tail, logLine{err: msg.Err, text: msg.Line})
		if len(m.tail) > m.maxTail {
			m.tail = m.tail[len(m.tail)-m.maxTail:]
		}
		return m, nil

	case ReadyMsg:
		m.readyAttempts = msg.Attempts
		m.readyElapsed = msg.Elapsed
		return m, nil

	case FailedMsg:
		m.failDetail = msg.Detail
		m.view = viewFailed
		return m, nil

	case BackendExitMsg:
		m.exited = true
		m.exitCode = msg.Code
		return m, nil

	case splashCloseMsg:
		if m.view == viewSplash {
			m.view = viewMain
		}
		return m, nil

	case mainShowMsg:
		if m.view != viewFailed {
			m.view = viewMain
		}
		return m, nil

	case mainFocusMsg:
		m.focused = true
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	switch m.view {
	case viewMain:
		return m.renderMain()
	case viewFailed:
		return m.renderFailed()
	default:
		return m.renderSplash()
	}
}

func (m Model) renderSplash() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render(m.appName))
	b.WriteString("\n\n")
	b.WriteString(m.spinner.View())
	b.WriteString(" Starting backend")
	if m.backend != "" {
		b.WriteString(m.styles.Subtle.Render(fmt.Sprintf(" (%s on port %d)", m.backend, m.port)))
	}
	b.WriteString("\n")
	b.WriteString(m.styles.Subtle.Render(fmt.Sprintf("waiting %s", time.Since(m.started).Round(time.Second))))
	b.WriteString("\n\n")
	b.WriteString(m.renderTail(5))
	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render("q quit"))
	return m.styles.Frame.Render(b.String())
}

func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render(m.appName))
	b.WriteString("  ")
	if m.exited {
		b.WriteString(m.styles.Danger.Render(fmt.Sprintf("backend exited (code %d)", m.exitCode)))
	} else {
		b.WriteString(m.styles.Ready.Render(fmt.Sprintf("ready in %s (%d attempts)",
			m.readyElapsed.Round(time.Millisecond), m.readyAttempts)))
	}
	b.WriteString("\n")
	b.WriteString(m.styles.Subtle.Render(fmt.Sprintf("%s :%d", m.backend, m.port)))
	b.WriteString("\n\n")
	b.WriteString(m.renderTail(m.tailHeight()))
	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render("q quit"))
	return m.styles.Frame.Render(b.String())
}

func (m Model) renderFailed() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render(m.appName))
	b.WriteString("\n\n")
	b.WriteString(m.styles.Danger.Render("Backend failed to start"))
	b.WriteString("\n")
	if m.failDetail != "" {
		b.WriteString(m.failDetail)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.renderTail(8))
	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render("q quit"))
	return m.styles.Frame.Render(b.String())
}

// renderTail joins the most recent backend lines, newest last.
func (m Model) renderTail(max int) string {
	if max <= 0 || len(m.tail) == 0 {
		return ""
	}
	start := len(m.tail) - max
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for i, l := range m.tail[start:] {
		if i > 0 {
			b.WriteString("\n")
		}
		if l.err {
			b.WriteString(m.styles.LogErr.Render(l.text))
		} else {
			b.WriteString(m.styles.LogOut.Render(l.text))
		}
	}
	return b.String()
}

func (m Model) tailHeight() int {
	h := m.height - 8
	if h < 3 {
		h = 3
	}
	return h
}
