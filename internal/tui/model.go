// Package tui is the interactive front half of the greeter: a bubbletea
// model multiplexing keystrokes, a one-second tick and completion of the
// outstanding daemon exchange, driving the auth state machine and rendering
// from its current snapshot.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"greetui/internal/auth"
	"greetui/internal/config"
	"greetui/internal/eventlog"
	"greetui/internal/greetd"
)

// Process exit codes. There is no success code for the normal path: after
// session hand-off the daemon owns the terminal and the greeter simply leaves.
const (
	ExitHandoff   = 0
	ExitFatal     = 1
	ExitCancelled = 2
	ExitConfig    = 3
)

// fatalGrace is how long the failure banner stays up before the process
// exits on its own.
const fatalGrace = 3 * time.Second

// outcomeMsg delivers one completed daemon exchange. epoch guards against a
// stale delivery from an exchange aborted by an idle-timeout reset.
type outcomeMsg struct {
	epoch int
	out   greetd.Outcome
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return t })
}

// Model is the event loop state. Methods on *Model mutate in place; the
// bubbletea Update adapter copies are shallow and share the underlying
// buffers, which is safe because dispatch is single-threaded.
type Model struct {
	cfg     config.Config
	store   *config.Store
	log     *eventlog.Logger
	th      theme
	session *auth.Session
	ch      auth.Transport

	focus      focusField
	username   textinput.Model
	secret     []rune
	sessionIdx int
	spin       spinner.Model

	now       time.Time
	lastInput time.Time
	width     int
	height    int

	errMsg  string
	infoMsg string
	prompt  auth.Prompt

	// oneShot answers the first secret prompt with the pre-typed password,
	// so a filled-in form needs a single Enter.
	oneShot bool
	// epoch increments on every idle-timeout reset; outcome messages from
	// before the reset are dropped.
	epoch int

	debugExit  bool
	sessionEnv []string

	fatalMsg      string
	fatalDeadline time.Time
	exitCode      int

	correlation string
}

// Options carries everything the model needs beyond the config snapshot.
type Options struct {
	Store      *config.Store
	Log        *eventlog.Logger
	Transport  auth.Transport
	DebugExit  bool
	SessionEnv []string
	Autofill   string
	Now        time.Time
}

// New builds the model. The transport is shared with the auth session; the
// model only touches it through the session and the completion stream.
func New(cfg config.Config, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = ""
	ti.CharLimit = 64
	ti.Width = cfg.UI.FieldWidth - 4
	ti.SetValue(opts.Autofill)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	m := Model{
		cfg:        cfg,
		store:      opts.Store,
		log:        opts.Log,
		th:         newTheme(cfg.UI.Colors),
		session:    auth.NewSession(opts.Transport, cfg.Security),
		ch:         opts.Transport,
		username:   ti,
		spin:       sp,
		now:        now,
		lastInput:  now,
		debugExit:  opts.DebugExit || cfg.DebugExit,
		sessionEnv: opts.SessionEnv,
		exitCode:   ExitFatal,
	}
	if opts.Autofill != "" {
		m.setFocus(focusPassword)
	} else {
		m.setFocus(focusUsername)
	}
	return m
}

// ExitCode is read by main after the program returns.
func (m Model) ExitCode() int { return m.exitCode }

// AuthState exposes the machine state for the smoke harness and tests.
func (m Model) AuthState() auth.State { return m.session.State() }

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.spin.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch t := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = t.Width
		m.height = t.Height
		return m, nil

	case time.Time:
		return m.onTick(t)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(t)
		return m, cmd

	case outcomeMsg:
		if t.epoch != m.epoch {
			return m, nil
		}
		return m.onOutcome(t.out)

	case tea.KeyMsg:
		if m.fatalMsg != "" {
			// Banner acknowledged.
			m.exitCode = ExitFatal
			return m, tea.Quit
		}
		cmd := m.handleKey(t)
		return m.afterDispatch(cmd)
	}
	return m, nil
}

// afterDispatch folds in terminal transitions a keystroke may have caused
// (a failed begin, an immediate cancel).
func (m Model) afterDispatch(cmd tea.Cmd) (tea.Model, tea.Cmd) {
	switch m.session.State() {
	case auth.StateFatalFailure:
		return m.enterFatal(m.session.FatalMessage()), cmd
	default:
		return m, cmd
	}
}

func (m Model) onTick(now time.Time) (tea.Model, tea.Cmd) {
	m.now = now

	if m.fatalMsg != "" {
		if now.After(m.fatalDeadline) {
			m.exitCode = ExitFatal
			return m, tea.Quit
		}
		return m, tickCmd()
	}

	if t := m.cfg.Security.InputTimeout; t > 0 && !m.session.State().Terminal() {
		idle := now.Sub(m.lastInput) >= time.Duration(t)*time.Second
		dirty := m.session.State() != auth.StateIdle ||
			len(m.secret) > 0 || m.username.Value() != ""
		if idle && dirty {
			m = m.resetForm()
		}
	}
	return m, tickCmd()
}

// resetForm is the idle-timeout action: cancel the attempt, clear every
// buffer and return the machine to idle.
func (m Model) resetForm() Model {
	m.session.Reset()
	m.epoch++
	m.clearSecret()
	m.username.SetValue("")
	m.errMsg = ""
	m.infoMsg = ""
	m.prompt = auth.Prompt{}
	m.oneShot = false
	m.correlation = ""
	m.setFocus(focusUsername)
	m.log.Append("tui", "form.reset", map[string]any{"reason": "input_timeout"}, "")
	return m
}

// awaitOutcome blocks a goroutine on the completion stream and resurfaces it
// as a message. Issued only while an exchange is outstanding.
func (m Model) awaitOutcome() tea.Cmd {
	epoch := m.epoch
	results := m.ch.Results()
	return func() tea.Msg {
		return outcomeMsg{epoch: epoch, out: <-results}
	}
}

func (m *Model) beginAuth() tea.Cmd {
	m.correlation = eventlog.NewCorrelationID()
	m.oneShot = len(m.secret) > 0
	m.session.SetLaunch(m.selectedSession().Command, m.sessionEnv)
	if err := m.session.Begin(m.username.Value()); err != nil {
		m.log.Append("auth", "begin.failed", map[string]any{"error": err.Error()}, m.correlation)
		return nil
	}
	m.log.Append("auth", "begin", map[string]any{"username": m.username.Value()}, m.correlation)
	return m.awaitOutcome()
}

func (m *Model) submitSecret() tea.Cmd {
	// The launch command follows the selector until the final exchange.
	m.session.SetLaunch(m.selectedSession().Command, m.sessionEnv)
	if err := m.session.SubmitSecret(m.secretBytes()); err != nil {
		m.log.Append("auth", "submit.failed", map[string]any{"error": err.Error()}, m.correlation)
		return nil
	}
	m.clearSecret()
	m.log.Append("auth", "submit", nil, m.correlation)
	return m.awaitOutcome()
}

func (m Model) onOutcome(out greetd.Outcome) (tea.Model, tea.Cmd) {
	ev := m.session.Apply(out)
	m.log.Append("auth", "outcome", map[string]any{
		"kind":  out.Kind.String(),
		"state": ev.State.String(),
	}, m.correlation)

	if ev.ClearSecret {
		m.clearSecret()
	}

	switch ev.State {
	case auth.StateCollectingResponse:
		m.prompt = ev.Prompt
		if ev.Recoverable {
			m.errMsg = ev.Message
			m.setFocus(focusPassword)
			m.oneShot = false
			return m, nil
		}
		m.errMsg = ""
		if m.oneShot && ev.Prompt.Secret && len(m.secret) > 0 {
			m.oneShot = false
			cmd := m.submitSecret()
			return m, cmd
		}
		m.setFocus(focusPassword)
		return m, nil

	case auth.StateAwaitingDaemon, auth.StateStartingSession:
		// Info ack or session start was sent inside Apply; keep waiting.
		if ev.Message != "" {
			m.infoMsg = ev.Message
		}
		return m, m.awaitOutcome()

	case auth.StateSessionActive:
		if err := m.store.SaveLastUser(m.session.Username()); err != nil {
			m.log.Append("store", "last_user.save_failed", map[string]any{"error": err.Error()}, m.correlation)
		}
		m.log.Append("auth", "handoff", map[string]any{
			"session": m.cfg.Sessions[m.sessionIdx].Name,
		}, m.correlation)
		m.exitCode = ExitHandoff
		return m, tea.Quit

	case auth.StateCancelled:
		m.exitCode = ExitCancelled
		return m, tea.Quit

	case auth.StateFatalFailure:
		return m.enterFatal(ev.Message), nil
	}
	return m, nil
}

// enterFatal swaps the form for the failure banner; the process exits after
// acknowledgement or the grace period.
func (m Model) enterFatal(msg string) Model {
	if msg == "" {
		msg = "unrecoverable failure"
	}
	m.fatalMsg = msg
	m.fatalDeadline = m.now.Add(fatalGrace)
	m.clearSecret()
	m.log.Append("auth", "fatal", map[string]any{"message": msg}, m.correlation)
	return m
}

// selectedSession is the currently chosen entry; the index is always in
// range because cycling wraps modulo the session count.
func (m Model) selectedSession() config.Session {
	return m.cfg.Sessions[m.sessionIdx]
}
