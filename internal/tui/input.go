package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"greetui/internal/auth"
)

// focusField identifies which form field receives keystrokes. Tab order is
// fixed: Username, Password, SessionSelector, wrap.
type focusField int

const (
	focusUsername focusField = iota
	focusPassword
	focusSession

	focusFieldCount = 3
)

func (f focusField) String() string {
	switch f {
	case focusUsername:
		return "username"
	case focusPassword:
		return "password"
	case focusSession:
		return "session"
	default:
		return "unknown"
	}
}

func (f focusField) next() focusField {
	return (f + 1) % focusFieldCount
}

func (f focusField) prev() focusField {
	return (f + focusFieldCount - 1) % focusFieldCount
}

func (m *Model) setFocus(f focusField) {
	m.focus = f
	if f == focusUsername {
		m.username.Focus()
	} else {
		m.username.Blur()
	}
}

// cycleSession moves the selected session index by delta with wrap-around.
func (m *Model) cycleSession(delta int) {
	n := len(m.cfg.Sessions)
	m.sessionIdx = ((m.sessionIdx+delta)%n + n) % n
}

func (m *Model) appendSecret(runes []rune) {
	m.secret = append(m.secret, runes...)
}

func (m *Model) backspaceSecret() {
	if n := len(m.secret); n > 0 {
		m.secret[n-1] = 0
		m.secret = m.secret[:n-1]
	}
}

// clearSecret zeroes and truncates the password buffer.
func (m *Model) clearSecret() {
	zeroRunes(m.secret)
	m.secret = m.secret[:0]
}

// secretBytes copies the password buffer for transport; the session zeroes
// the copy after sending.
func (m *Model) secretBytes() []byte {
	return []byte(string(m.secret))
}

func zeroRunes(r []rune) {
	for i := range r {
		r[i] = 0
	}
}

// exchangePending reports whether a daemon exchange is outstanding; while it
// is, anything that would issue a second request is suppressed.
func (m *Model) exchangePending() bool {
	st := m.session.State()
	return st == auth.StateAwaitingDaemon || st == auth.StateStartingSession
}

// handleKey routes one keystroke. It mutates focus and buffers directly and
// returns a command when the keystroke started or completed a daemon
// exchange.
func (m *Model) handleKey(k tea.KeyMsg) tea.Cmd {
	m.lastInput = m.now

	switch k.String() {
	case "ctrl+c", "esc":
		// Debug-only escape hatch; a login screen must not be killable
		// otherwise.
		if !m.debugExit {
			return nil
		}
		return m.requestCancel()
	case "tab":
		m.errMsg = ""
		m.setFocus(m.focus.next())
		return nil
	case "shift+tab":
		m.errMsg = ""
		m.setFocus(m.focus.prev())
		return nil
	case "left":
		if m.focus == focusSession {
			m.errMsg = ""
			m.cycleSession(-1)
		}
		return nil
	case "right":
		if m.focus == focusSession {
			m.errMsg = ""
			m.cycleSession(1)
		}
		return nil
	case "enter":
		return m.handleEnter()
	}

	switch k.Type {
	case tea.KeyBackspace:
		m.errMsg = ""
		switch m.focus {
		case focusUsername:
			var cmd tea.Cmd
			m.username, cmd = m.username.Update(k)
			return cmd
		case focusPassword:
			m.backspaceSecret()
		}
		return nil
	case tea.KeyRunes, tea.KeySpace:
		m.errMsg = ""
		switch m.focus {
		case focusUsername:
			var cmd tea.Cmd
			m.username, cmd = m.username.Update(k)
			return cmd
		case focusPassword:
			runes := k.Runes
			if k.Type == tea.KeySpace {
				runes = []rune{' '}
			}
			m.appendSecret(runes)
		}
		return nil
	}
	return nil
}

// handleEnter dispatches the submit action for the current machine state.
// Enter while an exchange is pending is a deliberate no-op.
func (m *Model) handleEnter() tea.Cmd {
	if m.exchangePending() {
		return nil
	}
	switch m.session.State() {
	case auth.StateIdle:
		if m.focus != focusPassword && !(m.focus == focusUsername && len(m.secret) == 0) {
			return nil
		}
		if m.username.Value() == "" {
			m.errMsg = "enter a username"
			return nil
		}
		return m.beginAuth()
	case auth.StateCollectingResponse:
		return m.submitSecret()
	}
	return nil
}

// requestCancel cancels the attempt. With an exchange outstanding the cancel
// is queued inside the session and flushed when the exchange resolves; the
// quit happens on the resulting Cancelled transition.
func (m *Model) requestCancel() tea.Cmd {
	m.session.Cancel()
	if m.session.State() == auth.StateCancelled {
		m.exitCode = ExitCancelled
		return tea.Quit
	}
	return nil
}
