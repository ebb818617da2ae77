package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"greetui/internal/auth"
)

const maskGlyph = "*"

func (m Model) View() string {
	if m.fatalMsg != "" {
		return m.viewBanner()
	}
	return m.viewForm()
}

func (m Model) viewBanner() string {
	body := m.th.Danger.Render("Login failed") + "\n\n" +
		m.fatalMsg + "\n\n" +
		m.th.Muted.Render("press any key to exit")
	box := m.th.Banner.Render(body)
	return m.center(box)
}

func (m Model) viewForm() string {
	var b strings.Builder
	gap := strings.Repeat("\n", m.cfg.UI.FieldSpacing+1)

	b.WriteString(m.th.Title.Render(m.cfg.UI.Title))
	b.WriteString(gap)

	if m.cfg.UI.ShowClock || m.cfg.UI.ShowDate {
		if m.cfg.UI.ShowClock {
			b.WriteString(m.th.Clock.Render(m.now.Format(m.cfg.UI.ClockFormat)))
			b.WriteString("\n")
		}
		if m.cfg.UI.ShowDate {
			b.WriteString(m.th.Date.Render(m.now.Format(m.cfg.UI.DateFormat)))
			b.WriteString("\n")
		}
		b.WriteString(gap)
	}

	b.WriteString(m.fieldBox("Username", m.username.View(), m.focus == focusUsername))
	b.WriteString(gap)
	b.WriteString(m.fieldBox(m.passwordLabel(), m.passwordView(), m.focus == focusPassword))
	if m.errMsg != "" {
		// Recoverable errors sit right under the password field; the
		// username stays put for the retry.
		b.WriteString("\n")
		b.WriteString(m.th.Danger.Render(m.errMsg))
	}
	b.WriteString(gap)
	b.WriteString(m.fieldBox("Session", m.sessionView(), m.focus == focusSession))

	if line := m.statusLine(); line != "" {
		b.WriteString(gap)
		b.WriteString(line)
	}

	b.WriteString("\n\n")
	b.WriteString(m.th.Muted.Render("tab: field  ←/→: session  enter: login"))

	return m.center(b.String())
}

func (m Model) center(s string) string {
	if m.width == 0 || m.height == 0 {
		return s
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
}

// fieldBox renders one bordered form field at the configured width, label
// above the value, focus switching the border style.
func (m Model) fieldBox(label, value string, focused bool) string {
	style := m.th.Field
	if focused {
		style = m.th.FieldFocused
	}
	inner := m.th.Label.Render(label) + "\n" + value
	style = style.Width(m.cfg.UI.FieldWidth)
	// field_height is the full box height; two of its rows are the border.
	if h := m.cfg.UI.FieldHeight - 2; h > lipgloss.Height(inner) {
		style = style.Height(h)
	}
	return style.Render(inner)
}

func (m Model) passwordLabel() string {
	if m.session.State() == auth.StateCollectingResponse && m.prompt.Text != "" {
		return strings.TrimSuffix(strings.TrimSpace(m.prompt.Text), ":")
	}
	return "Password"
}

// passwordView renders the secret buffer. Masking replaces each rune with a
// fixed glyph in the rendered form only; the buffer itself is untouched.
func (m Model) passwordView() string {
	if m.cfg.Security.MaskPassword {
		return m.th.Input.Render(strings.Repeat(maskGlyph, len(m.secret)))
	}
	return m.th.Input.Render(string(m.secret))
}

func (m Model) sessionView() string {
	name := m.selectedSession().Name
	if m.focus == focusSession {
		return m.th.Input.Render("< " + name + " >")
	}
	return m.th.Input.Render(name)
}

// statusLine is the inline line under the form: spinner while an exchange is
// outstanding, otherwise the latest daemon info message.
func (m Model) statusLine() string {
	if m.exchangePending() {
		return m.spin.View() + m.th.Muted.Render(" authenticating…")
	}
	if m.infoMsg != "" {
		return m.th.Muted.Render(m.infoMsg)
	}
	return ""
}
