package tui

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"greetui/internal/auth"
	"greetui/internal/config"
	"greetui/internal/greetd"
)

type fakeTransport struct {
	sent    []greetd.Request
	results chan greetd.Outcome
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{results: make(chan greetd.Outcome, 4)}
}

func (f *fakeTransport) Send(req greetd.Request) error {
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeTransport) Poll() (greetd.Outcome, bool) {
	select {
	case out := <-f.results:
		return out, true
	default:
		return greetd.Outcome{}, false
	}
}

func (f *fakeTransport) Results() <-chan greetd.Outcome { return f.results }
func (f *fakeTransport) Close() error                   { return nil }
func (f *fakeTransport) Reset()                         { f.results = make(chan greetd.Outcome, 4) }

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Sessions = []config.Session{
		{Name: "Hyprland", Command: "Hyprland"},
		{Name: "Sway", Command: "sway"},
		{Name: "TTY", Command: "/bin/bash"},
	}
	return cfg
}

type harness struct {
	m     Model
	tr    *fakeTransport
	store *config.Store
}

func newHarness(t *testing.T, cfg config.Config, opts Options) *harness {
	t.Helper()
	tr := newFakeTransport()
	store := config.NewStore(filepath.Join(t.TempDir(), "last-user.json"))
	opts.Store = store
	opts.Transport = tr
	opts.Now = t0
	return &harness{m: New(cfg, opts), tr: tr, store: store}
}

func (h *harness) update(t *testing.T, msg tea.Msg) tea.Cmd {
	t.Helper()
	next, cmd := h.m.Update(msg)
	m, ok := next.(Model)
	if !ok {
		t.Fatalf("update returned %T", next)
	}
	h.m = m
	return cmd
}

func (h *harness) press(t *testing.T, key tea.KeyType) tea.Cmd {
	return h.update(t, tea.KeyMsg{Type: key})
}

func (h *harness) typeText(t *testing.T, s string) {
	for _, r := range s {
		h.update(t, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func (h *harness) deliver(t *testing.T, epoch int, out greetd.Outcome) tea.Cmd {
	return h.update(t, outcomeMsg{epoch: epoch, out: out})
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestFocusCyclingIsABijection(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	start := h.m.focus
	for i := 0; i < 3; i++ {
		h.press(t, tea.KeyTab)
	}
	if h.m.focus != start {
		t.Fatalf("three tabs must return to %s, got %s", start, h.m.focus)
	}
	h.press(t, tea.KeyTab)
	h.press(t, tea.KeyShiftTab)
	if h.m.focus != start {
		t.Fatalf("tab then shift+tab must return to %s, got %s", start, h.m.focus)
	}
}

func TestSessionCyclingWraps(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	h.press(t, tea.KeyTab)
	h.press(t, tea.KeyTab)
	if h.m.focus != focusSession {
		t.Fatalf("expected session focus, got %s", h.m.focus)
	}
	for i := 0; i < 4; i++ {
		h.press(t, tea.KeyRight)
	}
	if h.m.sessionIdx != 1 {
		t.Fatalf("expected wrap to index 1, got %d", h.m.sessionIdx)
	}
	for i := 0; i < 2; i++ {
		h.press(t, tea.KeyLeft)
	}
	if h.m.sessionIdx != 2 {
		t.Fatalf("expected wrap back to index 2, got %d", h.m.sessionIdx)
	}
}

func TestArrowsIgnoredOutsideSessionField(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	h.press(t, tea.KeyRight)
	h.press(t, tea.KeyLeft)
	if h.m.sessionIdx != 0 {
		t.Fatalf("arrows must be a no-op outside the session field")
	}
}

func TestPasswordMaskedInViewOnly(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	h.press(t, tea.KeyTab) // password
	h.typeText(t, "hunter2")

	view := h.m.View()
	if strings.Contains(view, "hunter2") {
		t.Fatalf("plaintext password leaked into the view")
	}
	if !strings.Contains(view, strings.Repeat(maskGlyph, 7)) {
		t.Fatalf("expected 7 mask glyphs in view")
	}
	if string(h.m.secret) != "hunter2" {
		t.Fatalf("masking must not alter the buffer, got %q", string(h.m.secret))
	}

	h.press(t, tea.KeyBackspace)
	if string(h.m.secret) != "hunter" {
		t.Fatalf("backspace must drop the last rune, got %q", string(h.m.secret))
	}
}

func TestUnmaskedPasswordRendering(t *testing.T) {
	cfg := testConfig()
	cfg.Security.MaskPassword = false
	h := newHarness(t, cfg, Options{})
	h.press(t, tea.KeyTab)
	h.typeText(t, "pw")
	if !strings.Contains(h.m.View(), "pw") {
		t.Fatalf("expected plaintext rendering when masking is off")
	}
}

func TestEnterRequiresUsername(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	h.press(t, tea.KeyTab) // password focus, empty username
	h.press(t, tea.KeyEnter)
	if len(h.tr.sent) != 0 {
		t.Fatalf("begin must not fire without a username")
	}
	if h.m.errMsg == "" {
		t.Fatalf("expected inline error for missing username")
	}
}

func TestLoginFlowWithRetry(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})

	h.typeText(t, "alice")
	h.press(t, tea.KeyTab)
	h.typeText(t, "wrong")
	h.press(t, tea.KeyEnter)

	if got := h.tr.sent[len(h.tr.sent)-1]; got.Type != "create_session" || got.Username != "alice" {
		t.Fatalf("unexpected begin request: %+v", got)
	}
	if h.m.AuthState() != auth.StateAwaitingDaemon {
		t.Fatalf("expected awaiting_daemon, got %s", h.m.AuthState())
	}

	// Enter while the exchange is pending is suppressed.
	sent := len(h.tr.sent)
	h.press(t, tea.KeyEnter)
	if len(h.tr.sent) != sent {
		t.Fatalf("enter while pending must not issue a request")
	}

	// The secret prompt arrives; the pre-typed password is submitted without
	// a second enter.
	h.deliver(t, 0, greetd.Outcome{Kind: greetd.OutcomePrompt, Prompt: "Password:", Secret: true})
	if got := h.tr.sent[len(h.tr.sent)-1]; got.Type != "post_auth_message_response" || *got.Response != "wrong" {
		t.Fatalf("expected one-shot submit, got %+v", got)
	}

	// Bad credential: back to the prompt, password cleared, username kept.
	h.deliver(t, 0, greetd.Outcome{Kind: greetd.OutcomeErr, Message: "Authentication failed"})
	if h.m.AuthState() != auth.StateCollectingResponse {
		t.Fatalf("expected collecting_response, got %s", h.m.AuthState())
	}
	if len(h.m.secret) != 0 {
		t.Fatalf("password buffer must be cleared on recoverable error")
	}
	if h.m.username.Value() != "alice" {
		t.Fatalf("username must survive a recoverable error")
	}
	if h.m.errMsg != "Authentication failed" {
		t.Fatalf("expected inline error, got %q", h.m.errMsg)
	}
	if h.m.focus != focusPassword {
		t.Fatalf("focus must return to the password field")
	}

	// Retry with the right password, selected session second in the list.
	h.typeText(t, "right")
	h.press(t, tea.KeyEnter)
	if got := h.tr.sent[len(h.tr.sent)-1]; *got.Response != "right" {
		t.Fatalf("unexpected retry submit: %+v", got)
	}

	h.deliver(t, 0, greetd.Outcome{Kind: greetd.OutcomeSuccess})
	if h.m.AuthState() != auth.StateStartingSession {
		t.Fatalf("expected starting_session, got %s", h.m.AuthState())
	}
	if got := h.tr.sent[len(h.tr.sent)-1]; got.Type != "start_session" || got.Cmd[0] != "Hyprland" {
		t.Fatalf("unexpected start request: %+v", got)
	}

	cmd := h.deliver(t, 0, greetd.Outcome{Kind: greetd.OutcomeSuccess})
	if h.m.AuthState() != auth.StateSessionActive {
		t.Fatalf("expected session_active, got %s", h.m.AuthState())
	}
	if !isQuit(cmd) {
		t.Fatalf("hand-off must quit the program")
	}
	if h.m.ExitCode() != ExitHandoff {
		t.Fatalf("unexpected exit code %d", h.m.ExitCode())
	}
	if h.store.LastUser() != "alice" {
		t.Fatalf("last user must be persisted on hand-off")
	}
}

func TestFatalFailureShowsBannerThenExits(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	h.typeText(t, "alice")
	h.press(t, tea.KeyTab)
	h.typeText(t, "pw")
	h.press(t, tea.KeyEnter)

	cmd := h.deliver(t, 0, greetd.Outcome{Kind: greetd.OutcomeErr, Fatal: true, Message: "connection to daemon lost"})
	if isQuit(cmd) {
		t.Fatalf("fatal failure must show the banner before exiting")
	}
	view := h.m.View()
	if !strings.Contains(view, "connection to daemon lost") {
		t.Fatalf("banner must carry the failure message")
	}

	// Ticks inside the grace period keep the banner up.
	if cmd := h.update(t, t0.Add(time.Second)); isQuit(cmd) {
		t.Fatalf("banner must survive the grace period")
	}
	// Any key acknowledges.
	cmd = h.press(t, tea.KeyEnter)
	if !isQuit(cmd) || h.m.ExitCode() != ExitFatal {
		t.Fatalf("acknowledged banner must quit with the fatal code")
	}
}

func TestFatalBannerTimesOut(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	h.typeText(t, "alice")
	h.press(t, tea.KeyTab)
	h.typeText(t, "pw")
	h.press(t, tea.KeyEnter)
	h.deliver(t, 0, greetd.Outcome{Kind: greetd.OutcomeErr, Fatal: true, Message: "gone"})

	cmd := h.update(t, t0.Add(fatalGrace+time.Second))
	if !isQuit(cmd) || h.m.ExitCode() != ExitFatal {
		t.Fatalf("banner must exit on its own after the grace period")
	}
}

func TestIdleTimeoutResetsForm(t *testing.T) {
	cfg := testConfig()
	cfg.Security.InputTimeout = 5
	h := newHarness(t, cfg, Options{})

	h.typeText(t, "alice")
	h.press(t, tea.KeyTab)
	h.typeText(t, "pw")
	h.press(t, tea.KeyEnter)
	h.deliver(t, 0, greetd.Outcome{Kind: greetd.OutcomePrompt, Prompt: "Password:", Secret: true})
	h.deliver(t, 0, greetd.Outcome{Kind: greetd.OutcomeErr, Message: "Authentication failed"})
	if h.m.AuthState() != auth.StateCollectingResponse {
		t.Fatalf("expected collecting_response, got %s", h.m.AuthState())
	}

	h.update(t, t0.Add(6*time.Second))
	if h.m.AuthState() != auth.StateIdle {
		t.Fatalf("idle timeout must return to idle, got %s", h.m.AuthState())
	}
	if h.m.username.Value() != "" || len(h.m.secret) != 0 {
		t.Fatalf("idle timeout must clear both buffers")
	}

	// An outcome from the aborted attempt is stale and must be dropped.
	h.deliver(t, 0, greetd.Outcome{Kind: greetd.OutcomeErr, Fatal: true, Message: "late"})
	if h.m.AuthState() != auth.StateIdle {
		t.Fatalf("stale outcome leaked into the reset form")
	}
}

func TestIdleTimeoutLeavesCleanFormAlone(t *testing.T) {
	cfg := testConfig()
	cfg.Security.InputTimeout = 5
	h := newHarness(t, cfg, Options{})
	h.update(t, t0.Add(time.Hour))
	if h.m.AuthState() != auth.StateIdle || h.m.epoch != 0 {
		t.Fatalf("an untouched form must not be reset")
	}
}

func TestDebugCancelCombination(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	if cmd := h.press(t, tea.KeyCtrlC); cmd != nil {
		t.Fatalf("ctrl+c must be ignored without the debug flag")
	}

	h = newHarness(t, testConfig(), Options{DebugExit: true})
	cmd := h.press(t, tea.KeyCtrlC)
	if !isQuit(cmd) || h.m.ExitCode() != ExitCancelled {
		t.Fatalf("debug cancel must quit with the cancelled code")
	}
}

func TestDebugCancelQueuedBehindExchange(t *testing.T) {
	h := newHarness(t, testConfig(), Options{DebugExit: true})
	h.typeText(t, "alice")
	h.press(t, tea.KeyTab)
	h.typeText(t, "pw")
	h.press(t, tea.KeyEnter)

	if cmd := h.press(t, tea.KeyCtrlC); isQuit(cmd) {
		t.Fatalf("cancel must wait for the outstanding exchange")
	}
	cmd := h.deliver(t, 0, greetd.Outcome{Kind: greetd.OutcomePrompt, Prompt: "Password:", Secret: true})
	if !isQuit(cmd) || h.m.ExitCode() != ExitCancelled {
		t.Fatalf("queued cancel must quit once the exchange resolves")
	}
}

func TestAutofillStartsOnPassword(t *testing.T) {
	h := newHarness(t, testConfig(), Options{Autofill: "alice"})
	if h.m.focus != focusPassword {
		t.Fatalf("prefilled username must focus the password field")
	}
	if h.m.username.Value() != "alice" {
		t.Fatalf("expected prefilled username")
	}

	h = newHarness(t, testConfig(), Options{})
	if h.m.focus != focusUsername {
		t.Fatalf("empty form must focus the username field")
	}
}

func TestClockRendering(t *testing.T) {
	h := newHarness(t, testConfig(), Options{})
	if !strings.Contains(h.m.View(), t0.Format("15:04:05")) {
		t.Fatalf("expected clock in view")
	}
	cfg := testConfig()
	cfg.UI.ShowClock = false
	cfg.UI.ShowDate = false
	h = newHarness(t, cfg, Options{})
	if strings.Contains(h.m.View(), t0.Format("15:04:05")) {
		t.Fatalf("clock must be hidden when disabled")
	}
}
