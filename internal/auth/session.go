// Package auth implements the authentication and session-launch state machine
// on top of the greetd channel. It owns the credential buffers and enforces
// the password security policy.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"greetui/internal/config"
	"greetui/internal/greetd"
)

// State is the authentication lifecycle. SessionActive, Cancelled and
// FatalFailure are terminal.
type State int

const (
	StateIdle State = iota
	StateAwaitingDaemon
	StateCollectingResponse
	StateStartingSession
	StateSessionActive
	StateCancelled
	StateFatalFailure
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingDaemon:
		return "awaiting_daemon"
	case StateCollectingResponse:
		return "collecting_response"
	case StateStartingSession:
		return "starting_session"
	case StateSessionActive:
		return "session_active"
	case StateCancelled:
		return "cancelled"
	case StateFatalFailure:
		return "fatal_failure"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateSessionActive || s == StateCancelled || s == StateFatalFailure
}

// Transport is the slice of the greetd channel the machine depends on; the
// concrete *greetd.Channel satisfies it, tests substitute a fake.
type Transport interface {
	Send(greetd.Request) error
	Poll() (greetd.Outcome, bool)
	Results() <-chan greetd.Outcome
	Close() error
	Reset()
}

// Prompt is the outstanding daemon question while collecting a response.
type Prompt struct {
	Text   string
	Secret bool
}

// Event is what one applied outcome means for the UI layer.
type Event struct {
	State State
	// Prompt is set when the daemon asked a new question.
	Prompt Prompt
	// Message is an informational or error message to surface inline.
	Message string
	// Recoverable marks Message as a retryable credential failure.
	Recoverable bool
	// ClearSecret tells the input layer to wipe its password buffer, per the
	// clear_password_on_error policy.
	ClearSecret bool
}

// ErrInvalidState is returned when an operation is issued from a state that
// does not permit it.
var ErrInvalidState = errors.New("auth: operation not valid in current state")

// Session drives one authentication attempt through the daemon.
type Session struct {
	ch     Transport
	policy config.Security

	state    State
	username string
	prompt   Prompt
	command  string
	env      []string

	// pendingCancel queues a cancel while an exchange is outstanding; the
	// protocol forbids overlapping requests.
	pendingCancel bool
	fatalMessage  string
}

func NewSession(ch Transport, policy config.Security) *Session {
	return &Session{ch: ch, policy: policy, state: StateIdle}
}

func (s *Session) State() State { return s.state }

// Prompt returns the outstanding daemon prompt; meaningful only in
// StateCollectingResponse.
func (s *Session) Prompt() Prompt { return s.prompt }

// Username returns the identity this attempt is for.
func (s *Session) Username() string { return s.username }

// FatalMessage returns the message that drove the machine into FatalFailure.
func (s *Session) FatalMessage() string { return s.fatalMessage }

// SetLaunch records the session command and environment used once
// authentication succeeds. May be updated any time before StartingSession.
func (s *Session) SetLaunch(command string, env []string) {
	s.command = command
	s.env = env
}

// Begin claims the daemon connection and opens a session for username. Valid
// only from StateIdle.
func (s *Session) Begin(username string) error {
	if s.state != StateIdle {
		return fmt.Errorf("%w: begin from %s", ErrInvalidState, s.state)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("auth: empty username")
	}
	if err := s.ch.Send(greetd.CreateSession(username)); err != nil {
		return s.fail(err)
	}
	s.username = username
	s.state = StateAwaitingDaemon
	return nil
}

// SubmitSecret answers the outstanding prompt. Valid only from
// StateCollectingResponse. The secret buffer is zeroed before returning; the
// caller must not reuse it.
func (s *Session) SubmitSecret(secret []byte) error {
	defer Zero(secret)
	if s.state != StateCollectingResponse {
		return fmt.Errorf("%w: submit from %s", ErrInvalidState, s.state)
	}
	resp := string(secret)
	if err := s.ch.Send(greetd.PostAuthMessageResponse(&resp)); err != nil {
		return s.fail(err)
	}
	s.state = StateAwaitingDaemon
	return nil
}

// Cancel aborts the attempt. If an exchange is outstanding the cancel is
// queued and flushed when it resolves; otherwise the cancel message is sent
// now. Idempotent: cancelling an already-cancelled machine is a no-op.
func (s *Session) Cancel() {
	switch s.state {
	case StateCancelled, StateSessionActive, StateFatalFailure:
		return
	case StateAwaitingDaemon, StateStartingSession:
		s.pendingCancel = true
	default:
		s.sendCancel()
	}
}

func (s *Session) sendCancel() {
	if s.username != "" {
		// Only cancel a session the daemon actually knows about.
		_ = s.ch.Send(greetd.CancelSession())
	}
	_ = s.ch.Close()
	s.pendingCancel = false
	s.state = StateCancelled
}

// Poll applies the latest completed exchange, if any. The second return is
// false while the exchange is still pending or no request is outstanding.
func (s *Session) Poll() (Event, bool) {
	out, ok := s.ch.Poll()
	if !ok {
		return Event{}, false
	}
	return s.Apply(out), true
}

// Apply feeds one completed exchange into the machine and returns the
// resulting event. The event loop calls this with outcomes received from the
// channel's completion stream.
func (s *Session) Apply(out greetd.Outcome) Event {
	// A queued cancel wins over whatever the exchange produced, except a
	// fatal error which already tore the connection down.
	if s.pendingCancel && !(out.Kind == greetd.OutcomeErr && out.Fatal) {
		s.sendCancel()
		return Event{State: s.state}
	}

	switch s.state {
	case StateAwaitingDaemon:
		return s.applyAwaiting(out)
	case StateStartingSession:
		return s.applyStarting(out)
	default:
		// An outcome with no outstanding request is a protocol fault.
		return s.fatal(fmt.Sprintf("unexpected %s outcome in state %s", out.Kind, s.state))
	}
}

func (s *Session) applyAwaiting(out greetd.Outcome) Event {
	switch out.Kind {
	case greetd.OutcomePrompt:
		s.prompt = Prompt{Text: out.Prompt, Secret: out.Secret}
		s.state = StateCollectingResponse
		return Event{State: s.state, Prompt: s.prompt}
	case greetd.OutcomeInfo:
		// Informational messages need no user input; acknowledge and keep
		// waiting for the next daemon response.
		if err := s.ch.Send(greetd.PostAuthMessageResponse(nil)); err != nil {
			return s.fatal(err.Error())
		}
		return Event{State: s.state, Message: out.Message}
	case greetd.OutcomeSuccess:
		return s.startSession()
	case greetd.OutcomeErr:
		if out.Fatal {
			return s.fatal(out.Message)
		}
		// Recoverable credential failure: the prompt is re-shown and the
		// password buffer cleared per policy.
		s.state = StateCollectingResponse
		return Event{
			State:       s.state,
			Prompt:      s.prompt,
			Message:     out.Message,
			Recoverable: true,
			ClearSecret: s.policy.ClearPasswordOnError,
		}
	default:
		return s.fatal(fmt.Sprintf("unhandled outcome kind %s", out.Kind))
	}
}

func (s *Session) startSession() Event {
	cmd := strings.Fields(s.command)
	if len(cmd) == 0 {
		return s.fatal("selected session has an empty command")
	}
	if err := s.ch.Send(greetd.StartSession(cmd, s.env)); err != nil {
		return s.fatal(err.Error())
	}
	s.state = StateStartingSession
	return Event{State: s.state}
}

func (s *Session) applyStarting(out greetd.Outcome) Event {
	switch out.Kind {
	case greetd.OutcomeSuccess:
		s.state = StateSessionActive
		_ = s.ch.Close()
		return Event{State: s.state}
	case greetd.OutcomeErr:
		msg := out.Message
		if msg == "" {
			msg = "session failed to start"
		}
		return s.fatal(msg)
	default:
		return s.fatal(fmt.Sprintf("unexpected %s outcome while starting session", out.Kind))
	}
}

// Reset returns the machine to Idle with buffers cleared and the connection
// dropped, ready for a fresh attempt. Used by the idle-timeout path.
func (s *Session) Reset() {
	if s.state == StateAwaitingDaemon || s.state == StateStartingSession ||
		s.state == StateCollectingResponse {
		_ = s.ch.Send(greetd.CancelSession())
	}
	s.ch.Reset()
	s.state = StateIdle
	s.username = ""
	s.prompt = Prompt{}
	s.pendingCancel = false
	s.fatalMessage = ""
}

func (s *Session) fatal(msg string) Event {
	s.fatalMessage = msg
	s.state = StateFatalFailure
	_ = s.ch.Close()
	return Event{State: s.state, Message: msg}
}

func (s *Session) fail(err error) error {
	s.fatal(err.Error())
	return err
}

// Zero overwrites a secret buffer. Best effort: copies made during transport
// encoding are out of reach, but the long-lived buffer never outlives its use.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
