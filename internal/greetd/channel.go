package greetd

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// OutcomeKind is the closed set of translated daemon replies.
type OutcomeKind int

const (
	// OutcomePrompt asks for a response from the user.
	OutcomePrompt OutcomeKind = iota
	// OutcomeInfo carries a message that needs no user input.
	OutcomeInfo
	// OutcomeErr is a failed exchange; Fatal distinguishes a dropped
	// connection or protocol fault from a bad credential.
	OutcomeErr
	// OutcomeSuccess completes the current exchange positively.
	OutcomeSuccess
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePrompt:
		return "prompt"
	case OutcomeInfo:
		return "info"
	case OutcomeErr:
		return "error"
	case OutcomeSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Outcome is one completed exchange, translated from the wire response.
type Outcome struct {
	Kind    OutcomeKind
	Prompt  string
	Secret  bool
	Message string
	Fatal   bool
}

var (
	// ErrBusy means a second request was issued while one is outstanding.
	// Correct callers never trigger it; it guards the one-in-flight protocol
	// discipline.
	ErrBusy = errors.New("greetd: exchange already outstanding")
	// ErrClosed means the channel has been shut down.
	ErrClosed = errors.New("greetd: channel closed")
)

const exchangeTimeout = 30 * time.Second

// Channel owns the single connection to the daemon and enforces the
// one-request-in-flight discipline. The connection is dialed lazily on the
// first Send.
type Channel struct {
	dial func() (net.Conn, error)

	mu      sync.Mutex
	conn    net.Conn
	pending bool
	closed  bool

	results chan Outcome
}

// NewChannel returns a channel that will connect to the daemon socket.
func NewChannel() *Channel {
	return &Channel{
		dial: func() (net.Conn, error) {
			return net.DialTimeout("unix", SocketPath(), 5*time.Second)
		},
		results: make(chan Outcome, 1),
	}
}

// NewChannelWithDialer is the test seam: the dialer supplies the connection.
func NewChannelWithDialer(dial func() (net.Conn, error)) *Channel {
	return &Channel{dial: dial, results: make(chan Outcome, 1)}
}

// Send issues one request. The reply is delivered as an Outcome via Poll or
// Results. Returns ErrBusy while a previous exchange is outstanding.
func (c *Channel) Send(req Request) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.pending {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.conn == nil {
		conn, err := c.dial()
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("greetd: connect: %w", err)
		}
		c.conn = conn
	}
	conn := c.conn
	results := c.results
	_ = conn.SetDeadline(time.Now().Add(exchangeTimeout))
	if err := WriteRequest(conn, req); err != nil {
		c.mu.Unlock()
		return err
	}
	c.pending = true
	c.mu.Unlock()

	go c.await(conn, results)
	return nil
}

func (c *Channel) await(conn net.Conn, results chan<- Outcome) {
	resp, err := ReadResponse(conn)

	c.mu.Lock()
	c.pending = false
	c.mu.Unlock()

	if err != nil {
		results <- Outcome{
			Kind:    OutcomeErr,
			Fatal:   true,
			Message: fmt.Sprintf("connection to daemon lost: %v", err),
		}
		return
	}
	results <- translate(resp)
}

func translate(resp Response) Outcome {
	switch resp.Type {
	case respSuccess:
		return Outcome{Kind: OutcomeSuccess}
	case respError:
		return Outcome{
			Kind:    OutcomeErr,
			Message: resp.Description,
			Fatal:   resp.ErrorType != errTypeAuth,
		}
	case respAuthMessage:
		switch resp.AuthMessageType {
		case AuthVisible, AuthSecret:
			return Outcome{
				Kind:   OutcomePrompt,
				Prompt: resp.AuthMessage,
				Secret: resp.AuthMessageType == AuthSecret,
			}
		case AuthInfo:
			return Outcome{Kind: OutcomeInfo, Message: resp.AuthMessage}
		case AuthError:
			return Outcome{Kind: OutcomeInfo, Message: resp.AuthMessage}
		default:
			return Outcome{
				Kind:    OutcomeErr,
				Fatal:   true,
				Message: fmt.Sprintf("unknown auth message type %q", resp.AuthMessageType),
			}
		}
	default:
		return Outcome{
			Kind:    OutcomeErr,
			Fatal:   true,
			Message: fmt.Sprintf("unknown response type %q", resp.Type),
		}
	}
}

// Poll returns the latest completed exchange, or false while one is still
// outstanding (or none was issued).
func (c *Channel) Poll() (Outcome, bool) {
	c.mu.Lock()
	results := c.results
	c.mu.Unlock()
	select {
	case out := <-results:
		return out, true
	default:
		return Outcome{}, false
	}
}

// Results exposes the completion channel so the event loop can await the
// outstanding exchange without polling.
func (c *Channel) Results() <-chan Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results
}

// Pending reports whether an exchange is outstanding.
func (c *Channel) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Close drops the daemon connection. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Reset drops the connection but leaves the channel usable; the next Send
// dials again. Used when the machine returns to idle. The completion channel
// is replaced so an aborted exchange's reader cannot deliver a stale outcome
// into the new attempt.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.pending = false
	c.closed = false
	c.results = make(chan Outcome, 1)
}
