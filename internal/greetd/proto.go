// Package greetd speaks the greetd IPC protocol: discrete JSON messages with a
// "type" discriminator, framed by a 32-bit little-endian payload length, over
// the daemon's unix socket.
package greetd

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// DefaultSocketPath is used when GREETD_SOCK is unset.
const DefaultSocketPath = "/run/greetd.sock"

// SocketPath resolves the daemon socket, honoring the GREETD_SOCK override.
func SocketPath() string {
	if p := os.Getenv("GREETD_SOCK"); p != "" {
		return p
	}
	return DefaultSocketPath
}

// Request kinds accepted by the daemon.
const (
	reqCreateSession   = "create_session"
	reqPostAuthMessage = "post_auth_message_response"
	reqStartSession    = "start_session"
	reqCancelSession   = "cancel_session"
)

// Request is one message to the daemon. Exactly one constructor below is used
// per exchange; the zero value is not a valid request.
type Request struct {
	Type     string   `json:"type"`
	Username string   `json:"username,omitempty"`
	Response *string  `json:"response,omitempty"`
	Cmd      []string `json:"cmd,omitempty"`
	Env      []string `json:"env,omitempty"`
}

func CreateSession(username string) Request {
	return Request{Type: reqCreateSession, Username: username}
}

// PostAuthMessageResponse answers the outstanding auth message. A nil response
// acknowledges an informational message.
func PostAuthMessageResponse(response *string) Request {
	return Request{Type: reqPostAuthMessage, Response: response}
}

func StartSession(cmd []string, env []string) Request {
	return Request{Type: reqStartSession, Cmd: cmd, Env: env}
}

func CancelSession() Request {
	return Request{Type: reqCancelSession}
}

// AuthMessageType classifies an auth_message response.
type AuthMessageType string

const (
	AuthVisible AuthMessageType = "visible"
	AuthSecret  AuthMessageType = "secret"
	AuthInfo    AuthMessageType = "info"
	AuthError   AuthMessageType = "error"
)

// Response is one message from the daemon.
type Response struct {
	Type            string          `json:"type"`
	ErrorType       string          `json:"error_type,omitempty"`
	Description     string          `json:"description,omitempty"`
	AuthMessageType AuthMessageType `json:"auth_message_type,omitempty"`
	AuthMessage     string          `json:"auth_message,omitempty"`
}

const (
	respSuccess     = "success"
	respError       = "error"
	respAuthMessage = "auth_message"

	// error_type values: auth_error is a recoverable credential failure,
	// anything else is fatal.
	errTypeAuth = "auth_error"
)

// WriteRequest frames and writes one request.
func WriteRequest(w io.Writer, req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("greetd: encode request: %w", err)
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("greetd: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("greetd: write frame payload: %w", err)
	}
	return nil
}

// WriteResponse frames and writes one response.
func WriteResponse(w io.Writer, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("greetd: encode response: %w", err)
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("greetd: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("greetd: write frame payload: %w", err)
	}
	return nil
}

// ReadRequest reads and decodes one framed request.
func ReadRequest(r io.Reader) (Request, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Request{}, fmt.Errorf("greetd: read frame header: %w", err)
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return Request{}, fmt.Errorf("greetd: frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Request{}, fmt.Errorf("greetd: read frame payload: %w", err)
	}
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("greetd: decode request: %w", err)
	}
	return req, nil
}

// maxFrameSize bounds a single frame; anything larger is corrupt.
const maxFrameSize = 1 << 20

// ReadResponse reads and decodes one framed response.
func ReadResponse(r io.Reader) (Response, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Response{}, fmt.Errorf("greetd: read frame header: %w", err)
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return Response{}, fmt.Errorf("greetd: frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Response{}, fmt.Errorf("greetd: read frame payload: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Response{}, fmt.Errorf("greetd: decode response: %w", err)
	}
	return resp, nil
}
