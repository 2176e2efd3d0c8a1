package deepgram

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error surfaced by this package matches exactly one of
// these with errors.Is.
var (
	// ErrPermissionDenied is returned when the permission gate refuses
	// microphone access.
	ErrPermissionDenied = errors.New("deepgram: microphone permission denied")

	// ErrCredentialMissing is returned when no API key is configured.
	ErrCredentialMissing = errors.New("deepgram: API key missing")

	// ErrConnection is returned when the remote refuses the connection or
	// the network is unavailable.
	ErrConnection = errors.New("deepgram: connection failed")

	// ErrProtocol marks malformed or unexpected server messages, and
	// explicit Error control messages.
	ErrProtocol = errors.New("deepgram: protocol error")

	// ErrTransportClosed is returned when the remote closes the session.
	ErrTransportClosed = errors.New("deepgram: transport closed")

	// ErrRequestAborted is returned by a one-shot request that was
	// superseded by a newer request of the same kind.
	ErrRequestAborted = errors.New("deepgram: request aborted")

	// ErrEncoding is returned for unsupported audio formats.
	ErrEncoding = errors.New("deepgram: unsupported audio encoding")

	// ErrInvalidInput is returned, before any I/O, for requests that
	// cannot be sent, such as synthesis of blank text.
	ErrInvalidInput = errors.New("deepgram: invalid input")
)

// Error represents an HTTP-level failure from the Deepgram API, either a
// REST response or a refused websocket handshake.
type Error struct {
	// HTTPStatus is the HTTP status code.
	HTTPStatus int `json:"-"`

	// ErrCode is the API error code (e.g. "INVALID_AUTH").
	ErrCode string `json:"err_code,omitempty"`

	// ErrMsg is the human-readable error message.
	ErrMsg string `json:"err_msg,omitempty"`

	// RequestID identifies the request for support.
	RequestID string `json:"request_id,omitempty"`

	// Body holds the raw response body when it is not a JSON error.
	Body string `json:"-"`

	handshake bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.ErrMsg
	if msg == "" {
		msg = e.Body
	}
	if e.ErrCode != "" {
		return fmt.Sprintf("deepgram: HTTP %d: %s: %s", e.HTTPStatus, e.ErrCode, msg)
	}
	return fmt.Sprintf("deepgram: HTTP %d: %s", e.HTTPStatus, msg)
}

// Unwrap maps handshake failures to ErrConnection.
func (e *Error) Unwrap() error {
	if e.handshake {
		return ErrConnection
	}
	return nil
}

// IsAuthError reports whether the API key was rejected.
func (e *Error) IsAuthError() bool {
	return e.HTTPStatus == http.StatusUnauthorized || e.HTTPStatus == http.StatusForbidden
}

// IsRateLimit reports whether the request was throttled.
func (e *Error) IsRateLimit() bool {
	return e.HTTPStatus == http.StatusTooManyRequests
}

// IsServerError reports whether the failure happened on the server side.
func (e *Error) IsServerError() bool {
	return e.HTTPStatus >= http.StatusInternalServerError
}

// Retryable reports whether the request can be retried.
func (e *Error) Retryable() bool {
	return e.IsRateLimit() || e.IsServerError()
}

// AsError extracts *Error from an error.
//
// Example:
//
//	if e, ok := deepgram.AsError(err); ok && e.IsAuthError() {
//	    // prompt for a new key
//	}
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ServerError is an Error control message sent by the remote side of a
// streaming session.
type ServerError struct {
	Description string `json:"description,omitempty"`
	Code        string `json:"code,omitempty"`
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	switch {
	case e.Description != "" && e.Code != "":
		return fmt.Sprintf("deepgram: %s: %s", e.Code, e.Description)
	case e.Description != "":
		return "deepgram: " + e.Description
	case e.Code != "":
		return "deepgram: " + e.Code
	}
	return "deepgram: server error"
}

// Unwrap returns ErrProtocol.
func (e *ServerError) Unwrap() error {
	return ErrProtocol
}
