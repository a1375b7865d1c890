// Package gateway is the engine's boundary to the quiz server: start or
// resume an attempt and submit it for grading.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// Authoritative rejections. They end the local session and are never retried.
var (
	ErrAlreadySubmitted = errors.New("gateway: attempt already submitted")
	ErrUnauthorized     = errors.New("gateway: unauthorized")
	ErrAttemptExpired   = errors.New("gateway: attempt expired server-side")
	ErrRejected         = errors.New("gateway: request rejected")
)

// Gateway is implemented once per transport and injected into the session controller.
type Gateway interface {
	StartOrResume(ctx context.Context, quizID string) (*model.AttemptSession, error)
	// Submit must be safe to retry; the server deduplicates on AttemptID.
	Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmissionResult, error)
}

// Autosaver is implemented by gateways that can mirror the draft to the
// server while the attempt runs. The server returns it on resume.
type Autosaver interface {
	Autosave(ctx context.Context, req model.AutosaveRequest) error
}

// IsFatal reports whether err is an authoritative rejection.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAlreadySubmitted) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrAttemptExpired) ||
		errors.Is(err, ErrRejected)
}

// Credentials supplies the opaque bearer credential attached to every call.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer credential.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// TokenFunc adapts a function to Credentials.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// ServerError is an error reply decoded from the server.
type ServerError struct {
	Status  int
	Code    response.ErrCode
	Message string
	kind    error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *ServerError) Unwrap() error { return e.kind }

// classify maps an error reply to a sentinel. Internal errors, 5xx and 429
// replies stay transient (no sentinel).
func classify(status int, body *response.ErrorBody) error {
	se := &ServerError{Status: status}
	if body != nil {
		se.Code = body.Code
		se.Message = body.Message
	}

	switch {
	case se.Code == response.ErrAlreadySubmitted:
		se.kind = ErrAlreadySubmitted
	case se.Code == response.ErrAttemptExpired:
		se.kind = ErrAttemptExpired
	case response.IsAuthError(se.Code) || status == http.StatusUnauthorized:
		se.kind = ErrUnauthorized
	case se.Code == response.ErrInternal, se.Code == response.ErrRateLimitExceeded:
	case status == http.StatusTooManyRequests || status >= 500 || status == 0:
	default:
		se.kind = ErrRejected
	}
	return se
}
