package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

const maxReplyBytes = 4 << 20

// HTTPGateway talks to the REST API with a bearer header (in-app attempts).
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	creds   Credentials
	log     zerolog.Logger
}

// HTTPOption configures an HTTPGateway.
type HTTPOption func(*HTTPGateway)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(g *HTTPGateway) { g.client = c }
}

// WithHTTPLogger attaches a logger.
func WithHTTPLogger(log zerolog.Logger) HTTPOption {
	return func(g *HTTPGateway) { g.log = log.With().Str("component", "http_gateway").Logger() }
}

// NewHTTP creates a REST gateway rooted at baseURL.
func NewHTTP(baseURL string, creds Credentials, opts ...HTTPOption) *HTTPGateway {
	g := &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		creds:   creds,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var (
	_ Gateway   = (*HTTPGateway)(nil)
	_ Autosaver = (*HTTPGateway)(nil)
)

// StartOrResume calls POST /api/v1/student/quizzes/:quiz_id/attempts.
func (g *HTTPGateway) StartOrResume(ctx context.Context, quizID string) (*model.AttemptSession, error) {
	var out model.AttemptSession
	path := "/api/v1/student/quizzes/" + url.PathEscape(quizID) + "/attempts"
	if err := g.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, fmt.Errorf("start or resume %s: %w", quizID, err)
	}
	return &out, nil
}

// Submit calls POST /api/v1/student/attempts/:attempt_id/submit.
func (g *HTTPGateway) Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmissionResult, error) {
	var out model.SubmissionResult
	path := "/api/v1/student/attempts/" + url.PathEscape(req.AttemptID) + "/submit"
	if err := g.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, fmt.Errorf("submit %s: %w", req.AttemptID, err)
	}
	return &out, nil
}

// Autosave calls PUT /api/v1/student/attempts/:attempt_id/answers.
func (g *HTTPGateway) Autosave(ctx context.Context, req model.AutosaveRequest) error {
	path := "/api/v1/student/attempts/" + url.PathEscape(req.AttemptID) + "/answers"
	if err := g.do(ctx, http.MethodPut, path, req, nil); err != nil {
		return fmt.Errorf("autosave %s: %w", req.AttemptID, err)
	}
	return nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	token, err := g.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(response.HeaderRequestID, reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}

	g.log.Debug().
		Str("request_id", reqID).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Gateway call")

	var env response.Envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 400 {
		if decodeErr != nil {
			return classify(resp.StatusCode, nil)
		}
		return classify(resp.StatusCode, env.Error)
	}
	if decodeErr != nil {
		return fmt.Errorf("decode reply: %w", decodeErr)
	}
	if env.Error != nil {
		return classify(resp.StatusCode, env.Error)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
