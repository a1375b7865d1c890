package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// StreamPath is the server's WebSocket endpoint.
const StreamPath = "/ws/v1/student/stream"

// WSGateway keeps one WebSocket to the server and issues start/submit
// requests over it (link-based kiosk attempts). The token travels in the
// query string because browsers cannot set headers on upgrade requests.
type WSGateway struct {
	baseURL string
	creds   Credentials
	dialer  *websocket.Dialer
	timeout time.Duration
	log     zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// WSOption configures a WSGateway.
type WSOption func(*WSGateway)

// WithWSLogger attaches a logger.
func WithWSLogger(log zerolog.Logger) WSOption {
	return func(g *WSGateway) { g.log = log.With().Str("component", "ws_gateway").Logger() }
}

// WithWSTimeout bounds each request/reply round trip.
func WithWSTimeout(d time.Duration) WSOption {
	return func(g *WSGateway) { g.timeout = d }
}

// NewWS creates a WebSocket gateway. baseURL may use http(s) or ws(s).
func NewWS(baseURL string, creds Credentials, opts ...WSOption) *WSGateway {
	g := &WSGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		timeout: 15 * time.Second,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var (
	_ Gateway   = (*WSGateway)(nil)
	_ Autosaver = (*WSGateway)(nil)
)

func (g *WSGateway) StartOrResume(ctx context.Context, quizID string) (*model.AttemptSession, error) {
	var out model.AttemptSession
	req := ws.Request{Action: ws.ActionStart, QuizID: quizID}
	if err := g.call(ctx, req, ws.EventState, &out); err != nil {
		return nil, fmt.Errorf("start or resume %s: %w", quizID, err)
	}
	return &out, nil
}

func (g *WSGateway) Submit(ctx context.Context, sub model.SubmitRequest) (*model.SubmissionResult, error) {
	var out model.SubmissionResult
	req := ws.Request{Action: ws.ActionSubmit, Submission: &sub}
	if err := g.call(ctx, req, ws.EventGraded, &out); err != nil {
		return nil, fmt.Errorf("submit %s: %w", sub.AttemptID, err)
	}
	return &out, nil
}

func (g *WSGateway) Autosave(ctx context.Context, save model.AutosaveRequest) error {
	req := ws.Request{Action: ws.ActionAutosave, Autosave: &save}
	if err := g.call(ctx, req, ws.EventSaved, nil); err != nil {
		return fmt.Errorf("autosave %s: %w", save.AttemptID, err)
	}
	return nil
}

// Close drops the connection.
func (g *WSGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dropLocked()
}

func (g *WSGateway) call(ctx context.Context, req ws.Request, want ws.Event, out interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	conn, err := g.connectLocked(ctx)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(g.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	// Unblock the read if ctx is cancelled mid-call.
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	req.RequestID = uuid.NewString()
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(req); err != nil {
		g.dropLocked()
		return fmt.Errorf("transport: %w", err)
	}

	for {
		conn.SetReadDeadline(deadline)
		var reply ws.Reply
		if err := conn.ReadJSON(&reply); err != nil {
			g.dropLocked()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("transport: %w", err)
		}
		if reply.RequestID != req.RequestID {
			g.log.Debug().Str("event", string(reply.Event)).Msg("Skipping unrelated reply")
			continue
		}
		switch reply.Event {
		case ws.EventError:
			return classify(http.StatusBadRequest, reply.Error)
		case want:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(reply.Data, out); err != nil {
				return fmt.Errorf("decode data: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("unexpected event %q", reply.Event)
		}
	}
}

func (g *WSGateway) connectLocked(ctx context.Context) (*websocket.Conn, error) {
	if g.conn != nil {
		return g.conn, nil
	}

	endpoint, err := g.streamURL(ctx)
	if err != nil {
		return nil, err
	}
	conn, resp, err := g.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, classify(resp.StatusCode, nil)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	g.log.Debug().Msg("Stream connected")
	g.conn = conn
	return conn, nil
}

func (g *WSGateway) dropLocked() error {
	if g.conn == nil {
		return nil
	}
	err := g.conn.Close()
	g.conn = nil
	return err
}

func (g *WSGateway) streamURL(ctx context.Context) (string, error) {
	u, err := url.Parse(g.baseURL + StreamPath)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	token, err := g.creds.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("credentials: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
