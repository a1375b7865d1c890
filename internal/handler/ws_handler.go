package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// wsCallTimeout bounds one start or submit request on the stream.
const wsCallTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the student attempt stream used by kiosk clients.
type WSHandler struct {
	attemptService AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/stream
// Carries the attempt actions; each reply echoes the request_id.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.UserID
	wsLog := h.log.With().Int("student_id", studentID).Logger()
	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var werr error
		switch msg.Action {
		case ws.ActionStart:
			werr = h.handleStart(conn, studentID, &msg)
		case ws.ActionAutosave:
			werr = h.handleAutosave(conn, studentID, &msg)
		case ws.ActionSubmit:
			werr = h.handleSubmit(conn, studentID, &msg)
		case ws.ActionPing:
			werr = ws.WriteData(conn, ws.EventPong, msg.RequestID, gin.H{"ts": time.Now().Unix()})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			werr = ws.WriteError(conn, msg.RequestID, response.ErrInvalidPayload)
		}
		if werr != nil {
			wsLog.Debug().Err(werr).Msg("Write failed, dropping connection")
			return
		}
	}
}

func (h *WSHandler) handleStart(conn *websocket.Conn, studentID int, msg *ws.Request) error {
	quizID, err := uuid.Parse(msg.QuizID)
	if err != nil {
		return ws.WriteError(conn, msg.RequestID, response.ErrInvalidID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsCallTimeout)
	defer cancel()

	session, err := h.attemptService.StartOrResume(ctx, quizID, studentID)
	if err != nil {
		return h.writeAttemptError(conn, msg.RequestID, err)
	}
	return ws.WriteData(conn, ws.EventState, msg.RequestID, session)
}

func (h *WSHandler) handleAutosave(conn *websocket.Conn, studentID int, msg *ws.Request) error {
	if msg.Autosave == nil {
		return ws.WriteError(conn, msg.RequestID, response.ErrInvalidPayload)
	}
	attemptID, err := uuid.Parse(msg.Autosave.AttemptID)
	if err != nil {
		return ws.WriteError(conn, msg.RequestID, response.ErrInvalidID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsCallTimeout)
	defer cancel()

	if err := h.attemptService.Autosave(ctx, attemptID, studentID, msg.Autosave.Answers); err != nil {
		return h.writeAttemptError(conn, msg.RequestID, err)
	}
	return ws.WriteData(conn, ws.EventSaved, msg.RequestID, gin.H{"saved": len(msg.Autosave.Answers)})
}

func (h *WSHandler) handleSubmit(conn *websocket.Conn, studentID int, msg *ws.Request) error {
	if msg.Submission == nil {
		return ws.WriteError(conn, msg.RequestID, response.ErrInvalidPayload)
	}
	attemptID, err := uuid.Parse(msg.Submission.AttemptID)
	if err != nil {
		return ws.WriteError(conn, msg.RequestID, response.ErrInvalidID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsCallTimeout)
	defer cancel()

	result, err := h.attemptService.Submit(ctx, attemptID, studentID, *msg.Submission)
	if err != nil {
		return h.writeAttemptError(conn, msg.RequestID, err)
	}
	return ws.WriteData(conn, ws.EventGraded, msg.RequestID, result)
}

func (h *WSHandler) writeAttemptError(conn *websocket.Conn, requestID string, err error) error {
	status, code := attemptError(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("request_id", requestID).Msg("Stream request failed")
	}
	return ws.WriteError(conn, requestID, code)
}
