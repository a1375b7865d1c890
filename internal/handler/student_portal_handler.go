package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// AttemptService is the attempt logic the student endpoints call.
type AttemptService interface {
	StartOrResume(ctx context.Context, quizID uuid.UUID, studentID int) (*model.AttemptSession, error)
	Autosave(ctx context.Context, attemptID uuid.UUID, studentID int, answers []model.Answer) error
	Submit(ctx context.Context, attemptID uuid.UUID, studentID int, req model.SubmitRequest) (*model.SubmissionResult, error)
}

// StudentPortalHandler handles student-facing attempt endpoints.
type StudentPortalHandler struct {
	attemptService AttemptService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(attemptService AttemptService) *StudentPortalHandler {
	return &StudentPortalHandler{attemptService: attemptService}
}

// StartAttempt godoc
// POST /api/v1/student/quizzes/:quiz_id/attempts
// Creates the student's attempt or resumes the running one (idempotent).
func (h *StudentPortalHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	session, err := h.attemptService.StartOrResume(c.Request.Context(), quizID, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}

	status := http.StatusCreated
	if session.IsResume {
		status = http.StatusOK
	}
	response.Success(c, status, session)
}

// AutosaveAttempt godoc
// PUT /api/v1/student/attempts/:attempt_id/answers
// Replaces the saved draft of a running attempt. A resume returns it.
func (h *StudentPortalHandler) AutosaveAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AutosaveRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if req.AttemptID != "" && req.AttemptID != attemptID.String() {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	if err := h.attemptService.Autosave(c.Request.Context(), attemptID, claims.UserID, req.Answers); err != nil {
		failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"saved": len(req.Answers)})
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Grades the attempt. A repeated submit answers 409 ALREADY_SUBMITTED.
func (h *StudentPortalHandler) SubmitAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if req.AttemptID != "" && req.AttemptID != attemptID.String() {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), attemptID, claims.UserID, req)
	if err != nil {
		failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// attemptError maps service errors onto the wire codes the engine classifies.
func attemptError(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, service.ErrAttemptExpired):
		return http.StatusGone, response.ErrAttemptExpired
	case errors.Is(err, service.ErrQuizNotFound), errors.Is(err, service.ErrQuizNotAvailable):
		return http.StatusNotFound, response.ErrQuizNotAvailable
	case errors.Is(err, service.ErrAttemptNotFound):
		return http.StatusNotFound, response.ErrAttemptNotFound
	case errors.Is(err, service.ErrUnknownQuestion):
		return http.StatusBadRequest, response.ErrUnknownQuestion
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

func failAttempt(c *gin.Context, err error) {
	status, code := attemptError(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("Attempt request failed")
	}
	response.Fail(c, status, code)
}
