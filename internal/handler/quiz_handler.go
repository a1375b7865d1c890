package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// QuizHandler handles proctor quiz management endpoints.
type QuizHandler struct {
	quizService    *service.QuizService
	attemptService *service.AttemptService
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(quizService *service.QuizService, attemptService *service.AttemptService) *QuizHandler {
	return &QuizHandler{
		quizService:    quizService,
		attemptService: attemptService,
	}
}

// CreateQuiz godoc
// POST /api/v1/proctor/quizzes
// Creates a quiz with its questions; publish=true opens it to students.
func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	var req model.CreateQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	quiz, err := h.quizService.Create(c.Request.Context(), req)
	if err != nil {
		if isAuthoringError(err) {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"questions": err.Error()})
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"quiz": quiz})
}

// GetQuiz godoc
// GET /api/v1/proctor/quizzes/:id
// Returns the quiz with its questions and answer key.
func (h *QuizHandler) GetQuiz(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID)
	if err != nil {
		if errors.Is(err, service.ErrQuizNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	questions, err := h.quizService.Questions(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	type questionWithKey struct {
		model.Question
		CorrectAnswer string `json:"correct_answer"`
	}
	out := make([]questionWithKey, len(questions))
	for i, q := range questions {
		out[i] = questionWithKey{Question: q.Question, CorrectAnswer: q.CorrectAnswer}
	}

	response.Success(c, http.StatusOK, gin.H{"quiz": quiz, "questions": out})
}

// GetQuizResults godoc
// GET /api/v1/proctor/quizzes/:id/results
// Lists every attempt with score, status and blocking reason.
func (h *QuizHandler) GetQuizResults(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	results, err := h.attemptService.ListResults(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if results == nil {
		results = []model.AttemptRecord{}
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}

func isAuthoringError(err error) bool {
	return errors.Is(err, service.ErrMissingOptions) ||
		errors.Is(err, service.ErrDuplicateOption) ||
		errors.Is(err, service.ErrCorrectNotAnOption) ||
		errors.Is(err, service.ErrUnexpectedOptions)
}
