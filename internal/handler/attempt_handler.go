package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizguard/internal/model"
	"github.com/stemsi/quizguard/internal/response"
	"github.com/stemsi/quizguard/internal/service"
	"github.com/stemsi/quizguard/internal/validator"
)

// AttemptService is the attempt lifecycle the handler exposes.
type AttemptService interface {
	Load(ctx context.Context, token string) (*model.AttemptView, error)
	Start(ctx context.Context, req *model.StartAttemptRequest) (*model.StartAttemptResponse, error)
	Flag(ctx context.Context, req *model.FlagRequest) error
	Submit(ctx context.Context, req *model.SubmitRequest) (*model.SubmitResult, error)
}

// AttemptHandler serves the test-taker attempt API.
type AttemptHandler struct {
	attempts AttemptService
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// GetAttempt godoc
// GET /api/v1/attempt/:token
// Returns the quiz, identity and resume state for an invitation.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	view, err := h.attempts.Load(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// StartAttempt godoc
// POST /api/v1/attempt/start
// Opens the attempt after identity confirmation (idempotent).
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attempts.Start(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

// FlagAttempt godoc
// POST /api/v1/attempt/flag
// Records an integrity flag.
func (h *AttemptHandler) FlagAttempt(c *gin.Context) {
	var req model.FlagRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attempts.Flag(c.Request.Context(), &req); err != nil {
		h.fail(c, err)
		return
	}
	response.Empty(c, http.StatusOK)
}

// SubmitAttempt godoc
// POST /api/v1/attempt/submit
// Grades and finalizes the attempt. A repeated submit returns the stored result.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attempts.Submit(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// fail maps service errors to API error codes.
func (h *AttemptHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvitationNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrInvalidInvitation)
	case errors.Is(err, service.ErrInvalidAttemptToken):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidAttemptToken)
	case errors.Is(err, service.ErrAttemptNotStarted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotStarted)
	case errors.Is(err, service.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	case errors.Is(err, service.ErrSubmitInProgress):
		response.Fail(c, http.StatusConflict, response.ErrSubmitInProgress)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
	case errors.Is(err, service.ErrAnswerOutOfRange):
		response.Fail(c, http.StatusBadRequest, response.ErrValidation)
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Attempt request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
