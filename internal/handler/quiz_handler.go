package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/middleware"
	"github.com/toanlab/lms-backend/internal/model"
	"github.com/toanlab/lms-backend/internal/response"
	"github.com/toanlab/lms-backend/internal/service"
	"github.com/toanlab/lms-backend/internal/validator"
)

// QuizHandler drives the caller's quiz attempts.
type QuizHandler struct {
	quizService *service.QuizService
	log         zerolog.Logger
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(quizService *service.QuizService, log zerolog.Logger) *QuizHandler {
	return &QuizHandler{
		quizService: quizService,
		log:         log.With().Str("component", "quiz_handler").Logger(),
	}
}

// attemptRequest resolves the caller and the :id path parameter.
func attemptRequest(c *gin.Context) (model.SessionHandle, uuid.UUID, bool) {
	session, ok := middleware.GetSession(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return model.SessionHandle{}, uuid.Nil, false
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return model.SessionHandle{}, uuid.Nil, false
	}
	return session, id, true
}

// StartPractice godoc
// POST /api/v1/student/quizzes
// Starts an attempt over every bank question of (grade, topic, level).
func (h *QuizHandler) StartPractice(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	snap, err := h.quizService.StartPractice(c.Request.Context(), session, req)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attempt": snap})
}

// StartExam godoc
// POST /api/v1/student/exams/:exam_id/attempts
// Starts an attempt over a published variant in its stored order.
func (h *QuizHandler) StartExam(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	snap, err := h.quizService.StartExam(c.Request.Context(), session, examID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attempt": snap})
}

// GetAttempt godoc
// GET /api/v1/student/attempts/:id
// Returns the attempt snapshot.
func (h *QuizHandler) GetAttempt(c *gin.Context) {
	session, id, ok := attemptRequest(c)
	if !ok {
		return
	}

	snap, err := h.quizService.Snapshot(session, id)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": snap})
}

// SelectAnswer godoc
// PUT /api/v1/student/attempts/:id/answers/:index
// Stores the wire-encoded answer for one question. An empty value clears it.
func (h *QuizHandler) SelectAnswer(c *gin.Context) {
	session, id, ok := attemptRequest(c)
	if !ok {
		return
	}
	index, ok := parseIndexParam(c, "index")
	if !ok {
		return
	}

	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ans, err := h.quizService.SelectAnswer(c.Request.Context(), session, id, index, req.Value)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"index": index, "answer": ans})
}

// UpdatePart godoc
// PUT /api/v1/student/attempts/:id/answers/:index/parts/:part
// Sets one statement (A-D) of a true/false answer.
func (h *QuizHandler) UpdatePart(c *gin.Context) {
	session, id, ok := attemptRequest(c)
	if !ok {
		return
	}
	index, ok := parseIndexParam(c, "index")
	if !ok {
		return
	}

	var req model.UpdatePartRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ans, err := h.quizService.UpdatePart(c.Request.Context(), session, id, index, c.Param("part"), req.Mark)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"index": index, "answer": ans})
}

// Next godoc
// POST /api/v1/student/attempts/:id/next
// Moves to the next question, staying on the last one.
func (h *QuizHandler) Next(c *gin.Context) { h.move(c, 1) }

// Previous godoc
// POST /api/v1/student/attempts/:id/previous
// Moves to the previous question, staying on the first one.
func (h *QuizHandler) Previous(c *gin.Context) { h.move(c, -1) }

func (h *QuizHandler) move(c *gin.Context, delta int) {
	session, id, ok := attemptRequest(c)
	if !ok {
		return
	}

	index, err := h.quizService.Move(session, id, delta)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"current_index": index})
}

// Visibility godoc
// POST /api/v1/student/attempts/:id/visibility
// Reports a page visibility change. Hiding the page ends a student attempt.
func (h *QuizHandler) Visibility(c *gin.Context) {
	session, id, ok := attemptRequest(c)
	if !ok {
		return
	}

	var req model.VisibilityRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	snap, err := h.quizService.Visibility(c.Request.Context(), session, id, *req.Hidden)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": snap})
}

// Finish godoc
// POST /api/v1/student/attempts/:id/finish
// Submits the attempt. Repeated calls return the same result.
func (h *QuizHandler) Finish(c *gin.Context) {
	session, id, ok := attemptRequest(c)
	if !ok {
		return
	}

	result, err := h.quizService.Finish(c.Request.Context(), session, id)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}
