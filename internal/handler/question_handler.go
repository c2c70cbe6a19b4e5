package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/model"
	"github.com/toanlab/lms-backend/internal/response"
	"github.com/toanlab/lms-backend/internal/service"
	"github.com/toanlab/lms-backend/internal/validator"
)

// QuestionHandler handles question bank endpoints.
type QuestionHandler struct {
	questionService *service.QuestionService
	log             zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
		log:             log.With().Str("component", "question_handler").Logger(),
	}
}

// ListQuestions godoc
// GET /api/v1/teacher/questions?grade=
// Lists every bank question of a grade, answer keys included.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	grade, ok := parseGrade(c)
	if !ok {
		return
	}

	questions, err := h.questionService.List(c.Request.Context(), grade)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	if questions == nil {
		questions = []model.Question{}
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// ListTopics godoc
// GET /api/v1/student/topics?grade=
// Lists the topics available in the bank for a grade.
func (h *QuestionHandler) ListTopics(c *gin.Context) {
	grade, ok := parseGrade(c)
	if !ok {
		return
	}

	topics, err := h.questionService.Topics(c.Request.Context(), grade)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	if topics == nil {
		topics = []string{}
	}

	response.Success(c, http.StatusOK, gin.H{"grade": grade, "topics": topics, "levels": model.Levels})
}

// CreateQuestion godoc
// POST /api/v1/teacher/questions
// Adds a question to the bank. A missing id is generated.
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	var req model.SaveQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	h.save(c, "", req, http.StatusCreated)
}

// UpdateQuestion godoc
// PUT /api/v1/teacher/questions/:id
// Replaces a bank question.
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	id := c.Param("id")

	if _, err := h.questionService.Get(c.Request.Context(), id); err != nil {
		failWithError(c, h.log, err)
		return
	}

	var req model.SaveQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	h.save(c, id, req, http.StatusOK)
}

func (h *QuestionHandler) save(c *gin.Context, id string, req model.SaveQuestionRequest, status int) {
	q, err := h.questionService.Save(c.Request.Context(), id, req)
	if errors.Is(err, model.ErrInvalidAnswer) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidKey,
			map[string]string{"answer_key": err.Error()})
		return
	}
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, status, gin.H{"question": q})
}

// DeleteQuestion godoc
// DELETE /api/v1/teacher/questions/:id
// Removes a question from the bank.
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	if err := h.questionService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "question deleted"})
}
