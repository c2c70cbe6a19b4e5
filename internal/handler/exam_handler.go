package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/response"
	"github.com/toanlab/lms-backend/internal/service"
)

// ExamHandler serves published exam variants.
type ExamHandler struct {
	composerService *service.ComposerService
	log             zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(composerService *service.ComposerService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		composerService: composerService,
		log:             log.With().Str("component", "exam_handler").Logger(),
	}
}

// GetExam godoc
// GET /api/v1/exams/:exam_id
// Returns a published variant in stored order without answer keys.
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	view, err := h.composerService.ExamView(c.Request.Context(), examID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": view})
}
