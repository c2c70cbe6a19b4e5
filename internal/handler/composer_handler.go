package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/middleware"
	"github.com/toanlab/lms-backend/internal/model"
	"github.com/toanlab/lms-backend/internal/response"
	"github.com/toanlab/lms-backend/internal/service"
	"github.com/toanlab/lms-backend/internal/validator"
)

// ComposerHandler handles the teacher's exam composer.
type ComposerHandler struct {
	composerService *service.ComposerService
	log             zerolog.Logger
}

// NewComposerHandler creates a new ComposerHandler.
func NewComposerHandler(composerService *service.ComposerService, log zerolog.Logger) *ComposerHandler {
	return &ComposerHandler{
		composerService: composerService,
		log:             log.With().Str("component", "composer_handler").Logger(),
	}
}

// GetDraft godoc
// GET /api/v1/teacher/composer?grade=
// Returns the caller's pending exam structure for a grade.
func (h *ComposerHandler) GetDraft(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	grade, ok := parseGrade(c)
	if !ok {
		return
	}

	draft, err := h.composerService.Draft(c.Request.Context(), claims.UserID, grade)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	if draft.Requirements == nil {
		draft.Requirements = []model.Requirement{}
	}

	response.Success(c, http.StatusOK, gin.H{"draft": draft})
}

// ResetDraft godoc
// DELETE /api/v1/teacher/composer?grade=
// Clears the caller's structure for a grade.
func (h *ComposerHandler) ResetDraft(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	grade, ok := parseGrade(c)
	if !ok {
		return
	}

	h.composerService.Reset(claims.UserID, grade)
	response.Success(c, http.StatusOK, gin.H{"total": 0})
}

// AddRequirement godoc
// POST /api/v1/teacher/composer/requirements
// Appends a (topic, level, count) requirement checked against the bank.
func (h *ComposerHandler) AddRequirement(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.AddRequirementRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	requirement, total, err := h.composerService.AddRequirement(c.Request.Context(), claims.UserID, req)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"requirement": requirement, "total": total})
}

// RemoveRequirement godoc
// DELETE /api/v1/teacher/composer/requirements/:id?grade=
// Drops one requirement from the caller's structure.
func (h *ComposerHandler) RemoveRequirement(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	grade, ok := parseGrade(c)
	if !ok {
		return
	}

	total, err := h.composerService.RemoveRequirement(claims.UserID, grade, id)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"total": total})
}

// Generate godoc
// POST /api/v1/teacher/composer/generate
// Draws batch or personalized variants and optionally publishes them.
func (h *ComposerHandler) Generate(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.GenerateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	variants, err := h.composerService.Generate(c.Request.Context(), claims.UserID, req)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	shortfalls := 0
	for _, v := range variants {
		shortfalls += len(v.Shortfalls)
	}

	response.Success(c, http.StatusOK, gin.H{"variants": variants, "shortfalls": shortfalls})
}
