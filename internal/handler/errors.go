package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/toanlab/lms-backend/internal/attempt"
	"github.com/toanlab/lms-backend/internal/composer"
	"github.com/toanlab/lms-backend/internal/model"
	"github.com/toanlab/lms-backend/internal/response"
	"github.com/toanlab/lms-backend/internal/service"
)

// capacityDetail is the machine-readable part of a rejected requirement.
type capacityDetail struct {
	Topic     string      `json:"topic,omitempty"`
	Level     model.Level `json:"level,omitempty"`
	Requested int         `json:"requested"`
	Available int         `json:"available"`
}

// errorStatus maps a domain error to an HTTP status and error code.
// ok is false for errors that have no client-facing meaning.
func errorStatus(err error) (status int, code response.ErrCode, ok bool) {
	switch {
	case errors.Is(err, service.ErrAttemptNotFound),
		errors.Is(err, service.ErrExamNotFound),
		errors.Is(err, service.ErrQuestionNotFound):
		return http.StatusNotFound, response.ErrNotFound, true
	case errors.Is(err, service.ErrNotAttemptOwner):
		return http.StatusForbidden, response.ErrNotAttemptOwner, true
	case errors.Is(err, service.ErrQuestionsMissing):
		return http.StatusConflict, response.ErrPoolShrinkage, true
	case errors.Is(err, service.ErrLevelLocked):
		return http.StatusForbidden, response.ErrLevelLocked, true

	case errors.Is(err, attempt.ErrNoQuestions):
		return http.StatusUnprocessableEntity, response.ErrNoQuestions, true
	case errors.Is(err, attempt.ErrCompleted):
		return http.StatusConflict, response.ErrAttemptCompleted, true
	case errors.Is(err, attempt.ErrNotInProgress), errors.Is(err, attempt.ErrAlreadyStarted):
		return http.StatusConflict, response.ErrAttemptNotRunning, true
	case errors.Is(err, attempt.ErrIndexOutOfRange):
		return http.StatusBadRequest, response.ErrIndexOutOfRange, true
	case errors.Is(err, attempt.ErrNotTrueFalse):
		return http.StatusBadRequest, response.ErrWrongQuestionType, true

	case errors.Is(err, model.ErrInvalidAnswer),
		errors.Is(err, model.ErrInvalidPart),
		errors.Is(err, model.ErrInvalidMark):
		return http.StatusBadRequest, response.ErrInvalidAnswer, true

	case errors.Is(err, composer.ErrEmptyStructure):
		return http.StatusUnprocessableEntity, response.ErrEmptyStructure, true
	case errors.Is(err, composer.ErrRequirementNotFound):
		return http.StatusNotFound, response.ErrRequirementNotFound, true
	case errors.Is(err, composer.ErrInvalidVariantCount):
		return http.StatusBadRequest, response.ErrInvalidCount, true
	case errors.Is(err, composer.ErrNoRecipients):
		return http.StatusBadRequest, response.ErrNoRecipients, true
	case errors.Is(err, composer.ErrPoolShrinkage):
		return http.StatusConflict, response.ErrPoolShrinkage, true
	}
	return http.StatusInternalServerError, response.ErrInternal, false
}

// failWithError writes the error response for err. Unknown errors are
// logged and reported as internal.
func failWithError(c *gin.Context, log zerolog.Logger, err error) {
	var capErr *composer.CapacityError
	if errors.As(err, &capErr) {
		detail := capacityDetail{Topic: capErr.Topic, Level: capErr.Level, Requested: capErr.Requested, Available: capErr.Available}
		switch capErr.Reason {
		case composer.CapacityInvalidCount:
			response.FailWithDetail(c, http.StatusBadRequest, response.ErrInvalidCount, detail)
		case composer.CapacityMissingTopic:
			response.FailWithDetail(c, http.StatusBadRequest, response.ErrTopicRequired, detail)
		case composer.CapacityInvalidLevel:
			response.FailWithDetail(c, http.StatusBadRequest, response.ErrInvalidLevel, detail)
		default:
			response.FailWithDetail(c, http.StatusUnprocessableEntity, response.ErrInsufficientQuestions, detail)
		}
		return
	}

	var shrink *composer.ShrinkageError
	if errors.As(err, &shrink) {
		response.FailWithDetail(c, http.StatusConflict, response.ErrPoolShrinkage,
			gin.H{"label": shrink.Label, "shortfalls": shrink.Shortfalls})
		return
	}

	status, code, ok := errorStatus(err)
	if !ok {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

func parseIndexParam(c *gin.Context, name string) (int, bool) {
	idx, err := strconv.Atoi(c.Param(name))
	if err != nil || idx < 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrIndexOutOfRange)
		return 0, false
	}
	return idx, true
}

// parseGrade reads the required ?grade= query parameter.
func parseGrade(c *gin.Context) (int, bool) {
	grade, err := strconv.Atoi(c.Query("grade"))
	if err != nil || grade < 1 || grade > 12 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"grade": "grade must be between 1 and 12"})
		return 0, false
	}
	return grade, true
}
