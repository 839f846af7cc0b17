package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prepware/examhall-backend/internal/middleware"
	"github.com/prepware/examhall-backend/internal/model"
	"github.com/prepware/examhall-backend/internal/repository"
	"github.com/prepware/examhall-backend/internal/response"
	"github.com/prepware/examhall-backend/internal/service"
	"github.com/prepware/examhall-backend/internal/store"
	"github.com/prepware/examhall-backend/internal/validator"
)

// LifecycleHandler exposes the admin exam session endpoints.
type LifecycleHandler struct {
	lifecycle *service.LifecycleService
	directory *store.Directory
}

// NewLifecycleHandler creates a new LifecycleHandler.
func NewLifecycleHandler(lifecycle *service.LifecycleService, directory *store.Directory) *LifecycleHandler {
	return &LifecycleHandler{lifecycle: lifecycle, directory: directory}
}

// GenerateCode godoc
// POST /api/v1/admin/sessions/generate-code
// Returns the next free exam code for the requested prefix and date.
func (h *LifecycleHandler) GenerateCode(c *gin.Context) {
	var req model.GenerateCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	code, err := h.lifecycle.GenerateCode(c.Request.Context(), &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam_code": code})
}

// CreateSession godoc
// POST /api/v1/admin/sessions
// Schedules a new exam session under a previously generated code.
func (h *LifecycleHandler) CreateSession(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.CreateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	claims := middleware.GetClaims(c)
	createdBy := ""
	if claims != nil {
		createdBy = claims.Name
	}

	session, err := h.lifecycle.CreateSession(c.Request.Context(), code, createdBy, &req)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateExamCode):
			response.Fail(c, http.StatusConflict, response.ErrDuplicateExamCode)
		case errors.Is(err, model.ErrInvalidTopology):
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidTopology)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": session})
}

// ListSessions godoc
// GET /api/v1/admin/sessions
// Lists sessions, optionally filtered by ?status=.
func (h *LifecycleHandler) ListSessions(c *gin.Context) {
	page, perPage := parsePagination(c)

	var status *model.SessionStatus
	if raw := c.Query("status"); raw != "" {
		st := model.SessionStatus(raw)
		status = &st
	}

	sessions, total, err := h.lifecycle.ListSessions(c.Request.Context(), status, perPage, (page-1)*perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"sessions": sessions},
		response.NewPagination(page, perPage, total))
}

// GetSession godoc
// GET /api/v1/admin/sessions/:code
func (h *LifecycleHandler) GetSession(c *gin.Context) {
	session, err := h.lifecycle.GetSession(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// DeleteSession godoc
// DELETE /api/v1/admin/sessions/:code
// Removes a scheduled session. Active or completed sessions cannot be deleted.
func (h *LifecycleHandler) DeleteSession(c *gin.Context) {
	if err := h.lifecycle.DeleteSession(c.Request.Context(), c.Param("code")); err != nil {
		if errors.Is(err, service.ErrNotScheduled) {
			response.Fail(c, http.StatusConflict, response.ErrActionForbidden)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// StartExam godoc
// POST /api/v1/admin/sessions/:code/start
// Starts the exam immediately, or arms its countdown when one is configured.
func (h *LifecycleHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	startedBy := ""
	if claims != nil {
		startedBy = claims.Name
	}

	status, err := h.lifecycle.StartExam(c.Request.Context(), c.Param("code"), startedBy)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrAnotherExamActive):
			response.Fail(c, http.StatusConflict, response.ErrAnotherExamActive)
		case errors.Is(err, service.ErrNotScheduled):
			response.Fail(c, http.StatusConflict, response.ErrActionForbidden)
		case errors.Is(err, model.ErrInvalidTopology):
			response.Fail(c, http.StatusConflict, response.ErrInvalidTopology)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	if status == nil {
		response.Success(c, http.StatusOK, gin.H{"countdown_armed": true})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": status})
}

// StopExam godoc
// POST /api/v1/admin/sessions/:code/stop
// Ends the running exam (or cancels its countdown) and forces connected
// students out.
func (h *LifecycleHandler) StopExam(c *gin.Context) {
	if err := h.lifecycle.StopExam(c.Request.Context(), c.Param("code")); err != nil {
		if errors.Is(err, service.ErrExamNotActive) {
			response.Fail(c, http.StatusConflict, response.ErrExamNotActive)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// GetStatus godoc
// GET /api/v1/exam/status
// Returns the current global exam status and countdown, for both the admin
// dashboard and the student lobby.
func (h *LifecycleHandler) GetStatus(c *gin.Context) {
	status, err := h.directory.Status(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	countdown, err := h.directory.Countdown(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"status":    status,
		"countdown": countdown,
	})
}

// GetServerTime godoc
// GET /api/v1/exam/time
// Returns the authoritative server time so clients can compute an offset.
func (h *LifecycleHandler) GetServerTime(c *gin.Context) {
	now, err := h.directory.ServerTime(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"server_time": now.UTC()})
}
