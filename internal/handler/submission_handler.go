package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prepware/examhall-backend/internal/middleware"
	"github.com/prepware/examhall-backend/internal/model"
	"github.com/prepware/examhall-backend/internal/response"
	"github.com/prepware/examhall-backend/internal/service"
	"github.com/prepware/examhall-backend/internal/validator"
)

// SubmissionHandler exposes result management endpoints.
type SubmissionHandler struct {
	submissions *service.SubmissionService
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(submissions *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// ListByExam godoc
// GET /api/v1/admin/sessions/:code/submissions
func (h *SubmissionHandler) ListByExam(c *gin.Context) {
	subs, err := h.submissions.ListByExamCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submissions": subs})
}

// GetFolder godoc
// GET /api/v1/admin/folders/:track_id/:code
func (h *SubmissionHandler) GetFolder(c *gin.Context) {
	folder, err := h.submissions.GetFolder(c.Request.Context(), c.Param("track_id"), c.Param("code"))
	if err != nil {
		if errors.Is(err, service.ErrSubmissionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"folder": folder})
}

// UpdateMark godoc
// PATCH /api/v1/admin/submissions/:id/mark
// Sets a manual score on a submission (writing modules).
func (h *SubmissionHandler) UpdateMark(c *gin.Context) {
	var req model.UpdateMarkRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.submissions.UpdateMark(c.Request.Context(), c.Param("id"), req.Score); err != nil {
		if errors.Is(err, service.ErrSubmissionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// PublishResults godoc
// POST /api/v1/admin/sessions/:code/publish
// Releases all graded results for an exam to its students.
func (h *SubmissionHandler) PublishResults(c *gin.Context) {
	count, err := h.submissions.PublishResults(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"published": count})
}

// MyResults godoc
// GET /api/v1/student/results
// Lists the authenticated student's published results.
func (h *SubmissionHandler) MyResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	subs, err := h.submissions.ListForStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": subs})
}
