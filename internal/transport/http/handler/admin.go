package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"whatsapp-pdf-assistant/internal/app"
	"whatsapp-pdf-assistant/internal/transport/http/response"
)

type AdminHandler struct {
	adminService *app.AdminService
}

type TokenRequest struct {
	Secret string `json:"secret" binding:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func NewAdminHandler(adminService *app.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	token, err := h.adminService.IssueToken(req.Secret)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredential) {
			response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "issue token failed")
		return
	}
	response.OK(c, token)
}

func (h *AdminHandler) ListFeedback(c *gin.Context) {
	limit, offset := pageParams(c)
	list, err := h.adminService.ListFeedback(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list feedback failed")
		return
	}
	response.OK(c, gin.H{"items": list, "limit": limit, "offset": offset})
}

func (h *AdminHandler) ListReports(c *gin.Context) {
	limit, offset := pageParams(c)
	list, err := h.adminService.ListBugReports(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeInvalidStatus, "status must be one of open, in_progress, resolved")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list bug reports failed")
		return
	}
	response.OK(c, gin.H{"items": list, "limit": limit, "offset": offset})
}

func (h *AdminHandler) UpdateReportStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid report id")
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	report, err := h.adminService.UpdateBugReportStatus(c.Request.Context(), uint(id), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeInvalidStatus, "status must be one of open, in_progress, resolved")
		case errors.Is(err, app.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeReportNotFound, "bug report not found")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "update bug report failed")
		}
		return
	}
	response.OK(c, report)
}

// pageParams reads limit and offset; the repository clamps out-of-range values.
func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}
