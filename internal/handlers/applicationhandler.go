package handlers

import (
	"net/http"

	"github.com/applytrack/applytrack/internal/apperrors"
	"github.com/applytrack/applytrack/internal/dtos"
	"github.com/applytrack/applytrack/internal/middleware"
	"github.com/applytrack/applytrack/internal/services"
	"github.com/gin-gonic/gin"
)

// ApplicationHandler serves application and evidence CRUD.
type ApplicationHandler struct {
	Apps     *services.ApplicationService
	Evidence *services.EvidenceService
}

func NewApplicationHandler(apps *services.ApplicationService, evidence *services.EvidenceService) *ApplicationHandler {
	return &ApplicationHandler{Apps: apps, Evidence: evidence}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *ApplicationHandler) Create(c *gin.Context) {
	var req dtos.ApplicationCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dtos.ErrorEnvelope(string(apperrors.CodeValidationFailed), "invalid request body: "+err.Error()))
		return
	}

	app, err := h.Apps.Create(middleware.UserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dtos.DataEnvelope(app))
}

func (h *ApplicationHandler) List(c *gin.Context) {
	apps, err := h.Apps.List(middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.DataEnvelope(apps))
}

func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.Apps.Get(middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.DataEnvelope(app))
}

func (h *ApplicationHandler) Timeline(c *gin.Context) {
	events, err := h.Apps.Timeline(middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.DataEnvelope(events))
}

func (h *ApplicationHandler) CreateEvidence(c *gin.Context) {
	var req dtos.EvidenceCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dtos.ErrorEnvelope(string(apperrors.CodeValidationFailed), "invalid request body: "+err.Error()))
		return
	}

	bullet, err := h.Evidence.Create(middleware.UserID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dtos.DataEnvelope(bullet))
}

func (h *ApplicationHandler) ListEvidence(c *gin.Context) {
	bullets, err := h.Evidence.List(middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.DataEnvelope(bullets))
}
