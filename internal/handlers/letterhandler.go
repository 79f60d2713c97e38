package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/applytrack/applytrack/internal/apperrors"
	"github.com/applytrack/applytrack/internal/dtos"
	"github.com/applytrack/applytrack/internal/middleware"
	"github.com/applytrack/applytrack/internal/models"
	"github.com/applytrack/applytrack/internal/services"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LetterHandler serves the cover letter endpoints.
type LetterHandler struct {
	Letters  *services.LetterService
	Versions *services.VersionStore
	Apps     *services.ApplicationService
	log      *zap.SugaredLogger
}

func NewLetterHandler(letters *services.LetterService, versions *services.VersionStore, apps *services.ApplicationService, log *zap.SugaredLogger) *LetterHandler {
	return &LetterHandler{
		Letters:  letters,
		Versions: versions,
		Apps:     apps,
		log:      log,
	}
}

// Generate is POST /cover-letters/generate: the streaming generation
// endpoint. Gate failures come back as plain JSON before any stream is
// opened; once the event stream starts, all outcomes ride in-band.
func (h *LetterHandler) Generate(c *gin.Context) {
	userID := middleware.UserID(c)

	var req dtos.GenerateLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dtos.ErrorEnvelope(string(apperrors.CodeValidationFailed), "invalid request body: "+err.Error()))
		return
	}

	in, err := h.Letters.PrepareGeneration(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	emit := func(event string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if err := sse.Encode(c.Writer, sse.Event{Event: event, Data: string(data)}); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	h.Letters.StreamGenerate(c.Request.Context(), in, emit)
}

// GenerateSync is POST /cover-letters: the non-streaming generation path.
// Same gate, but the full letter comes back in one JSON response and the
// provider call may fall back across models.
func (h *LetterHandler) GenerateSync(c *gin.Context) {
	userID := middleware.UserID(c)

	var req dtos.GenerateLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dtos.ErrorEnvelope(string(apperrors.CodeValidationFailed), "invalid request body: "+err.Error()))
		return
	}

	in, err := h.Letters.PrepareGeneration(userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	version, err := h.Letters.GenerateOnce(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dtos.DataEnvelope(version))
}

// Latest is GET /applications/:id/cover-letters/latest?slot=working|submitted.
// An empty slot is not an error: data is null when nothing has been generated
// or submitted yet.
func (h *LetterHandler) Latest(c *gin.Context) {
	userID := middleware.UserID(c)
	appID := c.Param("id")

	if _, err := h.Apps.Get(userID, appID); err != nil {
		respondError(c, err)
		return
	}

	slot := c.DefaultQuery("slot", models.SlotWorking)
	if slot != models.SlotWorking && slot != models.SlotSubmitted {
		c.JSON(http.StatusBadRequest, dtos.ErrorEnvelope(string(apperrors.CodeValidationFailed), "slot must be \"working\" or \"submitted\""))
		return
	}

	version, err := h.Versions.LatestForSlot(userID, appID, slot)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.DataEnvelope(version))
}

// SubmittedHistory is GET /applications/:id/cover-letters/submitted.
func (h *LetterHandler) SubmittedHistory(c *gin.Context) {
	userID := middleware.UserID(c)
	appID := c.Param("id")

	if _, err := h.Apps.Get(userID, appID); err != nil {
		respondError(c, err)
		return
	}

	versions, err := h.Versions.ListSubmitted(userID, appID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.DataEnvelope(versions))
}

// Submit is POST /applications/:id/cover-letters/submit: records letter text
// as a new submitted version. The working draft keeps its latest flag.
func (h *LetterHandler) Submit(c *gin.Context) {
	userID := middleware.UserID(c)
	appID := c.Param("id")

	var req dtos.SubmitLetterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dtos.ErrorEnvelope(string(apperrors.CodeValidationFailed), "invalid request body: "+err.Error()))
		return
	}

	if _, err := h.Apps.Get(userID, appID); err != nil {
		respondError(c, err)
		return
	}

	version, err := h.Versions.CreateSubmitted(userID, appID, req.Content, services.SubmissionMeta{
		SubmittedVia:    req.SubmittedVia,
		SubmissionNotes: req.Notes,
		SubmittedAt:     req.SubmittedAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.Apps.RecordEvent(appID, "COVER_LETTER_SUBMITTED", "Cover letter saved as submitted version "+version.ID)
	c.JSON(http.StatusCreated, dtos.DataEnvelope(version))
}

// PatchSubmission is PATCH /cover-letters/:id/submission: updates venue,
// notes and submitted-at on a submitted version. The patch is decoded into an
// allow-list struct, so a "content" key in the body is dropped before it can
// reach the store.
func (h *LetterHandler) PatchSubmission(c *gin.Context) {
	userID := middleware.UserID(c)
	versionID := c.Param("id")

	var req dtos.SubmissionPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dtos.ErrorEnvelope(string(apperrors.CodeValidationFailed), "invalid request body: "+err.Error()))
		return
	}

	version, err := h.Versions.UpdateSubmissionMeta(userID, versionID, services.SubmissionMeta{
		SubmittedVia:    req.SubmittedVia,
		SubmissionNotes: req.Notes,
		SubmittedAt:     req.SubmittedAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.DataEnvelope(version))
}

// respondError maps a coded error to the JSON envelope and status.
func respondError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	c.JSON(apperrors.HTTPStatus(code), dtos.ErrorEnvelope(string(code), apperrors.MessageOf(err)))
}
