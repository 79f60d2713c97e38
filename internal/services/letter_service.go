package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/applytrack/applytrack/internal/apperrors"
	"github.com/applytrack/applytrack/internal/config"
	"github.com/applytrack/applytrack/internal/dtos"
	"github.com/applytrack/applytrack/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stream event names. At most one terminal event (done or error) is ever
// emitted per stream, and it is always the last write.
const (
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

const maxErrorDetailLen = 1000

// EventEmitter writes one outbound stream event. An error from the emitter
// means the caller stopped listening.
type EventEmitter func(event string, payload any) error

// GenerationInput is the gate's output: a caller-scoped application snapshot
// plus the normalized request, ready for prompt building. No model call has
// happened yet when one of these exists.
type GenerationInput struct {
	App         *models.Application
	Mode        string
	Constraints *dtos.LetterConstraints
	Mapping     *models.ConfirmedMapping // non-nil iff Mode is grounded
}

// LetterService drives cover letter generation: request gating, prompt
// assembly, the provider stream, and persistence of the result.
type LetterService struct {
	cfg      config.AIConfig
	llm      *LLMService
	evidence *EvidenceService
	versions *VersionStore
	apps     *ApplicationService
	log      *zap.SugaredLogger
}

func NewLetterService(cfg config.AIConfig, llm *LLMService, evidence *EvidenceService, versions *VersionStore, apps *ApplicationService, log *zap.SugaredLogger) *LetterService {
	return &LetterService{
		cfg:      cfg,
		llm:      llm,
		evidence: evidence,
		versions: versions,
		apps:     apps,
		log:      log,
	}
}

// PrepareGeneration is the request gate. Checks run in a fixed order and the
// first failure wins; nothing has side effects, so a rejected request is
// cheap to retry. Preview mode deliberately skips the mapping prerequisite.
func (s *LetterService) PrepareGeneration(userID string, req *dtos.GenerateLetterRequest) (*GenerationInput, error) {
	if _, err := uuid.Parse(req.ApplicationID); err != nil {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "applicationId must be a valid id")
	}

	mode := req.Mode
	if mode == "" {
		mode = dtos.ModeGrounded
	}
	if mode != dtos.ModeGrounded && mode != dtos.ModePreview {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "mode must be \"grounded\" or \"preview\"")
	}

	app, err := s.apps.Get(userID, req.ApplicationID)
	if err != nil {
		return nil, err
	}

	if app.JDSnapshot == nil || strings.TrimSpace(*app.JDSnapshot) == "" {
		return nil, apperrors.New(apperrors.CodeJDSnapshotRequired, "save the job posting text before generating a letter")
	}

	in := &GenerationInput{
		App:         app,
		Mode:        mode,
		Constraints: req.Constraints.Normalize(),
	}

	if mode == dtos.ModeGrounded {
		mapping := app.Mapping()
		if mapping == nil || len(mapping.Items) == 0 {
			return nil, apperrors.New(apperrors.CodeConfirmedMappingRequired, "confirm a requirement-to-evidence mapping before generating a grounded letter")
		}
		in.Mapping = mapping
	}

	return in, nil
}

// buildPrompt assembles the generation instruction, resolving evidence for
// grounded mode.
func (s *LetterService) buildPrompt(in *GenerationInput) (string, error) {
	if in.Mode == dtos.ModePreview {
		return BuildPreviewPrompt(in.App, in.Constraints), nil
	}
	lookup, err := s.evidence.ResolveBullets(in.App.UserID, in.Mapping.Items)
	if err != nil {
		return "", err
	}
	return BuildGroundedPrompt(in.App, in.Mapping, lookup, in.Constraints), nil
}

// StreamGenerate runs one generation against the provider stream, forwarding
// deltas through emit and persisting the full text on clean completion.
//
// Exit paths and their terminal events:
//   - missing credential or bad endpoint: error AI_PROVIDER_NOT_CONFIGURED;
//   - provider non-2xx: error AI_PROVIDER_ERROR (no model fallback here: the
//     caller is watching a live stream, and restarting on another model after
//     deltas may already have been forwarded would interleave two letters;
//     the non-streaming path in GenerateOnce is the one that falls back);
//   - caller gone: silent stop, accumulated text discarded, nothing saved;
//   - save failed: error PERSIST_FAILED (the text already reached the caller
//     via deltas, so this means "generated but not saved");
//   - panic: error GENERATION_FAILED;
//   - success: done with the new version's id.
func (s *LetterService) StreamGenerate(ctx context.Context, in *GenerationInput, emit EventEmitter) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("panic during letter generation", "application_id", in.App.ID, "panic", r)
			s.emitError(emit, apperrors.CodeGenerationFailed, "cover letter generation failed", "")
		}
	}()

	if !s.llm.Configured() {
		s.emitError(emit, apperrors.CodeAIProviderNotConfigured, "no model provider is configured", "")
		return
	}
	if err := s.llm.ValidateEndpoint(); err != nil {
		s.emitError(emit, apperrors.CodeAIProviderNotConfigured, apperrors.MessageOf(err), "")
		return
	}

	prompt, err := s.buildPrompt(in)
	if err != nil {
		s.log.Errorw("prompt assembly failed", "application_id", in.App.ID, "error", err)
		s.emitError(emit, apperrors.CodeGenerationFailed, "cover letter generation failed", "")
		return
	}

	streamCtx, cancel := context.WithTimeout(ctx, s.cfg.StreamTimeout)
	defer cancel()

	result, err := s.llm.StreamCompletion(streamCtx, s.cfg.Model, prompt, func(chunk string) error {
		return emit(EventDelta, dtos.DeltaPayload{Content: chunk})
	})
	if result.MalformedFragments > 0 {
		// One warning after the stream ends; never per fragment.
		s.log.Warnw("skipped malformed stream fragments", "application_id", in.App.ID, "count", result.MalformedFragments)
	}
	if ctx.Err() != nil {
		// Caller aborted. Nobody is listening, and partial text is not a
		// version: discard and stop.
		return
	}
	if err != nil {
		var statusErr *ProviderStatusError
		if errors.As(err, &statusErr) {
			detail := ""
			if !s.cfg.ProductionLike() {
				detail = truncateDetail(fmt.Sprintf("status %d: %s", statusErr.StatusCode, statusErr.Body))
			}
			s.emitError(emit, apperrors.CodeAIProviderError, "the model provider returned an error", detail)
			return
		}
		s.log.Errorw("provider stream failed", "application_id", in.App.ID, "error", err)
		s.emitError(emit, apperrors.CodeGenerationFailed, "cover letter generation failed", "")
		return
	}

	if strings.TrimSpace(result.Text) == "" {
		s.emitError(emit, apperrors.CodeGenerationFailed, "the model produced no content", "")
		return
	}

	kind := models.KindDraft
	if in.Mode == dtos.ModePreview {
		kind = models.KindPreview
	}
	version, err := s.versions.CreateGenerated(in.App.UserID, in.App.ID, kind, result.Text)
	if err != nil {
		s.log.Errorw("could not persist generated letter", "application_id", in.App.ID, "error", err)
		s.emitError(emit, apperrors.CodePersistFailed, "the letter was generated but could not be saved", "")
		return
	}

	// Timeline write is best-effort and must come after the primary effect.
	s.apps.RecordEvent(in.App.ID, "COVER_LETTER_GENERATED", fmt.Sprintf("Generated %s version %s", kind, version.ID))

	_ = emit(EventDone, dtos.DonePayload{
		DraftID:       version.ID,
		Kind:          version.Kind,
		ApplicationID: in.App.ID,
	})
}

// GenerateOnce is the non-streaming sibling of StreamGenerate: same gate and
// prompt, but the provider call retries across the configured model list
// before anything is shown to the caller.
func (s *LetterService) GenerateOnce(ctx context.Context, in *GenerationInput) (*models.CoverLetterVersion, error) {
	if !s.llm.Configured() {
		return nil, apperrors.New(apperrors.CodeAIProviderNotConfigured, "no model provider is configured")
	}
	if err := s.llm.ValidateEndpoint(); err != nil {
		return nil, err
	}

	prompt, err := s.buildPrompt(in)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.StreamTimeout)
	defer cancel()

	text, servedBy, err := s.llm.Complete(genCtx, prompt)
	if err != nil {
		return nil, err
	}

	kind := models.KindDraft
	if in.Mode == dtos.ModePreview {
		kind = models.KindPreview
	}
	version, err := s.versions.CreateGenerated(in.App.UserID, in.App.ID, kind, text)
	if err != nil {
		return nil, err
	}

	s.apps.RecordEvent(in.App.ID, "COVER_LETTER_GENERATED", fmt.Sprintf("Generated %s version %s (model %s)", kind, version.ID, servedBy))
	return version, nil
}

func (s *LetterService) emitError(emit EventEmitter, code apperrors.Code, message, details string) {
	_ = emit(EventError, dtos.ErrorPayload{
		Code:    string(code),
		Message: message,
		Details: details,
	})
}

func truncateDetail(s string) string {
	r := []rune(s)
	if len(r) <= maxErrorDetailLen {
		return s
	}
	return string(r[:maxErrorDetailLen])
}
