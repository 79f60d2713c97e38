package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/applytrack/applytrack/internal/apperrors"
	"github.com/applytrack/applytrack/internal/config"
	"github.com/applytrack/applytrack/internal/dtos"
	"github.com/applytrack/applytrack/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordedEvent struct {
	name    string
	payload any
}

type eventRecorder struct {
	events []recordedEvent
}

func (r *eventRecorder) emit(event string, payload any) error {
	r.events = append(r.events, recordedEvent{name: event, payload: payload})
	return nil
}

func (r *eventRecorder) byName(name string) []recordedEvent {
	var out []recordedEvent
	for _, e := range r.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

type letterFixture struct {
	db      *gorm.DB
	store   *VersionStore
	letters *LetterService
	cfg     config.AIConfig
}

func newLetterFixture(t *testing.T, providerURL, apiKey string) *letterFixture {
	t.Helper()
	db := newTestDB(t)
	log := testLogger()
	cfg := config.AIConfig{
		APIKey:        apiKey,
		BaseURL:       providerURL,
		Model:         "primary-model",
		StreamTimeout: time.Minute,
		Environment:   "development",
	}
	llm, err := NewLLMService(cfg, log)
	require.NoError(t, err)
	apps := NewApplicationService(db, log)
	evidence := NewEvidenceService(db, log)
	store := NewVersionStore(db, log)
	return &letterFixture{
		db:      db,
		store:   store,
		letters: NewLetterService(cfg, llm, evidence, store, apps, log),
		cfg:     cfg,
	}
}

func (f *letterFixture) countVersions(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.CoverLetterVersion{}).Count(&n).Error)
	return n
}

// --- Request gate ---

func TestPrepareGenerationValidation(t *testing.T) {
	f := newLetterFixture(t, "http://localhost:0", "key")
	owner := uuid.NewString()

	_, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: "not-a-uuid"})
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))

	_, err = f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: uuid.NewString(), Mode: "creative"})
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.CodeOf(err))

	_, err = f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: uuid.NewString()})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestPrepareGenerationOwnershipMismatchIsNotFound(t *testing.T) {
	f := newLetterFixture(t, "http://localhost:0", "key")
	app := seedApplication(t, f.db, uuid.NewString(), strptr("jd text"), nil)

	_, err := f.letters.PrepareGeneration(uuid.NewString(), &dtos.GenerateLetterRequest{ApplicationID: app.ID})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestPrepareGenerationRequiresJDSnapshotInBothModes(t *testing.T) {
	f := newLetterFixture(t, "http://localhost:0", "key")
	owner := uuid.NewString()
	noJD := seedApplication(t, f.db, owner, nil, nil)
	blankJD := seedApplication(t, f.db, owner, strptr("   "), nil)

	for _, mode := range []string{dtos.ModeGrounded, dtos.ModePreview} {
		for _, app := range []*models.Application{noJD, blankJD} {
			_, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: app.ID, Mode: mode})
			assert.Equal(t, apperrors.CodeJDSnapshotRequired, apperrors.CodeOf(err))
		}
	}
}

func TestPrepareGenerationMappingPrerequisiteIsGroundedOnly(t *testing.T) {
	f := newLetterFixture(t, "http://localhost:0", "key")
	owner := uuid.NewString()
	app := seedApplication(t, f.db, owner, strptr("Senior role..."), nil)

	// Grounded without a mapping is rejected; mode defaults to grounded.
	for _, mode := range []string{"", dtos.ModeGrounded} {
		_, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: app.ID, Mode: mode})
		assert.Equal(t, apperrors.CodeConfirmedMappingRequired, apperrors.CodeOf(err))
	}

	// Preview must succeed without any mapping present.
	in, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: app.ID, Mode: dtos.ModePreview})
	require.NoError(t, err)
	assert.Equal(t, dtos.ModePreview, in.Mode)
	assert.Nil(t, in.Mapping)
}

func TestPrepareGenerationEmptyMappingItems(t *testing.T) {
	f := newLetterFixture(t, "http://localhost:0", "key")
	owner := uuid.NewString()
	app := seedApplication(t, f.db, owner, strptr("jd"), simpleMapping())

	_, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: app.ID, Mode: dtos.ModeGrounded})
	assert.Equal(t, apperrors.CodeConfirmedMappingRequired, apperrors.CodeOf(err))
}

// --- Stream controller ---

func TestStreamGenerateHappyPathPersistsDraft(t *testing.T) {
	srv := fakeProvider(t, []string{deltaLine("Dear "), deltaLine("team"), "data: [DONE]"}, http.StatusOK)
	defer srv.Close()

	f := newLetterFixture(t, srv.URL, "key")
	owner := uuid.NewString()
	bullet := seedBullet(t, f.db, owner, "", "Shipped the billing rewrite.")
	app := seedApplication(t, f.db, owner, strptr("jd text"), simpleMapping(
		models.MappingItem{Key: "r1", Kind: "requirement", Text: "Billing experience", BulletIDs: []string{bullet.ID}},
	))

	in, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: app.ID})
	require.NoError(t, err)

	rec := &eventRecorder{}
	f.letters.StreamGenerate(context.Background(), in, rec.emit)

	require.Len(t, rec.byName(EventDelta), 2)
	dones := rec.byName(EventDone)
	require.Len(t, dones, 1)
	assert.Empty(t, rec.byName(EventError))
	// Terminal event is the last write.
	assert.Equal(t, EventDone, rec.events[len(rec.events)-1].name)

	done := dones[0].payload.(dtos.DonePayload)
	assert.Equal(t, app.ID, done.ApplicationID)
	assert.Equal(t, models.KindDraft, done.Kind)

	saved, err := f.store.LatestForSlot(owner, app.ID, models.SlotWorking)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, done.DraftID, saved.ID)
	assert.Equal(t, "Dear team", saved.Content)

	// Best-effort timeline write happened.
	var events int64
	require.NoError(t, f.db.Model(&models.ApplicationEvent{}).Where("application_id = ?", app.ID).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestStreamGeneratePreviewModePersistsPreviewKind(t *testing.T) {
	srv := fakeProvider(t, []string{deltaLine("Hello"), "data: [DONE]"}, http.StatusOK)
	defer srv.Close()

	f := newLetterFixture(t, srv.URL, "key")
	owner := uuid.NewString()
	app := seedApplication(t, f.db, owner, strptr("Senior role..."), nil)

	in, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: app.ID, Mode: dtos.ModePreview})
	require.NoError(t, err)

	rec := &eventRecorder{}
	f.letters.StreamGenerate(context.Background(), in, rec.emit)

	dones := rec.byName(EventDone)
	require.Len(t, dones, 1)
	assert.Equal(t, models.KindPreview, dones[0].payload.(dtos.DonePayload).Kind)
}

func TestStreamGenerateUnconfiguredProvider(t *testing.T) {
	f := newLetterFixture(t, "http://localhost:0", "")
	owner := uuid.NewString()
	app := seedApplication(t, f.db, owner, strptr("jd"), nil)

	in, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: app.ID, Mode: dtos.ModePreview})
	require.NoError(t, err)

	rec := &eventRecorder{}
	f.letters.StreamGenerate(context.Background(), in, rec.emit)

	require.Len(t, rec.events, 1)
	errPayload := rec.events[0].payload.(dtos.ErrorPayload)
	assert.Equal(t, string(apperrors.CodeAIProviderNotConfigured), errPayload.Code)
	assert.Zero(t, f.countVersions(t))
}

func TestStreamGenerateMalformedEndpoint(t *testing.T) {
	f := newLetterFixture(t, "not a url", "key")
	owner := uuid.NewString()
	app := seedApplication(t, f.db, owner, strptr("jd"), nil)

	in, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: app.ID, Mode: dtos.ModePreview})
	require.NoError(t, err)

	rec := &eventRecorder{}
	f.letters.StreamGenerate(context.Background(), in, rec.emit)

	require.Len(t, rec.events, 1)
	assert.Equal(t, string(apperrors.CodeAIProviderNotConfigured), rec.events[0].payload.(dtos.ErrorPayload).Code)
}

func TestStreamGenerateProviderErrorEmitsSingleTerminalError(t *testing.T) {
	srv := fakeProvider(t, nil, http.StatusInternalServerError)
	defer srv.Close()

	f := newLetterFixture(t, srv.URL, "key")
	owner := uuid.NewString()
	app := seedApplication(t, f.db, owner, strptr("jd"), nil)

	in, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: app.ID, Mode: dtos.ModePreview})
	require.NoError(t, err)

	rec := &eventRecorder{}
	f.letters.StreamGenerate(context.Background(), in, rec.emit)

	require.Len(t, rec.events, 1)
	errPayload := rec.events[0].payload.(dtos.ErrorPayload)
	assert.Equal(t, string(apperrors.CodeAIProviderError), errPayload.Code)
	// Development config: truncated diagnostic detail is included.
	assert.Contains(t, errPayload.Details, "status 500")
	// No version row for a failed generation.
	assert.Zero(t, f.countVersions(t))
}

func TestStreamGenerateProviderErrorHidesDetailInProduction(t *testing.T) {
	srv := fakeProvider(t, nil, http.StatusBadGateway)
	defer srv.Close()

	f := newLetterFixture(t, srv.URL, "key")
	f.cfg.Environment = "production"
	// Rebuild the service with production-like config.
	log := testLogger()
	llm, err := NewLLMService(f.cfg, log)
	require.NoError(t, err)
	f.letters = NewLetterService(f.cfg, llm, NewEvidenceService(f.db, log), f.store, NewApplicationService(f.db, log), log)

	owner := uuid.NewString()
	app := seedApplication(t, f.db, owner, strptr("jd"), nil)
	in, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: app.ID, Mode: dtos.ModePreview})
	require.NoError(t, err)

	rec := &eventRecorder{}
	f.letters.StreamGenerate(context.Background(), in, rec.emit)

	require.Len(t, rec.events, 1)
	assert.Empty(t, rec.events[0].payload.(dtos.ErrorPayload).Details)
}

func TestStreamGenerateEmptyOutputIsAnError(t *testing.T) {
	srv := fakeProvider(t, []string{"data: [DONE]"}, http.StatusOK)
	defer srv.Close()

	f := newLetterFixture(t, srv.URL, "key")
	owner := uuid.NewString()
	app := seedApplication(t, f.db, owner, strptr("jd"), nil)

	in, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: app.ID, Mode: dtos.ModePreview})
	require.NoError(t, err)

	rec := &eventRecorder{}
	f.letters.StreamGenerate(context.Background(), in, rec.emit)

	require.Len(t, rec.events, 1)
	assert.Equal(t, string(apperrors.CodeGenerationFailed), rec.events[0].payload.(dtos.ErrorPayload).Code)
	assert.Zero(t, f.countVersions(t))
}

func TestStreamGeneratePersistFailure(t *testing.T) {
	srv := fakeProvider(t, []string{deltaLine("text"), "data: [DONE]"}, http.StatusOK)
	defer srv.Close()

	f := newLetterFixture(t, srv.URL, "key")
	owner := uuid.NewString()
	app := seedApplication(t, f.db, owner, strptr("jd"), nil)

	in, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: app.ID, Mode: dtos.ModePreview})
	require.NoError(t, err)

	// Make the insert fail after generation succeeds.
	require.NoError(t, f.db.Migrator().DropTable(&models.CoverLetterVersion{}))

	rec := &eventRecorder{}
	f.letters.StreamGenerate(context.Background(), in, rec.emit)

	// The caller got the text via deltas, then a PERSIST_FAILED terminal.
	require.Len(t, rec.byName(EventDelta), 1)
	last := rec.events[len(rec.events)-1]
	require.Equal(t, EventError, last.name)
	assert.Equal(t, string(apperrors.CodePersistFailed), last.payload.(dtos.ErrorPayload).Code)
}

func TestStreamGenerateCancelledCallerDiscardsPartialText(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, deltaLine("partial ")+"\n\n")
		w.(http.Flusher).Flush()
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	f := newLetterFixture(t, srv.URL, "key")
	owner := uuid.NewString()
	app := seedApplication(t, f.db, owner, strptr("jd"), nil)

	in, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: app.ID, Mode: dtos.ModePreview})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &eventRecorder{}
	f.letters.StreamGenerate(ctx, in, func(event string, payload any) error {
		_ = rec.emit(event, payload)
		cancel() // caller walks away after the first delta
		return nil
	})

	// Silent stop: no terminal event, nothing persisted.
	assert.Len(t, rec.byName(EventDelta), 1)
	assert.Empty(t, rec.byName(EventDone))
	assert.Empty(t, rec.byName(EventError))
	assert.Zero(t, f.countVersions(t))
}

func TestGenerateOnceUsesFallbackModels(t *testing.T) {
	f := newLetterFixture(t, "http://localhost:0", "key")
	owner := uuid.NewString()
	app := seedApplication(t, f.db, owner, strptr("jd"), nil)

	// Swap in a stub chat model: primary fails, backup answers.
	stub := &stubModel{failing: map[string]bool{"primary-model": true}}
	f.letters.llm.chat = stub
	f.letters.llm.cfg.FallbackModels = []string{"backup-model"}

	in, err := f.letters.PrepareGeneration(owner, &dtos.GenerateLetterRequest{ApplicationID: app.ID, Mode: dtos.ModePreview})
	require.NoError(t, err)

	version, err := f.letters.GenerateOnce(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, models.KindPreview, version.Kind)
	assert.Equal(t, "generated by backup-model", version.Content)
	assert.Equal(t, []string{"primary-model", "backup-model"}, stub.calls)
}
