package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/applytrack/applytrack/internal/apperrors"
	"github.com/applytrack/applytrack/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// VersionStore owns every write to cover_letter_versions. No other code path
// sets is_latest, which (together with the transaction around demote+insert
// and the partial unique index on the model) keeps the one-latest-per-slot
// invariant under concurrent writes.
type VersionStore struct {
	DB  *gorm.DB
	log *zap.SugaredLogger
}

func NewVersionStore(db *gorm.DB, log *zap.SugaredLogger) *VersionStore {
	return &VersionStore{DB: db, log: log}
}

// SubmissionMeta carries the annotation fields of a submitted version.
type SubmissionMeta struct {
	SubmittedVia    *string
	SubmissionNotes *string
	SubmittedAt     *time.Time
}

// CreateGenerated persists a draft or preview version. Draft and preview
// compete for the same working slot: creating either demotes whichever kind
// currently holds it.
func (s *VersionStore) CreateGenerated(userID, appID, kind, content string) (*models.CoverLetterVersion, error) {
	if kind != models.KindDraft && kind != models.KindPreview {
		return nil, fmt.Errorf("invalid generated kind %q", kind)
	}
	if content == "" {
		return nil, apperrors.New(apperrors.CodeInsertFailed, "refusing to save an empty version")
	}
	return s.createLatest(userID, appID, kind, content, nil)
}

// CreateSubmitted persists a submitted version. Only the submitted slot is
// demoted: submitting never retires the working draft, which the user may
// keep iterating on independently.
func (s *VersionStore) CreateSubmitted(userID, appID, content string, meta SubmissionMeta) (*models.CoverLetterVersion, error) {
	if content == "" {
		return nil, apperrors.New(apperrors.CodeInsertFailed, "refusing to save an empty version")
	}
	if meta.SubmittedAt == nil {
		now := time.Now().UTC()
		meta.SubmittedAt = &now
	}
	return s.createLatest(userID, appID, models.KindSubmitted, content, &meta)
}

func (s *VersionStore) createLatest(userID, appID, kind, content string, meta *SubmissionMeta) (*models.CoverLetterVersion, error) {
	slot := models.SlotForKind(kind)
	version := &models.CoverLetterVersion{
		ID:            uuid.NewString(),
		UserID:        userID,
		ApplicationID: appID,
		Kind:          kind,
		Slot:          slot,
		Content:       content,
		IsLatest:      true,
	}
	if meta != nil {
		version.SubmittedVia = meta.SubmittedVia
		version.SubmissionNotes = meta.SubmissionNotes
		version.SubmittedAt = meta.SubmittedAt
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		demote := tx.Model(&models.CoverLetterVersion{}).
			Where("user_id = ? AND application_id = ? AND slot = ? AND is_latest", userID, appID, slot).
			Update("is_latest", false)
		if demote.Error != nil {
			return apperrors.Wrap(apperrors.CodeUpdateFailed, "could not retire the previous latest version", demote.Error)
		}
		if err := tx.Create(version).Error; err != nil {
			return apperrors.Wrap(apperrors.CodeInsertFailed, "could not save the new version", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// LatestForSlot fetches the current latest row for the given slot. No row is
// a normal outcome and returns (nil, nil).
func (s *VersionStore) LatestForSlot(userID, appID, slot string) (*models.CoverLetterVersion, error) {
	var v models.CoverLetterVersion
	err := s.DB.Where("user_id = ? AND application_id = ? AND slot = ? AND is_latest", userID, appID, slot).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "could not load latest version", err)
	}
	return &v, nil
}

// ListSubmitted returns the application's submitted history, newest first.
// Submitted rows are never deleted, so this is the complete record.
func (s *VersionStore) ListSubmitted(userID, appID string) ([]models.CoverLetterVersion, error) {
	var versions []models.CoverLetterVersion
	err := s.DB.Where("user_id = ? AND application_id = ? AND kind = ?", userID, appID, models.KindSubmitted).
		Order("created_at DESC").
		Find(&versions).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "could not load submitted versions", err)
	}
	return versions, nil
}

// UpdateSubmissionMeta updates the annotation fields of a submitted version.
// The update map is built field-by-field from the allow-listed patch struct,
// never merged from the caller's raw body, so content (and kind, and
// timestamps) cannot be altered through this path.
func (s *VersionStore) UpdateSubmissionMeta(userID, versionID string, patch SubmissionMeta) (*models.CoverLetterVersion, error) {
	var v models.CoverLetterVersion
	err := s.DB.Where("id = ? AND user_id = ? AND kind = ?", versionID, userID, models.KindSubmitted).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "submitted version not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUpdateFailed, "could not load submitted version", err)
	}

	updates := map[string]any{}
	if patch.SubmittedVia != nil {
		updates["submitted_via"] = *patch.SubmittedVia
	}
	if patch.SubmissionNotes != nil {
		updates["submission_notes"] = *patch.SubmissionNotes
	}
	if patch.SubmittedAt != nil {
		updates["submitted_at"] = *patch.SubmittedAt
	}
	if len(updates) == 0 {
		return &v, nil
	}

	if err := s.DB.Model(&v).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUpdateFailed, "could not update submission details", err)
	}
	if err := s.DB.First(&v, "id = ?", versionID).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUpdateFailed, "could not reload submitted version", err)
	}
	return &v, nil
}
