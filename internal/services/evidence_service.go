package services

import (
	"github.com/applytrack/applytrack/internal/apperrors"
	"github.com/applytrack/applytrack/internal/dtos"
	"github.com/applytrack/applytrack/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type EvidenceService struct {
	DB  *gorm.DB
	log *zap.SugaredLogger
}

func NewEvidenceService(db *gorm.DB, log *zap.SugaredLogger) *EvidenceService {
	return &EvidenceService{DB: db, log: log}
}

func (s *EvidenceService) Create(userID string, req *dtos.EvidenceCreateRequest) (*models.EvidenceBullet, error) {
	bullet := &models.EvidenceBullet{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  req.Title,
		Text:   req.Text,
	}
	if err := s.DB.Create(bullet).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "could not create evidence", err)
	}
	return bullet, nil
}

func (s *EvidenceService) List(userID string) ([]models.EvidenceBullet, error) {
	var bullets []models.EvidenceBullet
	err := s.DB.Where("user_id = ?", userID).Order("created_at DESC").Find(&bullets).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "could not list evidence", err)
	}
	return bullets, nil
}

// ResolveBullets fetches the evidence referenced by the mapping items and
// returns a lookup by bullet id, scoped to the owner. Ids that resolve to
// nothing (deleted since the mapping was confirmed) are simply absent; the
// prompt builder tolerates the gap.
func (s *EvidenceService) ResolveBullets(userID string, items []models.MappingItem) (map[string]models.EvidenceBullet, error) {
	var ids []string
	seen := make(map[string]bool)
	for _, item := range items {
		for _, id := range item.BulletIDs {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}

	lookup := make(map[string]models.EvidenceBullet, len(ids))
	if len(ids) == 0 {
		return lookup, nil
	}

	var bullets []models.EvidenceBullet
	err := s.DB.Where("user_id = ? AND id IN ?", userID, ids).Find(&bullets).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "could not resolve evidence", err)
	}
	for _, b := range bullets {
		lookup[b.ID] = b
	}
	return lookup, nil
}
