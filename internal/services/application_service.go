package services

import (
	"errors"

	"github.com/applytrack/applytrack/internal/apperrors"
	"github.com/applytrack/applytrack/internal/dtos"
	"github.com/applytrack/applytrack/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ApplicationService struct {
	DB  *gorm.DB
	log *zap.SugaredLogger
}

func NewApplicationService(db *gorm.DB, log *zap.SugaredLogger) *ApplicationService {
	return &ApplicationService{DB: db, log: log}
}

func (s *ApplicationService) Create(userID string, req *dtos.ApplicationCreateRequest) (*models.Application, error) {
	app := &models.Application{
		ID:         uuid.NewString(),
		UserID:     userID,
		Company:    req.Company,
		Role:       req.Role,
		JobURL:     req.JobURL,
		JDSnapshot: req.JDSnapshot,
	}
	if req.Status != "" {
		app.Status = req.Status
	}
	if err := s.DB.Create(app).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "could not create application", err)
	}
	return app, nil
}

func (s *ApplicationService) List(userID string) ([]models.Application, error) {
	var apps []models.Application
	err := s.DB.Where("user_id = ?", userID).Order("created_at DESC").Find(&apps).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "could not list applications", err)
	}
	return apps, nil
}

// Get loads the caller's application snapshot. Ownership mismatch is folded
// into not-found so existence never leaks across owners.
func (s *ApplicationService) Get(userID, id string) (*models.Application, error) {
	var app models.Application
	err := s.DB.Where("id = ? AND user_id = ?", id, userID).First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "application not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "could not load application", err)
	}
	return &app, nil
}

// Timeline returns the application's event rows, newest first.
func (s *ApplicationService) Timeline(userID, appID string) ([]models.ApplicationEvent, error) {
	if _, err := s.Get(userID, appID); err != nil {
		return nil, err
	}
	var events []models.ApplicationEvent
	err := s.DB.Where("application_id = ?", appID).Order("created_at DESC").Find(&events).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "could not load timeline", err)
	}
	return events, nil
}

// RecordEvent writes a timeline row. Best-effort: a failed write is logged
// and swallowed so it can never fail the action that produced it.
func (s *ApplicationService) RecordEvent(appID, eventType, details string) {
	event := models.ApplicationEvent{
		ApplicationID: appID,
		EventType:     eventType,
		Details:       details,
	}
	if err := s.DB.Create(&event).Error; err != nil {
		s.log.Warnw("timeline event write failed", "application_id", appID, "event_type", eventType, "error", err)
	}
}
