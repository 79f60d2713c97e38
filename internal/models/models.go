package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Cover letter version kinds and the "latest" slots they compete for.
// Draft and preview share the working slot; submitted has its own.
const (
	KindDraft     = "draft"
	KindPreview   = "preview"
	KindSubmitted = "submitted"

	SlotWorking   = "working"
	SlotSubmitted = "submitted"
)

// SlotForKind maps a version kind to its latest-slot.
func SlotForKind(kind string) string {
	if kind == KindSubmitted {
		return SlotSubmitted
	}
	return SlotWorking
}

type User struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Email string `gorm:"uniqueIndex;not null" json:"email"`
}

type Application struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID  string `gorm:"type:uuid;index;not null" json:"user_id"`
	Company string `gorm:"not null" json:"company"`
	Role    string `gorm:"not null" json:"role"`
	JobURL  string `json:"job_url"`
	Status  string `gorm:"default:'APPLIED'" json:"status"`

	// Snapshot of the job posting text taken at save time. Nullable: an
	// application can be tracked before its posting was captured.
	JDSnapshot *string `gorm:"type:text" json:"jd_snapshot"`

	// Confirmed requirement->evidence mapping, stored as a JSON document.
	// Nullable until the user confirms a mapping.
	ConfirmedMapping datatypes.JSON `json:"confirmed_mapping"`
}

// ConfirmedMapping is the parsed form of Application.ConfirmedMapping.
type ConfirmedMapping struct {
	Version     int           `json:"version"`
	ConfirmedAt time.Time     `json:"confirmedAt"`
	Items       []MappingItem `json:"items"`
}

// MappingItem links one job requirement to the evidence bullets backing it.
// Uncovered means the user confirmed there is no evidence for the item; that
// fact wins over whatever BulletIDs may still hold from stale data.
type MappingItem struct {
	Key       string   `json:"key"`
	Kind      string   `json:"kind"` // "responsibility" or "requirement"
	Text      string   `json:"text"`
	BulletIDs []string `json:"bulletIds"`
	Uncovered bool     `json:"uncovered"`
}

// Mapping parses the confirmed mapping column. Returns nil when no mapping
// has been confirmed or the stored document is unusable.
func (a *Application) Mapping() *ConfirmedMapping {
	if len(a.ConfirmedMapping) == 0 {
		return nil
	}
	var m ConfirmedMapping
	if err := json.Unmarshal(a.ConfirmedMapping, &m); err != nil {
		return nil
	}
	return &m
}

// EvidenceBullet is one stored achievement/experience snippet. Mapping items
// reference bullets by id.
type EvidenceBullet struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID string `gorm:"type:uuid;index;not null" json:"user_id"`
	Title  string `json:"title"`
	Text   string `gorm:"type:text;not null" json:"text"`
}

// CoverLetterVersion is one persisted generation or submission.
//
// Invariants enforced by the version store:
//   - at most one row per (application, slot) has is_latest = true, backed by
//     the partial unique index below so a racing writer fails its insert
//     instead of leaving two latest rows;
//   - submitted rows are never deleted and their content never changes; only
//     the submission metadata fields may be updated.
type CoverLetterVersion struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID        string `gorm:"type:uuid;index;not null" json:"user_id"`
	ApplicationID string `gorm:"type:uuid;index;not null;uniqueIndex:uniq_letter_latest,where:is_latest" json:"application_id"`
	Kind          string `gorm:"not null" json:"kind"`
	Slot          string `gorm:"not null;uniqueIndex:uniq_letter_latest,where:is_latest" json:"-"`
	Content       string `gorm:"type:text;not null" json:"content"`
	IsLatest      bool   `gorm:"not null" json:"is_latest"`

	// Submission annotations, meaningful only for kind = submitted.
	SubmittedVia    *string    `json:"submitted_via"`
	SubmissionNotes *string    `gorm:"type:text" json:"submission_notes"`
	SubmittedAt     *time.Time `json:"submitted_at"`
}

// ApplicationEvent is a timeline entry. Events are best-effort side records
// and never block the action that produced them.
type ApplicationEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	ApplicationID string    `gorm:"type:uuid;index;not null" json:"application_id"`
	EventType     string    `json:"event_type"`
	Details       string    `gorm:"type:text" json:"details"`
}
