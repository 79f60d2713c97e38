package services

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/applytrack/applytrack/internal/database"
	"github.com/applytrack/applytrack/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func seedApplication(t *testing.T, db *gorm.DB, userID string, jd *string, mapping *models.ConfirmedMapping) *models.Application {
	t.Helper()
	app := &models.Application{
		ID:         uuid.NewString(),
		UserID:     userID,
		Company:    "Stripe",
		Role:       "Senior Backend Engineer",
		JDSnapshot: jd,
	}
	if mapping != nil {
		raw, err := json.Marshal(mapping)
		require.NoError(t, err)
		app.ConfirmedMapping = raw
	}
	require.NoError(t, db.Create(app).Error)
	return app
}

func seedBullet(t *testing.T, db *gorm.DB, userID, title, text string) *models.EvidenceBullet {
	t.Helper()
	bullet := &models.EvidenceBullet{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  title,
		Text:   text,
	}
	require.NoError(t, db.Create(bullet).Error)
	return bullet
}

func simpleMapping(items ...models.MappingItem) *models.ConfirmedMapping {
	return &models.ConfirmedMapping{
		Version:     1,
		ConfirmedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Items:       items,
	}
}

func strptr(s string) *string { return &s }
