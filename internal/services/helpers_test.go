package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/securecrop/backend/internal/config"
	"github.com/securecrop/backend/internal/models"
	"github.com/securecrop/backend/internal/services"
	"github.com/securecrop/backend/pkg/crypto"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:                 "test",
		FrontendURL:         "http://localhost:5173",
		ResetTokenTTL:       time.Hour,
		ResetTokenRetention: 24 * time.Hour,
		ResetRevokeStrategy: "expire",
		BcryptCost:          4,
		DebugResetLinks:     true,
	}
}

// setupTestDB opens a per-test in-memory sqlite database. A single
// connection keeps concurrent writes serialized at the pool instead of
// surfacing as SQLITE_BUSY.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.Migrate(db))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("original-password", 4)
	require.NoError(t, err)

	user := &models.User{
		Username: email[:1] + "-farmer",
		Email:    email,
		Password: hashed,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type fakeMailer struct {
	mu         sync.Mutex
	resetLinks []string
	alerts     []string
}

func (m *fakeMailer) SendPasswordResetLink(to, username, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLinks = append(m.resetLinks, resetURL)
	return nil
}

func (m *fakeMailer) SendOperatorAlert(subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, subject)
	return nil
}

func (m *fakeMailer) sentLinks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.resetLinks)
}

func (m *fakeMailer) sentAlerts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

type fakeLimiter struct {
	allow bool
}

func (l *fakeLimiter) Allow(ctx context.Context, identity string) bool {
	return l.allow
}

func newResetService(t *testing.T, db *gorm.DB, cfg *config.Config, mailer *fakeMailer, limiter *fakeLimiter) *services.ResetService {
	t.Helper()

	store := services.NewTokenStore(db, cfg)
	users := services.NewUserService(db)
	credentials := services.NewCredentialService(db, nil, cfg)
	return services.NewResetService(db, store, users, credentials, limiter, mailer, cfg)
}

func issueToken(t *testing.T, db *gorm.DB, userID uuid.UUID, secret string, expiresAt time.Time) *models.ResetToken {
	t.Helper()

	token := &models.ResetToken{
		UserID:    userID,
		Token:     secret,
		ExpiresAt: expiresAt,
	}
	require.NoError(t, db.Create(token).Error)
	return token
}
