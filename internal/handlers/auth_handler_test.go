package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/securecrop/backend/internal/config"
	"github.com/securecrop/backend/internal/handlers"
	"github.com/securecrop/backend/internal/models"
	"github.com/securecrop/backend/internal/services"
	"github.com/securecrop/backend/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(ctx context.Context, identity string) bool { return true }

type discardMailer struct{}

func (discardMailer) SendPasswordResetLink(to, username, resetURL string) error { return nil }

func (discardMailer) SendOperatorAlert(subject, body string) error { return nil }

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.Migrate(db))

	cfg := &config.Config{
		Env:                 "test",
		FrontendURL:         "http://localhost:5173",
		ResetTokenTTL:       time.Hour,
		ResetTokenRetention: 24 * time.Hour,
		ResetRevokeStrategy: "expire",
		BcryptCost:          4,
		DebugResetLinks:     true,
	}

	store := services.NewTokenStore(db, cfg)
	users := services.NewUserService(db)
	credentials := services.NewCredentialService(db, nil, cfg)
	resetService := services.NewResetService(db, store, users, credentials, allowAllLimiter{}, discardMailer{}, cfg)
	authHandler := handlers.NewAuthHandler(resetService)

	router := gin.New()
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/password/forgot", authHandler.ForgotPassword)
		auth.GET("/password/verify", authHandler.VerifyResetToken)
		auth.POST("/password/reset", authHandler.ResetPassword)
	}
	return router, db
}

func createUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("original-password", 4)
	require.NoError(t, err)
	user := &models.User{Username: "cropwatcher", Email: email, Password: hashed, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

func postJSON(router *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func getPath(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestForgotPasswordUniformAcrossAccounts(t *testing.T) {
	router, db := setupRouter(t)
	createUser(t, db, "known@example.com")

	known := postJSON(router, "/api/v1/auth/password/forgot", gin.H{"email": "known@example.com"})
	unknown := postJSON(router, "/api/v1/auth/password/forgot", gin.H{"email": "ghost@example.com"})

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, decode(t, known)["message"], decode(t, unknown)["message"])
}

func TestForgotPasswordRequiresEmail(t *testing.T) {
	router, _ := setupRouter(t)

	w := postJSON(router, "/api/v1/auth/password/forgot", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(router, "/api/v1/auth/password/forgot", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyRequiresToken(t *testing.T) {
	router, _ := setupRouter(t)

	w := getPath(router, "/api/v1/auth/password/verify")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decode(t, w)["valid"])
}

func TestVerifyUnknownToken(t *testing.T) {
	router, _ := setupRouter(t)

	w := getPath(router, "/api/v1/auth/password/verify?token=bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "Invalid or expired reset token", body["error"])
}

func TestPasswordResetEndToEnd(t *testing.T) {
	router, db := setupRouter(t)
	user := createUser(t, db, "farmer@example.com")

	// Request a reset link
	w := postJSON(router, "/api/v1/auth/password/forgot", gin.H{"email": "farmer@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	debugLink, ok := decode(t, w)["debug_link"].(string)
	require.True(t, ok, "debug link expected outside production")

	var record models.ResetToken
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&record).Error)
	token := record.Token
	assert.Contains(t, debugLink, token)

	// The pre-check sees a valid token and a masked account hint
	w = getPath(router, "/api/v1/auth/password/verify?token="+token)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "f****r@example.com", body["email"])

	// Confirm with a valid password
	w = postJSON(router, "/api/v1/auth/password/reset", gin.H{
		"token":                token,
		"new_password":         "longenough1",
		"new_password_confirm": "longenough1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// The same token no longer verifies
	w = getPath(router, "/api/v1/auth/password/verify?token="+token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decode(t, w)["valid"])
}

func TestPasswordResetFieldErrorsAreLists(t *testing.T) {
	router, db := setupRouter(t)
	user := createUser(t, db, "rosa@example.com")

	w := postJSON(router, "/api/v1/auth/password/forgot", gin.H{"email": "rosa@example.com"})
	require.Equal(t, http.StatusOK, w.Code)

	var record models.ResetToken
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&record).Error)

	w = postJSON(router, "/api/v1/auth/password/reset", gin.H{
		"token":                record.Token,
		"new_password":         "short",
		"new_password_confirm": "short",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode(t, w)
	messages, ok := body["new_password"].([]interface{})
	require.True(t, ok, "validation errors must be an ordered list")
	require.Len(t, messages, 1)
	assert.Equal(t, "password must be at least 8 characters", messages[0])

	// The token survives failed validation
	w = getPath(router, "/api/v1/auth/password/verify?token="+record.Token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPasswordResetInvalidToken(t *testing.T) {
	router, _ := setupRouter(t)

	w := postJSON(router, "/api/v1/auth/password/reset", gin.H{
		"token":                "not-a-real-token",
		"new_password":         "longenough1",
		"new_password_confirm": "longenough1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "Invalid or expired reset token")
}
