package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/securecrop/backend/internal/services"
	"github.com/securecrop/backend/pkg/validation"
)

const genericFailureMessage = "Something went wrong. Please try again later."

type AuthHandler struct {
	resetService *services.ResetService
}

func NewAuthHandler(resetService *services.ResetService) *AuthHandler {
	return &AuthHandler{resetService: resetService}
}

// ForgotPassword handles password reset requests. The response is identical
// for registered and unregistered emails.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}

	if !validation.ValidateEmail(req.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email format"})
		return
	}

	result, err := h.resetService.RequestReset(c.Request.Context(), req.Email, c.ClientIP())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": genericFailureMessage})
		return
	}

	response := gin.H{"message": result.Message}
	if result.DebugLink != "" {
		response["debug_link"] = result.DebugLink
	}
	c.JSON(http.StatusOK, response)
}

// VerifyResetToken checks a token before the client renders the reset form
func (h *AuthHandler) VerifyResetToken(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "Token parameter is required"})
		return
	}

	result, err := h.resetService.VerifyToken(token)
	if err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": "Invalid or expired reset token"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"valid": false, "error": genericFailureMessage})
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": result.Valid, "email": result.Email})
}

// ResetPassword consumes a reset token and applies the new password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token              string `json:"token" binding:"required"`
		NewPassword        string `json:"new_password" binding:"required"`
		NewPasswordConfirm string `json:"new_password_confirm" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.resetService.ConfirmReset(req.Token, req.NewPassword, req.NewPasswordConfirm)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully. You can now login with your new password."})
	case errors.Is(err, services.ErrPasswordMismatch),
		errors.Is(err, services.ErrPasswordTooShort),
		errors.Is(err, services.ErrPasswordPolicy):
		// Field-level errors travel as an ordered list so the client can
		// render one or many uniformly.
		c.JSON(http.StatusBadRequest, gin.H{"new_password": []string{err.Error()}})
	case errors.Is(err, services.ErrInvalidToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset token. Please request a new password reset."})
	case errors.Is(err, services.ErrConsistencyFault):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong. Please request a new password reset link."})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": genericFailureMessage})
	}
}
