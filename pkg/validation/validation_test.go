package validation_test

import (
	"testing"

	"github.com/securecrop/backend/pkg/validation"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "farmer@example.com", validation.NormalizeEmail("  Farmer@Example.COM "))
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, validation.ValidateEmail("farmer@example.com"))
	assert.True(t, validation.ValidateEmail("  UPPER@Example.com  "))
	assert.False(t, validation.ValidateEmail("not-an-email"))
	assert.False(t, validation.ValidateEmail("missing@domain"))
	assert.False(t, validation.ValidateEmail(""))
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"farmer@example.com", "f****r@example.com"},
		{"ab@example.com", "**@example.com"},
		{"a@example.com", "*@example.com"},
		{"abc@example.com", "a*c@example.com"},
		{"not-an-email", "not-an-email"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, validation.MaskEmail(tt.in), tt.in)
	}
}
