package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndFormat(t *testing.T) {
	type req struct {
		Email string `validate:"required,email"`
		Name  string `validate:"required"`
	}

	require.NoError(t, Validate(req{Email: "jane@example.com", Name: "Jane"}))

	err := Validate(req{Email: "not-an-email"})
	require.Error(t, err)
	msg := FormatValidationError(err)
	assert.Contains(t, msg, "Email must be a valid email address")
	assert.Contains(t, msg, "Name is required")
}
