package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPaths struct {
	LoginPath string `validate:"required,startswith=/"`
	Email     string `validate:"omitempty,email"`
	Interval  int    `validate:"gt=0"`
	Store     string `validate:"oneof=memory cookie redis"`
}

func validPaths() testPaths {
	return testPaths{LoginPath: "/auth", Email: "analyst@example.com", Interval: 300, Store: "cookie"}
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := validPaths()
		assert.NoError(t, ValidateStruct(&s))
	})

	tests := []struct {
		name   string
		mutate func(*testPaths)
		field  string
		msg    string
	}{
		{"missing required field", func(s *testPaths) { s.LoginPath = "" }, "testPaths.LoginPath", "testPaths.LoginPath is required"},
		{"relative path", func(s *testPaths) { s.LoginPath = "auth" }, "testPaths.LoginPath", "testPaths.LoginPath must start with /"},
		{"invalid email", func(s *testPaths) { s.Email = "nope" }, "testPaths.Email", "testPaths.Email must be a valid email"},
		{"non-positive interval", func(s *testPaths) { s.Interval = 0 }, "testPaths.Interval", "testPaths.Interval must be greater than 0"},
		{"unknown store", func(s *testPaths) { s.Store = "disk" }, "testPaths.Store", "testPaths.Store must be one of: memory cookie redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validPaths()
			tt.mutate(&s)

			err := ValidateStruct(&s)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, tt.msg, GetValidationFields(err)[tt.field])
		})
	}
}

func TestValidateStruct_NotAStruct(t *testing.T) {
	err := ValidateStruct("not a struct")
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Message: "Test validation error",
		Fields: map[string]string{
			"field1": "error1",
		},
	}

	assert.Equal(t, "Test validation error", err.Error())
}

func TestGetValidationFields(t *testing.T) {
	t.Run("gets fields from validation error", func(t *testing.T) {
		fields := map[string]string{"field1": "error1"}
		err := &ValidationError{Message: "test", Fields: fields}

		assert.Equal(t, fields, GetValidationFields(err))
	})

	t.Run("returns nil for non-validation error", func(t *testing.T) {
		assert.Nil(t, GetValidationFields(assert.AnError))
		assert.False(t, IsValidationError(assert.AnError))
	})
}
