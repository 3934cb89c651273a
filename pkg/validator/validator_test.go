package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type keyInput struct {
	Role   string `validate:"required,key_role"`
	Status string `validate:"omitempty,key_status"`
	IP     string `validate:"omitempty,ip"`
}

func TestValidator_Validate(t *testing.T) {
	v := New()

	t.Run("valid input", func(t *testing.T) {
		err := v.Validate(loginInput{Email: "user@example.com", Password: "long-enough"})
		assert.NoError(t, err)
	})

	t.Run("collects field errors", func(t *testing.T) {
		err := v.Validate(loginInput{Email: "not-an-email", Password: "short"})
		require.Error(t, err)

		var verrs ValidationErrors
		require.ErrorAs(t, err, &verrs)
		require.Len(t, verrs, 2)
		assert.Equal(t, "email", verrs[0].Field)
		assert.Equal(t, "must be a valid email address", verrs[0].Message)
		assert.Equal(t, "password", verrs[1].Field)
		assert.Equal(t, "must be at least 8 characters", verrs[1].Message)
	})
}

func TestValidator_CustomRules(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		input   keyInput
		wantErr bool
	}{
		{name: "admin role", input: keyInput{Role: "admin"}, wantErr: false},
		{name: "client role", input: keyInput{Role: "client"}, wantErr: false},
		{name: "unknown role", input: keyInput{Role: "superuser"}, wantErr: true},
		{name: "valid status", input: keyInput{Role: "client", Status: "blocked"}, wantErr: false},
		{name: "unknown status", input: keyInput{Role: "client", Status: "paused"}, wantErr: true},
		{name: "valid ip", input: keyInput{Role: "client", IP: "203.0.113.9"}, wantErr: false},
		{name: "garbage ip", input: keyInput{Role: "client", IP: "nope"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "email", Message: "is required"},
		{Field: "password", Message: "is required"},
	}
	assert.Equal(t, "email: is required; password: is required", errs.Error())
	assert.Empty(t, ValidationErrors{}.Error())
}
