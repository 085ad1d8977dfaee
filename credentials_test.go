package authrepo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidUserName(t *testing.T) {
	valid := []string{"abc", "a.b-c", "ab_12", "john", "John.Smith", "a1b2c3d4e5f6g7h", "abc."}
	for _, name := range valid {
		assert.True(t, IsValidUserName(name), "expected %q to be valid", name)
	}

	invalid := []string{"", "ab", strings.Repeat("a", 16), "abc!", "a..b", ".abc", "a b c", "john@example.com", "a-_b", "ünï"}
	for _, name := range invalid {
		assert.False(t, IsValidUserName(name), "expected %q to be invalid", name)
	}
}

func TestValidateNewUser(t *testing.T) {
	tests := []struct {
		name     string
		user     *UserAuth
		password string
		field    string
	}{
		{"valid username", &UserAuth{UserName: "john"}, "secret", ""},
		{"valid email only", &UserAuth{Email: "john@example.com"}, "secret", ""},
		{"missing password", &UserAuth{UserName: "john"}, "", "Password"},
		{"missing identifiers", &UserAuth{}, "secret", "UserName"},
		{"bad username", &UserAuth{UserName: "ab", Email: "john@example.com"}, "secret", "UserName"},
		{"nil user", nil, "secret", "UserAuth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNewUser(tt.user, tt.password)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidArgument)
			authErr, ok := err.(*AuthError)
			if assert.True(t, ok) {
				assert.Equal(t, tt.field, authErr.Field)
			}
		})
	}
}

func TestValidateUpdatedUser_PasswordOptional(t *testing.T) {
	assert.NoError(t, ValidateUpdatedUser(&UserAuth{UserName: "john"}))
	assert.ErrorIs(t, ValidateUpdatedUser(&UserAuth{UserName: "j"}), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateUpdatedUser(&UserAuth{}), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateUpdatedUser(nil), ErrInvalidArgument)
}

func TestDetectUsernameType(t *testing.T) {
	assert.Equal(t, IdentifierEmail, DetectUsernameType("john@example.com"))
	assert.Equal(t, IdentifierUserName, DetectUsernameType("john"))
	assert.Equal(t, IdentifierUserName, DetectUsernameType("+15551234"))
}

func TestAuthError(t *testing.T) {
	err := NewDuplicateUserError("john")
	assert.ErrorIs(t, err, ErrDuplicateUser)
	assert.NotErrorIs(t, err, ErrDuplicateEmail)
	assert.Equal(t, "user already exists: john", err.Error())

	assert.ErrorIs(t, NewDuplicateEmailError("a@b.c"), ErrDuplicateEmail)
	assert.ErrorIs(t, &AuthError{Code: CodeVerificationFailed, Message: "x"}, ErrVerificationFailed)
	assert.True(t, IsNotFound(&AuthError{Code: CodeNotFound, Message: "x"}))
	assert.False(t, IsNotFound(NewInvalidArgumentError("f", "m")))
}
