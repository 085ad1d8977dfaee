package authrepo

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (possibly wrapped) by the repository and its stores.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrDuplicateEmail     = errors.New("email already exists")
	ErrNotFound           = errors.New("not found")
	ErrVerificationFailed = errors.New("verification failed")
)

// Error codes carried by AuthError
const (
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeDuplicateUser      = "DUPLICATE_USER"
	CodeDuplicateEmail     = "DUPLICATE_EMAIL"
	CodeNotFound           = "NOT_FOUND"
	CodeVerificationFailed = "VERIFICATION_FAILED"
)

// AuthError is a user facing failure.  It matches the sentinel for its Code
// under errors.Is so callers never need to inspect the code directly.
type AuthError struct {
	Code    string
	Message string

	// Field names the offending input, eg "UserName" or "Password"
	Field string

	// Value is the offending value for duplicates.  Never set for passwords.
	Value string
}

func (e *AuthError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Value)
	}
	return e.Message
}

func (e *AuthError) Is(target error) bool {
	switch e.Code {
	case CodeInvalidArgument:
		return target == ErrInvalidArgument
	case CodeDuplicateUser:
		return target == ErrDuplicateUser
	case CodeDuplicateEmail:
		return target == ErrDuplicateEmail
	case CodeNotFound:
		return target == ErrNotFound
	case CodeVerificationFailed:
		return target == ErrVerificationFailed
	}
	return false
}

func NewInvalidArgumentError(field, message string) *AuthError {
	return &AuthError{Code: CodeInvalidArgument, Field: field, Message: message}
}

func NewDuplicateUserError(userName string) *AuthError {
	return &AuthError{Code: CodeDuplicateUser, Field: "UserName", Message: "user already exists", Value: userName}
}

func NewDuplicateEmailError(email string) *AuthError {
	return &AuthError{Code: CodeDuplicateEmail, Field: "Email", Message: "email already exists", Value: email}
}

// IsNotFound reports whether err means no record matched.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
