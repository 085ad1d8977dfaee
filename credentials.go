package authrepo

import (
	"regexp"
	"strings"
)

// Username length bounds
const (
	MinUserNameLength = 3
	MaxUserNameLength = 15
)

// Each character alphanumeric, optionally followed by a single separator.
// The length bound is checked separately since RE2 has no lookahead.
var validUserNameRegex = regexp.MustCompile(`^([A-Za-z0-9][._-]?)*$`)

// Identifier kinds returned by DetectUsernameType
const (
	IdentifierUserName = "username"
	IdentifierEmail    = "email"
)

// DetectUsernameType decides how a login identifier is looked up.
// Anything containing "@" is an email.
func DetectUsernameType(userNameOrEmail string) string {
	if strings.Contains(userNameOrEmail, "@") {
		return IdentifierEmail
	}
	return IdentifierUserName
}

// IsValidUserName reports whether userName satisfies the username format.
func IsValidUserName(userName string) bool {
	if len(userName) < MinUserNameLength || len(userName) > MaxUserNameLength {
		return false
	}
	return validUserNameRegex.MatchString(userName)
}

// ValidateNewUser checks a record about to be created.  A password is required.
func ValidateNewUser(user *UserAuth, password string) error {
	if password == "" {
		return NewInvalidArgumentError("Password", "password is required")
	}
	return validateUser(user)
}

// ValidateUpdatedUser is ValidateNewUser for updates.  No password is
// checked since an update may keep the existing credentials.
func ValidateUpdatedUser(user *UserAuth) error {
	return validateUser(user)
}

func validateUser(user *UserAuth) error {
	if user == nil {
		return NewInvalidArgumentError("UserAuth", "user is required")
	}
	if user.UserName == "" && user.Email == "" {
		return NewInvalidArgumentError("UserName", "username or email is required")
	}
	if user.UserName != "" && !IsValidUserName(user.UserName) {
		return &AuthError{
			Code:    CodeInvalidArgument,
			Field:   "UserName",
			Message: "username must be 3-15 letters or digits, each optionally followed by one of . _ -",
			Value:   user.UserName,
		}
	}
	return nil
}
