package authrepo

import (
	"strings"
)

// Roles granted by the CLI and checked by RequireRole in hosts that want an
// administrator gate.  Anything else is application defined.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// ParseRoles splits a space or comma separated list, dropping blanks and
// duplicates while keeping the first-seen order.
func ParseRoles(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(fields))
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			result = append(result, f)
		}
	}
	return result
}

// UnionRoles returns a followed by the entries of b it does not already hold
func UnionRoles(a, b []string) []string {
	result := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsAll(granted, required []string) bool {
	grantedSet := make(map[string]bool, len(granted))
	for _, s := range granted {
		grantedSet[s] = true
	}
	for _, s := range required {
		if !grantedSet[s] {
			return false
		}
	}
	return true
}

func (s *AuthSession) HasRole(role string) bool {
	return containsString(s.Roles, role)
}

func (s *AuthSession) HasPermission(permission string) bool {
	return containsString(s.Permissions, permission)
}

// HasAllPermissions is true when every required permission was granted.
// Admins pass regardless.
func (s *AuthSession) HasAllPermissions(required ...string) bool {
	return s.HasRole(RoleAdmin) || containsAll(s.Permissions, required)
}

func (u *UserAuth) HasRole(role string) bool {
	return containsString(u.Roles, role)
}
