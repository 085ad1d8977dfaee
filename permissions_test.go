package authrepo_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ar "github.com/panyam/authrepo"
)

func TestParseRoles(t *testing.T) {
	assert.Nil(t, ar.ParseRoles(""))
	assert.Equal(t, []string{"admin", "editor"}, ar.ParseRoles("admin, editor admin"))
	assert.Equal(t, []string{"a", "b", "c"}, ar.UnionRoles([]string{"a", "b"}, []string{"b", "c"}))
	assert.Nil(t, ar.UnionRoles(nil, nil))
}


func TestSessionPermissions(t *testing.T) {
	session := &ar.AuthSession{Roles: []string{"editor"}, Permissions: []string{"posts:read", "posts:write"}}
	assert.True(t, session.HasRole("editor"))
	assert.False(t, session.HasRole(ar.RoleAdmin))
	assert.True(t, session.HasPermission("posts:read"))
	assert.True(t, session.HasAllPermissions("posts:read", "posts:write"))
	assert.False(t, session.HasAllPermissions("posts:read", "posts:delete"))

	admin := &ar.AuthSession{Roles: []string{ar.RoleAdmin}}
	assert.True(t, admin.HasAllPermissions("anything"))
}

func TestRequireRole(t *testing.T) {
	handlers, _ := setupHandlers(t)
	_, err := handlers.Repo.CreateUserAuth(&ar.UserAuth{UserName: "root", Roles: []string{ar.RoleAdmin}}, "secret")
	require.NoError(t, err)
	_, err = handlers.Repo.CreateUserAuth(&ar.UserAuth{UserName: "john"}, "secret")
	require.NoError(t, err)

	gated := handlers.Session.LoadAndSave(handlers.RequireRole(ar.RoleAdmin, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	call := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if user != "" {
			req.SetBasicAuth(user, "secret")
		}
		rec := httptest.NewRecorder()
		gated.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusUnauthorized, call(""))
	assert.Equal(t, http.StatusForbidden, call("john"))
	assert.Equal(t, http.StatusNoContent, call("root"))
}
