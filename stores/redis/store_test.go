package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLayout(t *testing.T) {
	s := NewIdentityStore(nil, "")
	assert.Equal(t, "{authrepo}:user:01H", s.userKey("01H"))
	assert.Equal(t, "{authrepo}:username:john", s.userNameKey("john"))
	assert.Equal(t, "{authrepo}:email:john@example.com", s.emailKey("john@example.com"))
	assert.Equal(t, "{authrepo}:link:google\x00123", s.linkKey("google", "123"))
	assert.NotEqual(t, s.linkKey("a:b", "c"), s.linkKey("a", "b:c"))
	assert.Equal(t, "{authrepo}:links:01H", s.linksKey("01H"))

	custom := NewIdentityStore(nil, "{tenant-a}:")
	assert.Equal(t, "{tenant-a}:user:x", custom.userKey("x"))
}

func TestWithContextCopies(t *testing.T) {
	type key struct{}
	s := NewIdentityStore(nil, "p:")
	ctx := context.WithValue(context.Background(), key{}, "v")
	bound := s.WithContext(ctx)

	assert.Equal(t, ctx, bound.ctx)
	assert.Equal(t, context.Background(), s.ctx)
	assert.Equal(t, "p:", bound.prefix)
}

func TestEmptyKeysMiss(t *testing.T) {
	s := NewIdentityStore(nil, "")
	_, err := s.GetUserAuth("")
	assert.Error(t, err)
	_, err = s.GetUserAuthByUserName("")
	assert.Error(t, err)
	_, err = s.GetUserAuthByEmail("")
	assert.Error(t, err)
}

func TestNewUniversalClientRequiresAddress(t *testing.T) {
	_, err := NewUniversalClient(context.Background(), ClientConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address")
}

func TestNewUniversalClientUnreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewUniversalClient(ctx, ClientConfig{Addrs: []string{"127.0.0.1:1"}})
	assert.Error(t, err)
}

func TestDecodeLink(t *testing.T) {
	link, err := decodeLink([]byte(`{"id":"L1","user_auth_id":"U1","provider":"github","user_id":"42","items":{"scope":"repo"}}`))
	require.NoError(t, err)
	assert.Equal(t, "L1", link.ID)
	assert.Equal(t, "U1", link.UserAuthID)
	assert.Equal(t, map[string]string{"scope": "repo"}, link.Items)

	_, err = decodeLink([]byte(`{`))
	assert.Error(t, err)
}
