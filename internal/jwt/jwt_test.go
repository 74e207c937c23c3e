package jwt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretMatcherPlain(t *testing.T) {
	match := NewSecretMatcher("s3cret")
	assert.True(t, match("s3cret"))
	assert.False(t, match("s3cret "))
	assert.False(t, match(""))
	assert.False(t, match("other"))
}

func TestSecretMatcherHashed(t *testing.T) {
	hashed, err := HashSecret("s3cret")
	require.NoError(t, err)
	require.True(t, IsHashed(hashed))

	match := NewSecretMatcher(hashed)
	assert.True(t, match("s3cret"))
	assert.False(t, match("wrong"))
	assert.False(t, match(hashed))
	assert.False(t, match(""))
}

func TestSecretMatcherEmpty(t *testing.T) {
	match := NewSecretMatcher("")
	assert.False(t, match(""))
	assert.False(t, match("anything"))
}

func TestAdminTokenRoundTrip(t *testing.T) {
	SetRoleSecret(RoleAdmin, "admin-secret")
	t.Cleanup(func() { SetRoleSecret(RoleAdmin, "") })

	tok, err := CreateToken(Operator{Id: "ops"}, RoleAdmin, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(tok.AccessToken, "a"))
	assert.Greater(t, tok.ExpiresAt, time.Now().Unix())

	claims, err := ParseToken(tok.AccessToken, RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims["id"])
}

func TestParseTokenRejects(t *testing.T) {
	SetRoleSecret(RoleAdmin, "admin-secret")
	t.Cleanup(func() { SetRoleSecret(RoleAdmin, "") })

	expired, err := CreateToken(Operator{Id: "ops"}, RoleAdmin, time.Now().Add(-time.Minute).Unix())
	require.NoError(t, err)
	_, err = ParseToken(expired.AccessToken, RoleAdmin)
	assert.Error(t, err)

	valid, err := CreateToken(Operator{Id: "ops"}, RoleAdmin, 0)
	require.NoError(t, err)
	_, err = ParseToken(strings.TrimSuffix(valid.AccessToken, "a"), RoleAdmin)
	assert.Error(t, err)

	_, err = ParseToken("", RoleAdmin)
	assert.Error(t, err)

	SetRoleSecret(RoleAdmin, "rotated")
	_, err = ParseToken(valid.AccessToken, RoleAdmin)
	assert.Error(t, err)
}

func TestCreateTokenDisabledRole(t *testing.T) {
	SetRoleSecret(RoleAdmin, "")
	_, err := CreateToken(Operator{Id: "ops"}, RoleAdmin, 0)
	assert.ErrorIs(t, err, ErrRoleDisabled)
}
