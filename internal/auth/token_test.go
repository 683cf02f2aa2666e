// ABOUTME: Tests for operator token minting, verification, and secret comparison.

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerify(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"))

	token, err := issuer.Mint("front-desk", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	operator, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "front-desk", operator)
}

func TestVerifyExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"))

	token, err := issuer.Mint("front-desk", -time.Minute)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer([]byte("secret-a")).Mint("front-desk", time.Hour)
	require.NoError(t, err)

	_, err = NewTokenIssuer([]byte("secret-b")).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyGarbage(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"))

	for _, bad := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := issuer.Verify(bad)
		assert.Error(t, err, "token %q", bad)
	}
}

func TestMintRequiresOperator(t *testing.T) {
	_, err := NewTokenIssuer([]byte("test-secret")).Mint("", time.Hour)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestEqualSecret(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"))
	assert.True(t, issuer.EqualSecret("test-secret"))
	assert.False(t, issuer.EqualSecret("wrong"))
	assert.False(t, issuer.EqualSecret(""))

	// An unset secret must never authenticate anything
	assert.False(t, NewTokenIssuer(nil).EqualSecret(""))
}
