package auth

import (
	"testing"
	"time"

	"github.com/dstepanov-dev/localnotes/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_IssueValidateRoundTrip(t *testing.T) {
	m, err := NewTokenManager([]byte("secret"), time.Hour, nil)
	require.NoError(t, err)

	token, expiresAt, err := m.Issue("u1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	userID, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestTokenManager_RejectsEmptySecretAndUser(t *testing.T) {
	_, err := NewTokenManager(nil, time.Hour, nil)
	require.Error(t, err)

	m, err := NewTokenManager([]byte("secret"), time.Hour, nil)
	require.NoError(t, err)
	_, _, err = m.Issue("")
	require.Error(t, err)
}

func TestTokenManager_ExpiredToken(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m, err := NewTokenManager([]byte("secret"), time.Minute, clock)
	require.NoError(t, err)

	token, _, err := m.Issue("u1")
	require.NoError(t, err)

	// advance past the ttl
	now = now.Add(2 * time.Minute)
	_, err = m.Validate(token)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestTokenManager_RejectsGarbageAndWrongSecret(t *testing.T) {
	m, err := NewTokenManager([]byte("secret"), time.Hour, nil)
	require.NoError(t, err)

	_, err = m.Validate("not-a-token")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	other, err := NewTokenManager([]byte("different"), time.Hour, nil)
	require.NoError(t, err)
	token, _, err := other.Issue("u1")
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}
