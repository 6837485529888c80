package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_RoundTrip(t *testing.T) {
	svc := NewTokenService("s3cret")
	id := uuid.New()

	tok, err := svc.Issue(id, "invite-abc123", time.Now().Add(time.Hour))
	require.NoError(t, err)

	claims, err := svc.Parse(tok)
	require.NoError(t, err)
	got, err := claims.AttemptUUID()
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, "invite-abc123", claims.Invitation)
}

func TestTokenService_RejectsForeignAndExpired(t *testing.T) {
	svc := NewTokenService("s3cret")
	other := NewTokenService("another")

	tok, err := other.Issue(uuid.New(), "invite", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = svc.Parse(tok)
	assert.Error(t, err)

	expired, err := svc.Issue(uuid.New(), "invite", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = svc.Parse(expired)
	assert.Error(t, err)

	_, err = svc.Parse("not-a-token")
	assert.Error(t, err)
}
