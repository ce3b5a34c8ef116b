package security_test

import (
	"testing"
	"time"

	"github.com/sakashimaa/go-fulfillment/internal/security"
	"github.com/stretchr/testify/require"
)

func TestAdminToken_RoundTrip(t *testing.T) {
	token, err := security.GenerateAdminToken("s3cret", time.Minute)
	require.NoError(t, err)

	claims, err := security.ValidateAdminToken("s3cret", token)
	require.NoError(t, err)
	require.Equal(t, security.RoleAdmin, claims.Role)
	require.NotEmpty(t, claims.ID)
}

func TestAdminToken_WrongSecret(t *testing.T) {
	token, err := security.GenerateAdminToken("s3cret", time.Minute)
	require.NoError(t, err)

	_, err = security.ValidateAdminToken("other-secret", token)
	require.Error(t, err)
}

func TestAdminToken_Expired(t *testing.T) {
	token, err := security.GenerateAdminToken("s3cret", -time.Minute)
	require.NoError(t, err)

	_, err = security.ValidateAdminToken("s3cret", token)
	require.Error(t, err)
}

func TestAdminToken_EmptySecret(t *testing.T) {
	_, err := security.GenerateAdminToken("", time.Minute)
	require.Error(t, err)

	_, err = security.ValidateAdminToken("", "whatever")
	require.Error(t, err)
}

func TestAdminToken_Garbage(t *testing.T) {
	_, err := security.ValidateAdminToken("s3cret", "not.a.jwt")
	require.Error(t, err)
}
