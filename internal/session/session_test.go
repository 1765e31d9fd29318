package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apercky/documinds-sub000/internal/session"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	manager, err := session.NewManager("session-secret", time.Hour)
	require.NoError(t, err)

	token, err := manager.Issue("user-1", "2_20")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, brand, err := manager.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", subject)
	require.Equal(t, "2_20", brand)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	issuing, err := session.NewManager("secret-a", time.Hour)
	require.NoError(t, err)
	verifying, err := session.NewManager("secret-b", time.Hour)
	require.NoError(t, err)

	token, err := issuing.Issue("user-1", "")
	require.NoError(t, err)

	_, _, err = verifying.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	manager, err := session.NewManager("session-secret", time.Nanosecond)
	require.NoError(t, err)

	token, err := manager.Issue("user-1", "")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, _, err = manager.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	manager, err := session.NewManager("session-secret", time.Hour)
	require.NoError(t, err)

	_, _, err = manager.Verify("not-a-token")
	require.Error(t, err)
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := session.NewManager("", time.Hour)
	require.Error(t, err)
}
