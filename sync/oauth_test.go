// ABOUTME: Tests for OAuth configuration and token file handling
// ABOUTME: Covers the XDG token path and token round-trips
package sync

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestOAuthConfigCreation(t *testing.T) {
	config := NewOAuthConfig()

	if config == nil {
		t.Fatal("expected config, got nil")
	}

	if len(config.Scopes) != 3 {
		t.Errorf("expected 3 scopes, got %d", len(config.Scopes))
	}

	// Verify required scopes
	requiredScopes := map[string]bool{
		ScopeGmailReadOnly: false,
		ScopeSpreadsheets:  false,
		ScopeDriveFile:     false,
	}

	for _, scope := range config.Scopes {
		if _, ok := requiredScopes[scope]; ok {
			requiredScopes[scope] = true
		}
	}

	for scope, found := range requiredScopes {
		if !found {
			t.Errorf("missing required scope: %s", scope)
		}
	}
}

func TestTokenPathXDG(t *testing.T) {
	path := TokenPath()

	expectedBase := filepath.Join(xdg.DataHome, "leadsync")
	if !strings.HasPrefix(path, expectedBase) {
		t.Errorf("expected path under %s, got %s", expectedBase, path)
	}

	if filepath.Base(path) != "google-credentials.json" {
		t.Errorf("expected filename google-credentials.json, got %s", filepath.Base(path))
	}
}

func TestTokenRoundTripOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	expiry := time.Date(2025, 9, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, saveTokenTo(path, &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: expiry}))

	token, err := loadTokenFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "a", token.AccessToken)
	assert.Equal(t, "r", token.RefreshToken)
	assert.True(t, expiry.Equal(token.Expiry))

	_, err = loadTokenFrom(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRequireOAuthConfig(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")
	_, err := RequireOAuthConfig()
	assert.Error(t, err)

	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	config, err := RequireOAuthConfig()
	require.NoError(t, err)
	assert.Equal(t, "id", config.ClientID)
}

type staticSource struct{ tokens []string }

func (s *staticSource) Token() (*oauth2.Token, error) {
	tok := s.tokens[0]
	if len(s.tokens) > 1 {
		s.tokens = s.tokens[1:]
	}
	return &oauth2.Token{AccessToken: tok}, nil
}

func TestSavingTokenSourcePersistsOnlyChanges(t *testing.T) {
	var saved []string
	src := &savingTokenSource{
		base: &staticSource{tokens: []string{"old", "new", "new"}},
		last: "old",
		save: func(tok *oauth2.Token) error {
			saved = append(saved, tok.AccessToken)
			return nil
		},
	}

	for i := 0; i < 3; i++ {
		_, err := src.Token()
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"new"}, saved)
}
