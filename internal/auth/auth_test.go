package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/globus-go/internal/tokenfile"
)

// testTokenJSON is a Globus token response carrying a transfer token as the
// primary token and an auth token in other_tokens.
const testTokenJSON = `{
	"access_token": "auth-access",
	"token_type": "Bearer",
	"refresh_token": "auth-refresh",
	"expires_in": 172800,
	"resource_server": "auth.globus.org",
	"scope": "openid email profile",
	"other_tokens": [{
		"access_token": "transfer-access",
		"token_type": "Bearer",
		"refresh_token": "transfer-refresh",
		"expires_in": 172800,
		"resource_server": "transfer.api.globus.org",
		"scope": "urn:globus:auth:scope:transfer.api.globus.org:all"
	}]
}`

// newMockAuthServer serves the Globus Auth token and revoke endpoints.
// tokenHandler controls the token endpoint; nil returns testTokenJSON.
func newMockAuthServer(t *testing.T, tokenHandler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var revoked atomic.Int32

	mux := http.NewServeMux()

	handler := tokenHandler
	if handler == nil {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(testTokenJSON))
		}
	}

	mux.HandleFunc("POST /v2/oauth2/token", handler)
	mux.HandleFunc("POST /v2/oauth2/token/revoke", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.PostForm.Get("token"))
		revoked.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, &revoked
}

func TestLoginNative_Success(t *testing.T) {
	t.Setenv("SSH_TTY", "")
	t.Setenv("SSH_CONNECTION", "")

	srv, _ := newMockAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "pasted-code", r.PostForm.Get("code"))
		assert.Equal(t, "native-client", r.PostForm.Get("client_id"))
		assert.NotEmpty(t, r.PostForm.Get("code_verifier"))
		assert.Equal(t, DefaultRedirectURL, r.PostForm.Get("redirect_uri"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testTokenJSON))
	})

	tokenPath := filepath.Join(t.TempDir(), "tokens.json")

	var opened string
	var out bytes.Buffer

	tf, err := LoginNative(context.Background(),
		Settings{BaseURL: srv.URL, ClientID: "native-client"},
		tokenPath,
		Prompt{
			Out: &out,
			In:  strings.NewReader("  pasted-code \n"),
			OpenURL: func(u string) error {
				opened = u
				return nil
			},
		},
		slog.Default(),
	)
	require.NoError(t, err)

	assert.Equal(t, "transfer-access", tf.Token(ResourceServerTransfer).AccessToken)
	assert.Equal(t, "auth-access", tf.Token(ResourceServerAuth).AccessToken)

	// The printed URL is the one that was opened.
	assert.Contains(t, out.String(), "Native App Authorization URL:")
	assert.Contains(t, out.String(), "Enter the auth code:")
	require.NotEmpty(t, opened)
	assert.Contains(t, out.String(), opened)

	u, err := url.Parse(opened)
	require.NoError(t, err)
	assert.Equal(t, "/v2/oauth2/authorize", u.Path)
	assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	assert.Equal(t, "offline", u.Query().Get("access_type"))
	assert.Contains(t, u.Query().Get("scope"), TransferScope)

	loaded, err := tokenfile.Load(tokenPath)
	require.NoError(t, err)
	assert.Equal(t, "transfer-refresh", loaded.Token(ResourceServerTransfer).RefreshToken)
}

func TestLoginNative_RemoteSessionSkipsBrowser(t *testing.T) {
	t.Setenv("SSH_TTY", "/dev/pts/0")

	srv, _ := newMockAuthServer(t, nil)

	_, err := LoginNative(context.Background(),
		Settings{BaseURL: srv.URL},
		filepath.Join(t.TempDir(), "tokens.json"),
		Prompt{
			Out: &bytes.Buffer{},
			In:  strings.NewReader("code\n"),
			OpenURL: func(string) error {
				t.Fatal("browser must not open in a remote session")
				return nil
			},
		},
		slog.Default(),
	)
	require.NoError(t, err)
}

func TestLoginNative_EmptyCode(t *testing.T) {
	srv, _ := newMockAuthServer(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("no exchange expected without a code")
	})

	_, err := LoginNative(context.Background(),
		Settings{BaseURL: srv.URL},
		filepath.Join(t.TempDir(), "tokens.json"),
		Prompt{Out: &bytes.Buffer{}, In: strings.NewReader("\n"), NoBrowser: true},
		slog.Default(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no auth code")
}

func TestLoginNative_ExchangeError(t *testing.T) {
	srv, _ := newMockAuthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	tokenPath := filepath.Join(t.TempDir(), "tokens.json")

	_, err := LoginNative(context.Background(),
		Settings{BaseURL: srv.URL},
		tokenPath,
		Prompt{Out: &bytes.Buffer{}, In: strings.NewReader("bad\n"), NoBrowser: true},
		slog.Default(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token exchange failed")

	_, statErr := os.Stat(tokenPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSplitByResourceServer(t *testing.T) {
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(testTokenJSON), &raw))

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := (&oauth2.Token{AccessToken: "auth-access", RefreshToken: "auth-refresh"}).WithExtra(raw)

	tf, err := SplitByResourceServer(tok, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ResourceServerAuth, ResourceServerTransfer}, tf.ResourceServers())

	tr := tf.Token(ResourceServerTransfer)
	assert.Equal(t, "transfer-refresh", tr.RefreshToken)
	assert.Equal(t, now.Add(48*time.Hour), tr.Expiry)
}

func TestSplitByResourceServer_MissingResourceServer(t *testing.T) {
	_, err := SplitByResourceServer(&oauth2.Token{AccessToken: "x"}, time.Now())
	require.Error(t, err)
}

func TestClientCredentials(t *testing.T) {
	srv, _ := newMockAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, TransferScope, r.PostForm.Get("scope"))

		id, secret, ok := r.BasicAuth()
		if !ok {
			id, secret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
		}

		assert.Equal(t, "bot", id)
		assert.Equal(t, "s3cret", secret)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"bot-transfer","token_type":"Bearer","expires_in":172800,"resource_server":"transfer.api.globus.org"}`))
	})

	tf, err := ClientCredentials(context.Background(), Settings{BaseURL: srv.URL, ClientID: "bot", ClientSecret: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "bot-transfer", tf.Token(ResourceServerTransfer).AccessToken)
}

func TestClientCredentials_MissingSecret(t *testing.T) {
	_, err := ClientCredentials(context.Background(), Settings{ClientID: "bot"})
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = ClientCredentialsSource(context.Background(), Settings{ClientID: "bot"}, ResourceServerTransfer, slog.Default())
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestClientCredentialsSource_ReusesToken(t *testing.T) {
	var grants atomic.Int32

	srv, _ := newMockAuthServer(t, func(w http.ResponseWriter, _ *http.Request) {
		grants.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"bot-transfer","token_type":"Bearer","expires_in":3600,"resource_server":"transfer.api.globus.org"}`))
	})

	src, err := ClientCredentialsSource(context.Background(),
		Settings{BaseURL: srv.URL, ClientID: "bot", ClientSecret: "s"}, ResourceServerTransfer, slog.Default())
	require.NoError(t, err)

	for range 3 {
		got, tokErr := src.Token()
		require.NoError(t, tokErr)
		assert.Equal(t, "bot-transfer", got)
	}

	assert.Equal(t, int32(1), grants.Load())
}

func TestClientCredentialsSource_WrongResourceServer(t *testing.T) {
	srv, _ := newMockAuthServer(t, nil)

	src, err := ClientCredentialsSource(context.Background(),
		Settings{BaseURL: srv.URL, ClientID: "bot", ClientSecret: "s"}, "groups.api.globus.org", slog.Default())
	require.NoError(t, err)

	_, err = src.Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token for groups.api.globus.org")
}

func TestTokenSourceFromFile_NotLoggedIn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent.json")

	_, err := TokenSourceFromFile(context.Background(), Settings{}, path, ResourceServerTransfer, slog.Default())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestTokenSourceFromFile_MissingResourceServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	tf := tokenfile.New()
	tf.Put(ResourceServerAuth, &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)})
	require.NoError(t, tokenfile.Save(path, tf))

	_, err := TokenSourceFromFile(context.Background(), Settings{}, path, ResourceServerTransfer, slog.Default())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestTokenSourceFromFile_ValidToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	tf := tokenfile.New()
	tf.Put(ResourceServerTransfer, &oauth2.Token{
		AccessToken:  "saved-access",
		RefreshToken: "saved-refresh",
		Expiry:       time.Now().Add(time.Hour),
	})
	require.NoError(t, tokenfile.Save(path, tf))

	src, err := TokenSourceFromFile(context.Background(), Settings{}, path, ResourceServerTransfer, slog.Default())
	require.NoError(t, err)

	got, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "saved-access", got)
	assert.NotNil(t, src.OAuth2())
}

func TestRefreshConfig_OnTokenChangeKeepsOtherServers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	tf := tokenfile.New()
	tf.Put(ResourceServerTransfer, &oauth2.Token{AccessToken: "old"})
	tf.Put(ResourceServerAuth, &oauth2.Token{AccessToken: "auth"})
	tf.Meta = map[string]string{"username": "alice@globusid.org"}
	require.NoError(t, tokenfile.Save(path, tf))

	cfg := refreshConfig(Settings{}.withDefaults(), path, ResourceServerTransfer, slog.Default())
	require.NotNil(t, cfg.OnTokenChange)

	cfg.OnTokenChange(&oauth2.Token{AccessToken: "refreshed", RefreshToken: "r2", Expiry: time.Now().Add(time.Hour)})

	loaded, err := tokenfile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "refreshed", loaded.Token(ResourceServerTransfer).AccessToken)
	assert.Equal(t, "auth", loaded.Token(ResourceServerAuth).AccessToken)
	assert.Equal(t, "alice@globusid.org", loaded.Meta["username"])
}

func TestSource_Error(t *testing.T) {
	cfg := &oauth2.Config{
		ClientID: "test",
		Endpoint: oauth2.Endpoint{TokenURL: "http://invalid.test/token"},
	}

	expired := &oauth2.Token{AccessToken: "expired", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)}
	src := NewSource(cfg.TokenSource(context.Background(), expired), slog.Default())

	_, err := src.Token()
	require.Error(t, err)
}

func TestSettingsEndpoint_AuthStyle(t *testing.T) {
	native := Settings{}.withDefaults()
	assert.Equal(t, oauth2.AuthStyleInParams, native.endpoint().AuthStyle)
	assert.Equal(t, "https://auth.globus.org/v2/oauth2/token", native.endpoint().TokenURL)
	assert.Equal(t, DefaultScopes, native.Scopes)

	confidential := Settings{ClientSecret: "s"}.withDefaults()
	assert.Equal(t, oauth2.AuthStyleAutoDetect, confidential.endpoint().AuthStyle)
}

func TestLogout_RevokesAndRemoves(t *testing.T) {
	srv, revoked := newMockAuthServer(t, nil)
	path := filepath.Join(t.TempDir(), "tokens.json")

	tf := tokenfile.New()
	tf.Put(ResourceServerTransfer, &oauth2.Token{AccessToken: "a1", RefreshToken: "r1"})
	tf.Put(ResourceServerAuth, &oauth2.Token{AccessToken: "a2"})
	require.NoError(t, tokenfile.Save(path, tf))

	require.NoError(t, Logout(context.Background(), Settings{BaseURL: srv.URL}, path, srv.Client(), slog.Default()))

	assert.Equal(t, int32(3), revoked.Load())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLogout_NoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent.json")

	assert.NoError(t, Logout(context.Background(), Settings{}, path, nil, slog.Default()))
}

func TestLogout_RevokeFailureStillRemoves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	tf := tokenfile.New()
	tf.Put(ResourceServerTransfer, &oauth2.Token{AccessToken: "a1"})
	require.NoError(t, tokenfile.Save(path, tf))

	require.NoError(t, Logout(context.Background(), Settings{BaseURL: "http://127.0.0.1:1"}, path, nil, slog.Default()))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateState(t *testing.T) {
	a, err := generateState()
	require.NoError(t, err)

	b, err := generateState()
	require.NoError(t, err)

	assert.Len(t, a, stateTokenBytes*2)
	assert.NotEqual(t, a, b)
}
