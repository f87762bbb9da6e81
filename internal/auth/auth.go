// Package auth obtains and persists Globus Auth tokens: the native-app
// authorization code flow with PKCE, the client-credentials grant for
// confidential apps, refresh with write-back to the token cache, identity
// lookups, and OIDC userinfo.
package auth

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tonimelisma/globus-go/internal/tokenfile"
)

// Resource servers whose tokens the tool uses.
const (
	ResourceServerTransfer = "transfer.api.globus.org"
	ResourceServerAuth     = "auth.globus.org"
)

// Defaults for the public native app registered for globus-go.
const (
	DefaultBaseURL     = "https://auth.globus.org"
	DefaultClientID    = "079bdf4e-9666-4816-ac01-7eab9dc82b93"
	DefaultRedirectURL = "https://auth.globus.org/v2/web/auth-code"
	TransferScope      = "urn:globus:auth:scope:transfer.api.globus.org:all"
)

// DefaultScopes are requested by the native flow when none are configured.
var DefaultScopes = []string{"openid", "email", "profile", TransferScope}

// ErrNotLoggedIn is returned when the token cache has no token for the
// requested resource server.
var ErrNotLoggedIn = errors.New("auth: not logged in (run 'globus-go login')")

// ErrMissingSecret is returned when the client-credentials grant is chosen
// without a client secret.
var ErrMissingSecret = errors.New("auth: client-credentials auth requires a client secret")

// Settings identifies the Globus Auth app and server to talk to. Zero fields
// take the package defaults.
type Settings struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

func (s Settings) withDefaults() Settings {
	if s.BaseURL == "" {
		s.BaseURL = DefaultBaseURL
	}

	s.BaseURL = strings.TrimRight(s.BaseURL, "/")

	if s.ClientID == "" {
		s.ClientID = DefaultClientID
	}

	if s.RedirectURL == "" {
		s.RedirectURL = DefaultRedirectURL
	}

	if len(s.Scopes) == 0 {
		s.Scopes = DefaultScopes
	}

	return s
}

func (s Settings) endpoint() oauth2.Endpoint {
	ep := oauth2.Endpoint{
		AuthURL:  s.BaseURL + "/v2/oauth2/authorize",
		TokenURL: s.BaseURL + "/v2/oauth2/token",
	}

	// Native apps have no secret and must send client_id in the form body.
	if s.ClientSecret == "" {
		ep.AuthStyle = oauth2.AuthStyleInParams
	}

	return ep
}

// Prompt is the terminal the native flow talks to.
type Prompt struct {
	Out       io.Writer
	In        io.Reader
	OpenURL   func(string) error
	NoBrowser bool
}

// IsRemoteSession reports whether the process runs over SSH, where a browser
// cannot be opened on the user's machine.
func IsRemoteSession() bool {
	return os.Getenv("SSH_TTY") != "" || os.Getenv("SSH_CONNECTION") != ""
}

// LoginNative performs the native-app authorization code + PKCE flow:
//  1. Prints the authorization URL (and opens it when possible)
//  2. Reads the auth code the user pastes back
//  3. Exchanges it for tokens
//  4. Splits the response by resource server and saves the cache at tokenPath
func LoginNative(ctx context.Context, s Settings, tokenPath string, p Prompt, logger *slog.Logger) (*tokenfile.File, error) {
	s = s.withDefaults()

	cfg := &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Endpoint:     s.endpoint(),
		RedirectURL:  s.RedirectURL,
		Scopes:       s.Scopes,
	}

	return doNativeLogin(ctx, cfg, tokenPath, p, logger)
}

// doNativeLogin implements the native flow. Accepts a pre-built oauth2.Config
// so tests can inject a mock endpoint.
func doNativeLogin(ctx context.Context, cfg *oauth2.Config, tokenPath string, p Prompt, logger *slog.Logger) (*tokenfile.File, error) {
	logger.Info("starting native app auth flow", slog.String("path", tokenPath))

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("auth: generating state token: %w", err)
	}

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	fmt.Fprintf(p.Out, "Native App Authorization URL:\n%s\n", authURL)

	if !p.NoBrowser && !IsRemoteSession() && p.OpenURL != nil {
		if openErr := p.OpenURL(authURL); openErr != nil {
			logger.Warn("failed to open browser", slog.String("error", openErr.Error()))
		}
	}

	code, err := readCode(p)
	if err != nil {
		return nil, err
	}

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("auth: token exchange failed: %w", err)
	}

	tf, err := SplitByResourceServer(tok, time.Now())
	if err != nil {
		return nil, err
	}

	if err := tokenfile.Save(tokenPath, tf); err != nil {
		return nil, fmt.Errorf("auth: saving tokens: %w", err)
	}

	logger.Info("login successful",
		slog.String("path", tokenPath),
		slog.Any("resource_servers", tf.ResourceServers()),
	)

	return tf, nil
}

func readCode(p Prompt) (string, error) {
	fmt.Fprint(p.Out, "Enter the auth code: ")

	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("auth: reading auth code: %w", err)
	}

	code := strings.TrimSpace(line)
	if code == "" {
		return "", fmt.Errorf("auth: no auth code entered")
	}

	return code, nil
}

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// SplitByResourceServer turns one Globus token response into per-resource-
// server tokens. The primary token is tagged with "resource_server"; tokens
// for the other requested resource servers come in "other_tokens".
func SplitByResourceServer(tok *oauth2.Token, now time.Time) (*tokenfile.File, error) {
	rs, _ := tok.Extra("resource_server").(string)
	if rs == "" {
		return nil, fmt.Errorf("auth: token response has no resource_server")
	}

	tf := tokenfile.New()
	tf.Put(rs, &oauth2.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	})

	others, _ := tok.Extra("other_tokens").([]any)
	for _, raw := range others {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		otherRS, _ := m["resource_server"].(string)
		access, _ := m["access_token"].(string)

		if otherRS == "" || access == "" {
			continue
		}

		other := &oauth2.Token{AccessToken: access}
		other.TokenType, _ = m["token_type"].(string)
		other.RefreshToken, _ = m["refresh_token"].(string)

		if secs, ok := m["expires_in"].(float64); ok && secs > 0 {
			other.Expiry = now.Add(time.Duration(secs) * time.Second)
		}

		tf.Put(otherRS, other)
	}

	return tf, nil
}

// ClientCredentials runs the client-credentials grant and returns the tokens
// split by resource server. Nothing is persisted.
func ClientCredentials(ctx context.Context, s Settings) (*tokenfile.File, error) {
	cfg, err := clientCredentialsConfig(s)
	if err != nil {
		return nil, err
	}

	tok, err := cfg.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: client credentials grant failed: %w", err)
	}

	return SplitByResourceServer(tok, time.Now())
}

func clientCredentialsConfig(s Settings) (*clientcredentials.Config, error) {
	if s.ClientSecret == "" {
		return nil, ErrMissingSecret
	}

	if len(s.Scopes) == 0 {
		s.Scopes = []string{TransferScope}
	}

	s = s.withDefaults()

	return &clientcredentials.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		TokenURL:     s.endpoint().TokenURL,
		Scopes:       s.Scopes,
	}, nil
}

// ClientCredentialsSource returns a Source for one resource server backed by
// the client-credentials grant. A new grant runs whenever the token expires.
func ClientCredentialsSource(ctx context.Context, s Settings, resourceServer string, logger *slog.Logger) (*Source, error) {
	cfg, err := clientCredentialsConfig(s)
	if err != nil {
		return nil, err
	}

	grant := &grantSource{ctx: ctx, cfg: cfg, rs: resourceServer}

	return &Source{src: oauth2.ReuseTokenSource(nil, grant), logger: logger}, nil
}

type grantSource struct {
	ctx context.Context //nolint:containedctx // oauth2.TokenSource has no ctx parameter
	cfg *clientcredentials.Config
	rs  string
}

func (g *grantSource) Token() (*oauth2.Token, error) {
	tok, err := g.cfg.Token(g.ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: client credentials grant failed: %w", err)
	}

	tf, err := SplitByResourceServer(tok, time.Now())
	if err != nil {
		return nil, err
	}

	out := tf.Token(g.rs)
	if out == nil {
		return nil, fmt.Errorf("auth: client credentials grant returned no token for %s (check scopes)", g.rs)
	}

	return out, nil
}

// TokenSourceFromFile loads the cached token for resourceServer and returns a
// Source that refreshes it when needed and writes the refreshed token back to
// the cache. Returns ErrNotLoggedIn when there is no cache or no token for
// that resource server.
//
// The returned Source binds ctx to the underlying oauth2 token source.
// ctx must outlive the Source.
func TokenSourceFromFile(ctx context.Context, s Settings, tokenPath, resourceServer string, logger *slog.Logger) (*Source, error) {
	tf, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	tok := tf.Token(resourceServer)
	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
	logger.Debug("loaded saved token",
		slog.String("path", tokenPath),
		slog.String("resource_server", resourceServer),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", expired),
	)

	cfg := refreshConfig(s.withDefaults(), tokenPath, resourceServer, logger)

	return &Source{src: cfg.TokenSource(ctx, tok), logger: logger}, nil
}

// refreshConfig builds an oauth2.Config with OnTokenChange wired to persist
// refreshed tokens for one resource server.
func refreshConfig(s Settings, tokenPath, resourceServer string, logger *slog.Logger) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		Endpoint:     s.endpoint(),
		RedirectURL:  s.RedirectURL,
		Scopes:       s.Scopes,
		// Called by ReuseTokenSource after each silent refresh, outside its mutex.
		OnTokenChange: func(tok *oauth2.Token) {
			logger.Info("token refreshed",
				slog.String("resource_server", resourceServer),
				slog.Time("new_expiry", tok.Expiry),
			)

			if err := tokenfile.UpdateToken(tokenPath, resourceServer, tok); err != nil {
				logger.Warn("failed to persist refreshed token",
					slog.String("path", tokenPath),
					slog.String("error", err.Error()),
				)
			}
		},
	}
}

// Source adapts an oauth2.TokenSource to the bearer-string interface the REST
// clients consume. Logs every failed acquisition so refresh trouble is visible.
type Source struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

// NewSource wraps an oauth2.TokenSource.
func NewSource(src oauth2.TokenSource, logger *slog.Logger) *Source {
	return &Source{src: src, logger: logger}
}

// Token returns a valid access token, refreshing first if needed.
func (s *Source) Token() (string, error) {
	t, err := s.src.Token()
	if err != nil {
		s.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("auth: obtaining token: %w", err)
	}

	return t.AccessToken, nil
}

// OAuth2 exposes the underlying source for libraries that take an
// oauth2.TokenSource.
func (s *Source) OAuth2() oauth2.TokenSource {
	return s.src
}
