package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/tonimelisma/globus-go/internal/tokenfile"
)

// Logout revokes every cached token (best effort) and removes the cache.
// Returns nil if there is no cache (already logged out).
func Logout(ctx context.Context, s Settings, tokenPath string, httpClient *http.Client, logger *slog.Logger) error {
	tf, err := tokenfile.Load(tokenPath)
	if err != nil {
		logger.Warn("logout: unreadable token cache, removing it", slog.String("error", err.Error()))
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	s = s.withDefaults()

	for _, rs := range tf.ResourceServers() {
		tok := tf.Token(rs)
		for _, v := range []string{tok.RefreshToken, tok.AccessToken} {
			if v == "" {
				continue
			}

			if revokeErr := revoke(ctx, s, httpClient, v); revokeErr != nil {
				logger.Warn("logout: token revocation failed",
					slog.String("resource_server", rs),
					slog.String("error", revokeErr.Error()),
				)
			}
		}
	}

	err = os.Remove(tokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("logout: no token cache to remove (already logged out)", slog.String("path", tokenPath))
		return nil
	}

	if err != nil {
		return fmt.Errorf("auth: removing token cache: %w", err)
	}

	logger.Info("logout: removed token cache", slog.String("path", tokenPath))

	return nil
}

// revoke calls the token revocation endpoint (RFC 7009) for one token.
func revoke(ctx context.Context, s Settings, httpClient *http.Client, token string) error {
	form := url.Values{"token": {token}}
	if s.ClientSecret == "" {
		form.Set("client_id", s.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.BaseURL+"/v2/oauth2/token/revoke", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if s.ClientSecret != "" {
		req.SetBasicAuth(s.ClientID, s.ClientSecret)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke returned HTTP %d", resp.StatusCode)
	}

	return nil
}
