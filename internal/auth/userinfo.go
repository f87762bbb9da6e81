package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc"
	"golang.org/x/oauth2"
)

// UserInfo is the subset of OIDC userinfo claims Globus Auth returns that
// whoami prints.
type UserInfo struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Organization      string `json:"organization"`
}

// FetchUserInfo discovers the OIDC provider at issuer and fetches userinfo
// with an auth.globus.org token.
func FetchUserInfo(ctx context.Context, issuer string, ts oauth2.TokenSource) (*UserInfo, error) {
	if issuer == "" {
		issuer = DefaultBaseURL
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("auth: discovering OIDC provider %s: %w", issuer, err)
	}

	raw, err := provider.UserInfo(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("auth: fetching userinfo: %w", err)
	}

	var info UserInfo
	if err := raw.Claims(&info); err != nil {
		return nil, fmt.Errorf("auth: decoding userinfo claims: %w", err)
	}

	if info.Subject == "" {
		info.Subject = raw.Subject
	}

	if info.Email == "" {
		info.Email = raw.Email
	}

	return &info, nil
}
