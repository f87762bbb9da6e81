package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/globus-go/internal/auth"
	"github.com/tonimelisma/globus-go/internal/config"
	"github.com/tonimelisma/globus-go/internal/ledger"
	"github.com/tonimelisma/globus-go/internal/transfer"
)

// authSettings maps the [auth] section onto the auth package settings.
func authSettings(cfg *config.Config) auth.Settings {
	return auth.Settings{
		BaseURL:      cfg.Auth.AuthURL,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		RedirectURL:  cfg.Auth.RedirectURI,
		Scopes:       cfg.Auth.Scopes,
	}
}

// tokenSource returns a token source for one resource server. Native mode
// reads (and refreshes) the token cache; client-credentials mode runs the
// grant on demand and never touches the cache.
func (cc *CLIContext) tokenSource(ctx context.Context, resourceServer string) (*auth.Source, error) {
	s := authSettings(cc.Cfg.Config)

	if cc.Cfg.Auth.Mode == config.AuthClientCredentials {
		return auth.ClientCredentialsSource(ctx, s, resourceServer, cc.Logger)
	}

	src, err := auth.TokenSourceFromFile(ctx, s, cc.Cfg.TokenPath, resourceServer, cc.Logger)
	if errors.Is(err, auth.ErrNotLoggedIn) {
		return nil, fmt.Errorf("not logged in, run 'globus-go login' first")
	}

	if err != nil {
		return nil, err
	}

	return src, nil
}

func (cc *CLIContext) httpClient() *http.Client {
	return newHTTPClient(cc.Cfg.Network)
}

// transferClient returns an authenticated Transfer API client.
func (cc *CLIContext) transferClient(ctx context.Context) (*transfer.Client, error) {
	ts, err := cc.tokenSource(ctx, auth.ResourceServerTransfer)
	if err != nil {
		return nil, err
	}

	c := transfer.NewClient(cc.Cfg.Transfer.BaseURL, cc.httpClient(), ts, cc.Logger)
	c.SetUserAgent(cc.Cfg.Network.UserAgent)

	return c, nil
}

// identityClient returns a Globus Auth identities client.
func (cc *CLIContext) identityClient(ctx context.Context) (*auth.IdentityClient, error) {
	ts, err := cc.tokenSource(ctx, auth.ResourceServerAuth)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, cc.httpClient())

	return auth.NewIdentityClient(ctx, cc.Cfg.Auth.AuthURL, ts.OAuth2()), nil
}

// openLedger opens the task ledger. Callers must Close it.
func (cc *CLIContext) openLedger(ctx context.Context) (*ledger.Ledger, error) {
	l, err := ledger.Open(ctx, cc.Cfg.LedgerPath, cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening task ledger: %w", err)
	}

	return l, nil
}

// recordTask stores a submitted task in the ledger. The task already exists
// on the service, so a ledger failure is only logged.
func (cc *CLIContext) recordTask(ctx context.Context, e *ledger.Entry) {
	l, err := cc.openLedger(ctx)
	if err != nil {
		cc.Logger.Warn("task not recorded", slog.String("task_id", e.TaskID), slog.String("error", err.Error()))
		return
	}
	defer l.Close()

	if err := l.Record(ctx, e); err != nil {
		cc.Logger.Warn("task not recorded", slog.String("task_id", e.TaskID), slog.String("error", err.Error()))
	}
}

// endpointPath parses an "endpoint:path" argument, resolving aliases from
// the [endpoints] section.
func (cc *CLIContext) endpointPath(arg string) (transfer.EndpointPath, error) {
	return transfer.ParseEndpointPath(arg, cc.Cfg.Endpoints)
}

// endpointID resolves a bare endpoint argument (alias or UUID).
func (cc *CLIContext) endpointID(arg string) (string, error) {
	return transfer.CanonicalID(cc.Cfg.ResolveEndpoint(arg))
}
