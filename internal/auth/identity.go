package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Identity is a Globus Auth identity.
type Identity struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Organization string `json:"organization"`
	Status       string `json:"status"`
}

// IdentityClient looks up identities through the Globus Auth API using an
// auth.globus.org token.
type IdentityClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewIdentityClient creates an IdentityClient. The token source must yield
// tokens for the auth.globus.org resource server.
func NewIdentityClient(ctx context.Context, baseURL string, ts oauth2.TokenSource) *IdentityClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &IdentityClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: oauth2.NewClient(ctx, ts),
	}
}

// LookupUsernames resolves usernames (e.g. "alice@globusid.org") to
// identities. Unknown usernames are simply absent from the result.
func (c *IdentityClient) LookupUsernames(ctx context.Context, usernames ...string) ([]Identity, error) {
	q := url.Values{"usernames": {strings.Join(usernames, ",")}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/api/identities?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("auth: creating identity request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: identity lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: identity lookup returned HTTP %d", resp.StatusCode)
	}

	var out struct {
		Identities []Identity `json:"identities"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("auth: decoding identities: %w", err)
	}

	return out.Identities, nil
}

// ResolvePrincipal returns v unchanged when it is already a UUID, otherwise
// looks it up as a username.
func (c *IdentityClient) ResolvePrincipal(ctx context.Context, v string) (string, error) {
	if _, err := uuid.Parse(v); err == nil {
		return strings.ToLower(v), nil
	}

	ids, err := c.LookupUsernames(ctx, v)
	if err != nil {
		return "", err
	}

	for _, id := range ids {
		if strings.EqualFold(id.Username, v) && id.ID != "" {
			return id.ID, nil
		}
	}

	return "", fmt.Errorf("auth: no Globus identity for username %q", v)
}
