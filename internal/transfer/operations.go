package transfer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// GetEndpoint fetches endpoint metadata.
func (c *Client) GetEndpoint(ctx context.Context, endpointID string) (*Endpoint, error) {
	if err := ValidateID(endpointID); err != nil {
		return nil, err
	}

	var ep Endpoint
	if err := c.getJSON(ctx, "/endpoint/"+endpointID, nil, &ep); err != nil {
		return nil, fmt.Errorf("transfer: getting endpoint %s: %w", endpointID, err)
	}

	return &ep, nil
}

// ActivationResult is the response to an autoactivate request.
type ActivationResult struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"`
}

// Autoactivate activates an endpoint with cached or default credentials.
// A 401 here means the caller's own token is no longer valid.
func (c *Client) Autoactivate(ctx context.Context, endpointID string) (*ActivationResult, error) {
	if err := ValidateID(endpointID); err != nil {
		return nil, err
	}

	var out ActivationResult
	path := "/endpoint/" + endpointID + "/autoactivate"

	if err := c.doJSON(ctx, http.MethodPost, path, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("transfer: autoactivating endpoint %s: %w", endpointID, err)
	}

	c.logger.Debug("endpoint autoactivated", "endpoint", endpointID, "code", out.Code)

	return &out, nil
}

// Ls lists one directory on an endpoint.
func (c *Client) Ls(ctx context.Context, endpointID, path string) ([]FileEntry, error) {
	if err := ValidateID(endpointID); err != nil {
		return nil, err
	}

	q := url.Values{}
	if path != "" {
		q.Set("path", path)
	}

	var out struct {
		Path string      `json:"path"`
		Data []FileEntry `json:"DATA"`
	}

	if err := c.getJSON(ctx, "/operation/endpoint/"+endpointID+"/ls", q, &out); err != nil {
		return nil, fmt.Errorf("transfer: listing %s:%s: %w", endpointID, path, err)
	}

	return out.Data, nil
}

// Mkdir creates one directory on an endpoint. The parent must exist.
func (c *Client) Mkdir(ctx context.Context, endpointID, path string) error {
	if err := ValidateID(endpointID); err != nil {
		return err
	}

	body := map[string]string{"DATA_TYPE": "mkdir", "path": path}

	if err := c.doJSON(ctx, http.MethodPost, "/operation/endpoint/"+endpointID+"/mkdir", nil, body, nil); err != nil {
		return fmt.Errorf("transfer: creating %s:%s: %w", endpointID, path, err)
	}

	return nil
}
