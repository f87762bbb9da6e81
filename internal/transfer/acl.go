package transfer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ACLList lists access rules on an endpoint the caller administers.
func (c *Client) ACLList(ctx context.Context, endpointID string) ([]ACLRule, error) {
	return c.aclList(ctx, "/endpoint/"+endpointID+"/access_list", endpointID)
}

// ManagerACLList lists access rules through the endpoint-manager API, which
// works for activity and access managers who are not the endpoint owner.
func (c *Client) ManagerACLList(ctx context.Context, endpointID string) ([]ACLRule, error) {
	return c.aclList(ctx, "/endpoint_manager/endpoint/"+endpointID+"/access_list", endpointID)
}

func (c *Client) aclList(ctx context.Context, path, endpointID string) ([]ACLRule, error) {
	if err := ValidateID(endpointID); err != nil {
		return nil, err
	}

	var out struct {
		Data []ACLRule `json:"DATA"`
	}

	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, fmt.Errorf("transfer: listing access rules of %s: %w", endpointID, err)
	}

	return out.Data, nil
}

// AddACLRule creates an access rule and returns its ID.
func (c *Client) AddACLRule(ctx context.Context, endpointID string, rule ACLRule) (string, error) {
	if err := ValidateID(endpointID); err != nil {
		return "", err
	}

	rule.DataType = "access"
	rule.ID = ""

	var out struct {
		AccessID string `json:"access_id"`
	}

	if err := c.doJSON(ctx, http.MethodPost, "/endpoint/"+endpointID+"/access", nil, rule, &out); err != nil {
		return "", fmt.Errorf("transfer: adding access rule on %s:%s: %w", endpointID, rule.Path, err)
	}

	return out.AccessID, nil
}

// DeleteACLRule removes an access rule.
func (c *Client) DeleteACLRule(ctx context.Context, endpointID, ruleID string) error {
	if err := ValidateID(endpointID); err != nil {
		return err
	}

	path := "/endpoint/" + endpointID + "/access/" + url.PathEscape(ruleID)

	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("transfer: deleting access rule %s on %s: %w", ruleID, endpointID, err)
	}

	return nil
}
