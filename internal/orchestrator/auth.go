package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

type loginResponse struct {
	Token string `json:"token"`
}

type googleLoginRequest struct {
	IDToken string `json:"idToken"`
}

var errEmptyToken = errors.New("login returned an empty token")

// LoginAnonymous obtains a player token without any identity.
func (c *Client) LoginAnonymous(ctx context.Context) (string, error) {
	var resp loginResponse
	path := fmt.Sprintf("/auth/v1/%s/login/anonymous", url.PathEscape(c.appID))
	if err := c.postJSON(ctx, path, nil, struct{}{}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errEmptyToken
	}
	return resp.Token, nil
}

// LoginGoogle exchanges a Google id token for a player token.
func (c *Client) LoginGoogle(ctx context.Context, idToken string) (string, error) {
	var resp loginResponse
	path := fmt.Sprintf("/auth/v1/%s/login/google", url.PathEscape(c.appID))
	if err := c.postJSON(ctx, path, nil, googleLoginRequest{IDToken: idToken}, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errEmptyToken
	}
	return resp.Token, nil
}
