package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
)

const (
	LoginPath  = "/auth/login"
	LogoutPath = "/auth/logout"
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the unwrapped login response. Older backend builds sent accessToken,
// current ones send token.
type LoginResult struct {
	Token       string `json:"token,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// BearerToken returns whichever token field the backend filled in.
func (r *LoginResult) BearerToken() string {
	if r.Token != "" {
		return r.Token
	}
	return r.AccessToken
}

func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	raw, err := c.Request(ctx, http.MethodPost, LoginPath, creds)
	if err != nil {
		return nil, err
	}

	res := &LoginResult{Raw: raw}
	// A result that isn't an object just means no token, which the session layer rejects
	_ = json.Unmarshal(raw, res)

	return res, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.Request(ctx, http.MethodPost, LogoutPath, map[string]string{"token": token})
	return err
}
