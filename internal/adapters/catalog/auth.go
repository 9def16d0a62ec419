package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/phenrril/storefront/internal/domain"
)

func (c *Client) Login(ctx context.Context, cr domain.Credentials) (*domain.AuthTokens, error) {
	data, err := c.do(ctx, "login", http.MethodPost, "/auth/login", cr, nil)
	if err != nil {
		return nil, err
	}
	var t domain.AuthTokens
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("login: decode: %w", err)
	}
	return &t, nil
}

// Profile fetches the user behind accessToken. The bearer header is set by
// an oauth2 transport layered over the client's own transport.
func (c *Client) Profile(ctx context.Context, accessToken string) (*domain.User, error) {
	if accessToken == "" {
		return nil, domain.ErrUnauthorized
	}
	octx := context.WithValue(ctx, oauth2.HTTPClient, c.http)
	hc := oauth2.NewClient(octx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	hc.Timeout = c.http.Timeout
	data, err := c.do(ctx, "profile", http.MethodGet, "/auth/profile", nil, hc)
	if err != nil {
		return nil, err
	}
	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("profile: decode: %w", err)
	}
	return &u, nil
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*domain.AuthTokens, error) {
	if refreshToken == "" {
		return nil, domain.ErrUnauthorized
	}
	body := map[string]string{"refreshToken": refreshToken}
	data, err := c.do(ctx, "refresh token", http.MethodPost, "/auth/refresh-token", body, nil)
	if err != nil {
		return nil, err
	}
	var t domain.AuthTokens
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("refresh token: decode: %w", err)
	}
	return &t, nil
}
