package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/naveenspark/mylibrary/pkg/domain"
)

// Login exchanges a provider ID token for the backend's authorization
// envelope. It does not need a session. An envelope that reports failure or
// lacks the fields a successful login carries is returned as a RejectedError.
func (c *Client) Login(ctx context.Context, idToken string, method domain.LoginMethod) (*domain.LoginResponse, error) {
	req := domain.LoginRequest{IDToken: idToken, LoginMethod: method}
	var resp domain.LoginResponse
	if err := c.doPublic(ctx, http.MethodPost, "/api/login", req, &resp); err != nil {
		return nil, fmt.Errorf("client.Login: %w", err)
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("client.Login: %w", &RejectedError{Op: "login", Message: err.Error()})
	}
	return &resp, nil
}

// Register creates a backend account for an email/password identity.
func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (*domain.RegisterResponse, error) {
	if req.Provider == "" {
		req.Provider = "email"
	}
	var resp domain.RegisterResponse
	if err := c.doPublic(ctx, http.MethodPost, "/api/register", req, &resp); err != nil {
		return nil, fmt.Errorf("client.Register: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("client.Register: %w", &RejectedError{Op: "register", Message: resp.Error})
	}
	return &resp, nil
}
