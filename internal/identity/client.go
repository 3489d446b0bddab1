package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"healthtrends-server/internal/config"
)

// ErrUserNotFound is returned when the identity provider knows no user
// with the given email.
var ErrUserNotFound = errors.New("user not found")

// Client is the boundary to the external identity provider's admin API,
// used for role (group) assignment. Token validation does not go through
// here; that runs against the provider's published JWKS.
type Client interface {
	FindUserByEmail(ctx context.Context, email string) (string, error)
	AddUserToGroup(ctx context.Context, username, group string) error
}

type restClient struct {
	http *resty.Client
}

// NewClient builds a Client against the provider's admin REST API.
func NewClient(cfg config.IdentityConfig) Client {
	http := resty.New().
		SetBaseURL(cfg.AdminURL).
		SetAuthToken(cfg.AdminToken).
		SetTimeout(10 * time.Second)
	return &restClient{http: http}
}

type userRecord struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type userListResponse struct {
	Users []userRecord `json:"users"`
}

// FindUserByEmail resolves a provider username from an email address.
func (c *restClient) FindUserByEmail(ctx context.Context, email string) (string, error) {
	var out userListResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("email", email).
		SetQueryParam("limit", "1").
		SetResult(&out).
		Get("/users")
	if err != nil {
		return "", fmt.Errorf("listing users: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("identity provider returned status %d", resp.StatusCode())
	}
	if len(out.Users) == 0 {
		return "", ErrUserNotFound
	}
	return out.Users[0].Username, nil
}

// AddUserToGroup assigns the user to the named group.
func (c *restClient) AddUserToGroup(ctx context.Context, username, group string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"group": group}).
		Post("/users/" + username + "/groups")
	if err != nil {
		return fmt.Errorf("adding user to group: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("identity provider returned status %d", resp.StatusCode())
	}
	return nil
}
