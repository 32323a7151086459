package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/pesio-ai/be-wh-repairs/internal/errors"
)

// DirectoryClient is a client for the user directory service. It validates
// that reporter / approver / assignee references exist and are active.
type DirectoryClient struct {
	http *httpClient
}

// NewDirectoryClient creates a new user directory client.
func NewDirectoryClient(baseURL string, timeout time.Duration) *DirectoryClient {
	return &DirectoryClient{http: newHTTPClient(baseURL, timeout)}
}

// ResolveUser resolves a user by id. Inactive users resolve with Active=false;
// callers decide whether that is acceptable for the reference being validated.
func (c *DirectoryClient) ResolveUser(ctx context.Context, id string) (*User, error) {
	path := fmt.Sprintf("/api/v1/users/%s", url.PathEscape(id))

	var user User
	if err := c.http.Get(ctx, path, &user); err != nil {
		if err == errNotFound {
			return nil, errors.NotFound("user", id)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve user")
	}
	return &user, nil
}
