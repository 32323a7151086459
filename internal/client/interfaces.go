package client

import "context"

// DirectoryClientInterface resolves actor identities against the user directory.
type DirectoryClientInterface interface {
	ResolveUser(ctx context.Context, id string) (*User, error)
}

// CatalogClientInterface enumerates items eligible to be reported as damaged.
type CatalogClientInterface interface {
	ListAvailableItems(ctx context.Context, actorID string) ([]AssignableItem, error)
}
