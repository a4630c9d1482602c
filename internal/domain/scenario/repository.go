package scenario

import "context"

// Repository is the port for loading declarative definitions.
type Repository interface {
	// LoadAll loads every definition from the configured source.
	LoadAll(ctx context.Context) ([]*Definition, error)
}
