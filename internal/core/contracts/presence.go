package contracts

import (
	"context"
	"time"
)

// LastSeenIndex keeps a sorted set of identities by the time they went offline.
// It backs the "recently offline" part of the presence snapshot.
type LastSeenIndex interface {
	Record(ctx context.Context, identityID string, at time.Time) error
	// Remove drops an identity that came back online.
	Remove(ctx context.Context, identityID string) error
	// Recent returns up to limit identity ids, newest first.
	Recent(ctx context.Context, limit int) ([]string, error)
}

// Transactor runs fn inside a storage transaction carried by the context.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
