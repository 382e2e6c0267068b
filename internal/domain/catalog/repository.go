// Package catalog contains domain entities and business logic for the
// chapter catalogs a learner progresses through.
package catalog

import (
	"context"
)

// Repository defines the interface for reading chapter catalogs.
// This interface is implemented by the infrastructure layer.
// The domain layer has no knowledge of the actual storage mechanism.
type Repository interface {
	// ListPersonalized returns the personalized chapter list owned by the
	// learner, empty if none exists. Order is not guaranteed by the store;
	// the resolver sorts by chapter number.
	ListPersonalized(ctx context.Context, learnerID LearnerID) ([]*Chapter, error)

	// ListDefault returns the shared default chapter list, which is non-empty
	// in a correctly configured deployment.
	ListDefault(ctx context.Context) ([]*Chapter, error)
}
