package catalog

import (
	"context"
	"fmt"

	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
)

// Resolved is the outcome of catalog resolution: the kind that was chosen
// and the chapters in ascending chapter-number order.
type Resolved struct {
	Kind     Kind
	Chapters []*Chapter
}

// IsEmpty returns true if the resolved catalog has no chapters.
func (r Resolved) IsEmpty() bool {
	return len(r.Chapters) == 0
}

// ChapterByID returns the chapter with the given ID, or nil.
func (r Resolved) ChapterByID(id ChapterID) *Chapter {
	for _, ch := range r.Chapters {
		if ch.ID == id {
			return ch
		}
	}
	return nil
}

// Resolver chooses the ordered chapter list a learner follows: the
// personalized list if one exists for that learner, otherwise the shared
// default list. Read-only and side-effect free, so it may be called freely
// and cached per request.
type Resolver struct {
	repo Repository
}

// NewResolver creates a new Resolver.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the catalog the learner is served from.
//
// A personalized list that cannot be read does not hide an intact default
// journey: the resolver falls back to the default list and only fails with
// ErrCatalogUnavailable when neither list can be read. Callers must treat
// that failure as "no journey available", never as "all chapters locked".
func (r *Resolver) Resolve(ctx context.Context, learnerID LearnerID) (Resolved, error) {
	if !learnerID.IsValid() {
		return Resolved{}, ErrInvalidLearnerID
	}

	personalized, personalizedErr := r.repo.ListPersonalized(ctx, learnerID)
	if personalizedErr == nil && len(personalized) > 0 {
		chapters := make([]*Chapter, len(personalized))
		copy(chapters, personalized)
		SortByNumber(chapters)
		return Resolved{Kind: KindPersonalized, Chapters: chapters}, nil
	}

	defaults, defaultErr := r.repo.ListDefault(ctx)
	if defaultErr != nil {
		if personalizedErr != nil {
			return Resolved{}, shared.WrapError("catalog", "Resolve", shared.ErrCatalogUnavailable,
				fmt.Sprintf("personalized list failed (%v) and default list failed", personalizedErr), defaultErr)
		}
		return Resolved{}, shared.WrapError("catalog", "Resolve", shared.ErrCatalogUnavailable,
			"default chapter list unavailable", defaultErr)
	}

	chapters := make([]*Chapter, len(defaults))
	copy(chapters, defaults)
	SortByNumber(chapters)
	return Resolved{Kind: KindDefault, Chapters: chapters}, nil
}
