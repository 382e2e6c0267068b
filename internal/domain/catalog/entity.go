// Package catalog contains domain entities and business logic for the
// chapter catalogs a learner progresses through. Two disjoint catalogs
// exist: a shared default one and a per-learner personalized one.
// This is a pure domain layer with zero external dependencies.
package catalog

import (
	"errors"
	"sort"
)

// Domain errors for catalog package.
var (
	ErrInvalidChapterID     = errors.New("catalog: invalid chapter ID")
	ErrInvalidLearnerID     = errors.New("catalog: invalid learner ID")
	ErrInvalidChapterNumber = errors.New("catalog: chapter number must be positive")
	ErrInvalidXPReward      = errors.New("catalog: XP reward must be positive")
	ErrInvalidTimeEstimate  = errors.New("catalog: estimated time must be positive")
	ErrUnknownChapterType   = errors.New("catalog: unknown chapter type")
	ErrDuplicateNumber      = errors.New("catalog: duplicate chapter number")
)

// ChapterID represents a unique identifier for a chapter.
type ChapterID string

// IsValid checks if the chapter ID is valid.
func (c ChapterID) IsValid() bool {
	return c != ""
}

// String returns the string representation of ChapterID.
func (c ChapterID) String() string {
	return string(c)
}

// LearnerID represents a unique identifier for a learner.
type LearnerID string

// IsValid checks if the learner ID is valid.
func (l LearnerID) IsValid() bool {
	return l != ""
}

// String returns the string representation of LearnerID.
func (l LearnerID) String() string {
	return string(l)
}

// Kind identifies which of the two catalogs a chapter (or a progress record)
// belongs to. A learner is served from exactly one kind at a time; mixing
// kinds within one learner's progress is an integrity violation.
type Kind string

const (
	// KindDefault is the shared, global chapter list.
	KindDefault Kind = "default"

	// KindPersonalized is a chapter list owned by exactly one learner.
	KindPersonalized Kind = "personalized"
)

// IsValid checks if the catalog kind is known.
func (k Kind) IsValid() bool {
	return k == KindDefault || k == KindPersonalized
}

// String returns the string representation of Kind.
func (k Kind) String() string {
	return string(k)
}

// ChapterType classifies what the learner does in a chapter.
type ChapterType string

const (
	ChapterTypeVideo     ChapterType = "video"
	ChapterTypeQuiz      ChapterType = "quiz"
	ChapterTypeBossFight ChapterType = "boss_fight"
)

// IsValid checks if the chapter type is known.
func (t ChapterType) IsValid() bool {
	switch t {
	case ChapterTypeVideo, ChapterTypeQuiz, ChapterTypeBossFight:
		return true
	}
	return false
}

// ActionType classifies where a chapter routes the learner.
type ActionType string

const (
	ActionTypeCourse      ActionType = "course"
	ActionTypeQuiz        ActionType = "quiz"
	ActionTypeStudy       ActionType = "study"
	ActionTypeCompetition ActionType = "competition"
	ActionTypeNotes       ActionType = "notes"
	ActionTypeDashboard   ActionType = "dashboard"
)

// Action describes where the learner is routed to perform the chapter's
// activity. The content behind the URL is opaque to the engine.
type Action struct {
	URL    string
	Type   ActionType
	Params map[string]interface{}
}

// Chapter is one immutable unit of curriculum. Chapters are created by
// catalog setup and never mutated by the progression engine.
type Chapter struct {
	ID       ChapterID
	Number   int // unique within its catalog and learner, positive
	Title    string
	Subtitle string

	XPReward             int
	EstimatedTimeMinutes int
	Type                 ChapterType

	// PrerequisiteID is a back-reference to the previous chapter, nil for #1.
	PrerequisiteID *ChapterID

	// CourseID links the chapter to library content, if any.
	CourseID *string

	// Action is the optional routing payload for the chapter.
	Action *Action
}

// NewChapter creates a validated chapter.
func NewChapter(id ChapterID, number int, title string, xpReward, estimatedMinutes int, chapterType ChapterType) (*Chapter, error) {
	if !id.IsValid() {
		return nil, ErrInvalidChapterID
	}
	if number <= 0 {
		return nil, ErrInvalidChapterNumber
	}
	if xpReward <= 0 {
		return nil, ErrInvalidXPReward
	}
	if estimatedMinutes <= 0 {
		return nil, ErrInvalidTimeEstimate
	}
	if !chapterType.IsValid() {
		return nil, ErrUnknownChapterType
	}

	return &Chapter{
		ID:                   id,
		Number:               number,
		Title:                title,
		XPReward:             xpReward,
		EstimatedTimeMinutes: estimatedMinutes,
		Type:                 chapterType,
	}, nil
}

// IsQuiz returns true for quiz chapters. A quiz submission always completes
// its chapter regardless of score; partial quiz credit is not modeled.
func (c *Chapter) IsQuiz() bool {
	return c.Type == ChapterTypeQuiz
}

// SortByNumber sorts chapters in ascending chapter number, in place.
// The sort is stable so equal numbers (an upstream data error) keep
// their storage order instead of flapping between reads.
func SortByNumber(chapters []*Chapter) {
	sort.SliceStable(chapters, func(i, j int) bool {
		return chapters[i].Number < chapters[j].Number
	})
}

// ValidateOrdering checks that chapter numbers are unique within a list.
func ValidateOrdering(chapters []*Chapter) error {
	seen := make(map[int]bool, len(chapters))
	for _, ch := range chapters {
		if ch.Number <= 0 {
			return ErrInvalidChapterNumber
		}
		if seen[ch.Number] {
			return ErrDuplicateNumber
		}
		seen[ch.Number] = true
	}
	return nil
}
