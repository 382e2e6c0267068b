package progression

import (
	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
)

// ChapterView carries a chapter plus its derived status and progress totals.
// This is what the saga map renders: the chapter metadata merged with the
// learner's standing on it.
type ChapterView struct {
	Chapter *catalog.Chapter
	Status  Status

	XPEarned         int
	TimeSpentMinutes int
	CompletedAt      *string // RFC 3339, nil unless completed

	// Record is the backing progress record, nil when none exists yet.
	Record *Record
}

// Anomaly describes a stored status that contradicts chapter order: a later
// chapter stored active or completed while an earlier one is incomplete.
// The derivation wins over the corrupted stored value; anomalies are logged,
// never surfaced as fatal errors.
type Anomaly struct {
	ChapterID     catalog.ChapterID
	ChapterNumber int
	StoredStatus  Status
	DerivedStatus Status
}

// Derived is the result of a status derivation pass.
type Derived struct {
	Views     []ChapterView
	Anomalies []Anomaly
}

// ActiveView returns the unique active chapter view, or nil when every
// chapter is completed or the catalog is empty.
func (d Derived) ActiveView() *ChapterView {
	for i := range d.Views {
		if d.Views[i].Status == StatusActive {
			return &d.Views[i]
		}
	}
	return nil
}

// ViewByChapter returns the view for a chapter ID, or nil.
func (d Derived) ViewByChapter(id catalog.ChapterID) *ChapterView {
	for i := range d.Views {
		if d.Views[i].Chapter.ID == id {
			return &d.Views[i]
		}
	}
	return nil
}

// AllCompleted returns true when every chapter is completed.
func (d Derived) AllCompleted() bool {
	if len(d.Views) == 0 {
		return false
	}
	for i := range d.Views {
		if d.Views[i].Status != StatusCompleted {
			return false
		}
	}
	return true
}

// DeriveStatuses computes chapter statuses from chapter order plus stored
// progress. The walk is deterministic and O(n) over chapters in ascending
// chapter number (the caller provides them ordered, see catalog.Resolver):
//
//   - a chapter with a completed record is completed;
//   - the first not-yet-completed chapter is active, whether or not a record
//     exists for it;
//   - every chapter after the active one is locked, regardless of any stored
//     status. A stored active/completed on a later chapter while an earlier
//     one is incomplete is recorded as an Anomaly and derived as locked.
//
// Recomputing over storage makes the engine self-healing: stored status can
// drift, the derived status cannot.
func DeriveStatuses(chapters []*catalog.Chapter, records []*Record) Derived {
	byChapter := IndexByChapter(records)
	derived := Derived{Views: make([]ChapterView, 0, len(chapters))}

	activeSeen := false
	for _, ch := range chapters {
		rec := byChapter[ch.ID]

		var status Status
		switch {
		case rec != nil && rec.IsCompleted() && !activeSeen:
			status = StatusCompleted
		case !activeSeen:
			// First chapter in the walk without a completed record: the
			// single active chapter. This also covers the no-records-at-all
			// case, where chapter #1 is implicitly active.
			status = StatusActive
			activeSeen = true
		default:
			status = StatusLocked
		}

		if rec != nil && rec.Status != status && status == StatusLocked {
			derived.Anomalies = append(derived.Anomalies, Anomaly{
				ChapterID:     ch.ID,
				ChapterNumber: ch.Number,
				StoredStatus:  rec.Status,
				DerivedStatus: status,
			})
		}

		derived.Views = append(derived.Views, newView(ch, status, rec))
	}

	return derived
}

func newView(ch *catalog.Chapter, status Status, rec *Record) ChapterView {
	view := ChapterView{
		Chapter: ch,
		Status:  status,
		Record:  rec,
	}
	if rec != nil {
		view.XPEarned = rec.XPEarned
		view.TimeSpentMinutes = rec.TimeSpentMinutes
		if rec.CompletedAt != nil && status == StatusCompleted {
			s := rec.CompletedAt.Format(completedAtLayout)
			view.CompletedAt = &s
		}
	}
	return view
}

// completedAtLayout is RFC 3339 with second precision.
const completedAtLayout = "2006-01-02T15:04:05Z07:00"
