package domain

import (
	"fmt"
	"slices"
	"time"
)

// Version is the opaque optimistic-concurrency token of a work item.
// Every persisted write produces a new value.
type Version string

func (v Version) String() string { return string(v) }

// IsZero reports whether no version was supplied.
func (v Version) IsZero() bool { return v == "" }

// ItemRef identifies a work item. ID is unique within GroupKey.
type ItemRef struct {
	GroupKey string `json:"group_key"`
	ID       string `json:"id"`
}

func (r ItemRef) String() string { return fmt.Sprintf("%s#%s", r.GroupKey, r.ID) }

// Validate checks that both parts of the identity are present.
func (r ItemRef) Validate() error {
	var errs []FieldError
	if r.GroupKey == "" {
		errs = append(errs, FieldError{Field: "group_key", Message: "required"})
	}
	if r.ID == "" {
		errs = append(errs, FieldError{Field: "id", Message: "required"})
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// Reference is a citation attached to a work item's content.
type Reference struct {
	Source  string `json:"source"`
	Locator string `json:"locator,omitempty"`
}

// WorkItem is the unit of curation and the only entity under concurrency control.
type WorkItem struct {
	GroupKey   string
	ID         string
	Status     Status
	AssignedTo *string
	AssignedAt *time.Time
	Version    Version

	Text       string
	Labels     []string
	References []Reference
	Notes      *string

	// Derived; recomputed before every content write.
	ReferenceCount int
	LabelCount     int

	CreatedAt time.Time
	UpdatedAt time.Time
	UpdatedBy *string
}

// Ref returns the item's identity.
func (w WorkItem) Ref() ItemRef {
	return ItemRef{GroupKey: w.GroupKey, ID: w.ID}
}

// IsAssignedTo reports whether userID currently holds the item.
func (w WorkItem) IsAssignedTo(userID string) bool {
	return w.AssignedTo != nil && *w.AssignedTo == userID
}

// HeldByOther reports whether the item is a draft held by someone other than userID.
func (w WorkItem) HeldByOther(userID string) bool {
	return w.Status == StatusDraft && w.AssignedTo != nil && *w.AssignedTo != userID
}

// Claimable is the claim predicate: the item is unassigned, already held by
// the caller, or no longer a draft.
func (w WorkItem) Claimable(callerID string) bool {
	return w.AssignedTo == nil || *w.AssignedTo == callerID || w.Status != StatusDraft
}

// Holder returns the current assignee or an empty string.
func (w WorkItem) Holder() string {
	if w.AssignedTo == nil {
		return ""
	}
	return *w.AssignedTo
}

// Clone returns a deep copy safe to mutate.
func (w WorkItem) Clone() WorkItem {
	c := w
	if w.AssignedTo != nil {
		v := *w.AssignedTo
		c.AssignedTo = &v
	}
	if w.AssignedAt != nil {
		v := *w.AssignedAt
		c.AssignedAt = &v
	}
	if w.Notes != nil {
		v := *w.Notes
		c.Notes = &v
	}
	if w.UpdatedBy != nil {
		v := *w.UpdatedBy
		c.UpdatedBy = &v
	}
	c.Labels = slices.Clone(w.Labels)
	c.References = slices.Clone(w.References)
	return c
}

// ApplyClaim assigns the item to userID and resets it to draft.
func (w *WorkItem) ApplyClaim(userID string, now time.Time) {
	now = now.UTC()
	w.AssignedTo = &userID
	w.AssignedAt = &now
	w.Status = StatusDraft
	w.UpdatedAt = now
}

// ClearAssignment releases the item.
func (w *WorkItem) ClearAssignment() {
	w.AssignedTo = nil
	w.AssignedAt = nil
}

// RecomputeDerived refreshes the aggregate counters from content.
func (w *WorkItem) RecomputeDerived() {
	w.ReferenceCount = len(w.References)
	w.LabelCount = len(w.Labels)
}

// NewDraft builds an unassigned draft as the import path creates it.
func NewDraft(ref ItemRef, text string, labels []string, refs []Reference, now time.Time) WorkItem {
	now = now.UTC()
	w := WorkItem{
		GroupKey:   ref.GroupKey,
		ID:         ref.ID,
		Status:     StatusDraft,
		Text:       text,
		Labels:     NormalizeLabels(labels),
		References: refs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	w.RecomputeDerived()
	return w
}

// ItemFilter narrows store iteration. Nil fields do not filter.
type ItemFilter struct {
	GroupKey   *string
	Status     *Status
	AssignedTo *string
	// Unassigned restricts to items with no holder.
	Unassigned bool
	// Randomize asks for an arbitrary sample instead of key order.
	// Randomized queries are not resumable.
	Randomize bool
}

// ItemPage is one page of iteration results.
type ItemPage struct {
	Items []WorkItem
	// NextCursor is empty when the iteration is exhausted.
	NextCursor string
}

// GroupStat summarises one group for quota weighting.
type GroupStat struct {
	GroupKey  string
	Available int
}
