package domain

import (
	"time"

	"github.com/google/uuid"
)

// assignmentNamespace seeds deterministic assignment record ids.
var assignmentNamespace = uuid.MustParse("6f1c2a9e-4b1d-5c3e-9a7f-0d2b8e4c1a35")

// AssignmentRecordID derives the index record id from the item identity.
// The same item always maps to the same id, which makes upserts idempotent.
func AssignmentRecordID(ref ItemRef) uuid.UUID {
	return uuid.NewSHA1(assignmentNamespace, []byte(ref.GroupKey+"\x00"+ref.ID))
}

// AssignmentRecord is a per-user pointer to an assigned item. It is advisory:
// the item's AssignedTo field is authoritative.
type AssignmentRecord struct {
	ID        uuid.UUID
	UserID    string
	Item      ItemRef
	CreatedAt time.Time
}

// NewAssignmentRecord builds the index record for userID holding ref.
func NewAssignmentRecord(userID string, ref ItemRef, now time.Time) AssignmentRecord {
	return AssignmentRecord{
		ID:        AssignmentRecordID(ref),
		UserID:    userID,
		Item:      ref,
		CreatedAt: now.UTC(),
	}
}

// ClaimResult is the outcome of a single claim attempt.
// Item is set only when Success is true.
type ClaimResult struct {
	Success bool
	Item    *WorkItem
}

// SelfAssignResult reports a batch self-assignment. Partial fulfilment
// (AssignedCount < Requested) is a valid outcome.
type SelfAssignResult struct {
	Assigned      []WorkItem
	Requested     int
	AssignedCount int
}
