package store

import (
	"encoding/base64"
	"strings"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

// EncodeCursor makes a continuation token that resumes after ref in
// (group_key, id) order.
func EncodeCursor(ref domain.ItemRef) string {
	return base64.RawURLEncoding.EncodeToString([]byte(ref.GroupKey + "\x00" + ref.ID))
}

// DecodeCursor parses a token made by EncodeCursor. The empty string decodes
// to the zero ref, which sorts before every item.
func DecodeCursor(cursor string) (domain.ItemRef, error) {
	if cursor == "" {
		return domain.ItemRef{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return domain.ItemRef{}, domain.NewValidationError("cursor", "malformed")
	}
	group, id, ok := strings.Cut(string(raw), "\x00")
	if !ok {
		return domain.ItemRef{}, domain.NewValidationError("cursor", "malformed")
	}
	return domain.ItemRef{GroupKey: group, ID: id}, nil
}

// After reports whether ref sorts strictly after the cursor position.
func After(ref, cursor domain.ItemRef) bool {
	if ref.GroupKey != cursor.GroupKey {
		return ref.GroupKey > cursor.GroupKey
	}
	return ref.ID > cursor.ID
}

// MatchFilter reports whether item satisfies filter. Backends that filter
// client-side use it so every backend agrees on semantics.
func MatchFilter(item domain.WorkItem, f domain.ItemFilter) bool {
	if f.GroupKey != nil && item.GroupKey != *f.GroupKey {
		return false
	}
	if f.Status != nil && item.Status != *f.Status {
		return false
	}
	if f.AssignedTo != nil && !item.IsAssignedTo(*f.AssignedTo) {
		return false
	}
	if f.Unassigned && item.AssignedTo != nil {
		return false
	}
	return true
}

// Available reports whether item counts towards group availability:
// an unassigned draft.
func Available(item domain.WorkItem) bool {
	return item.Status == domain.StatusDraft && item.AssignedTo == nil
}
