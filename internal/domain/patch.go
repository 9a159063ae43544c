package domain

import (
	"maps"
	"slices"
	"strings"
)

// Field names a patchable work-item field.
type Field string

const (
	FieldStatus     Field = "status"
	FieldText       Field = "text"
	FieldLabels     Field = "labels"
	FieldReferences Field = "references"
	FieldNotes      Field = "notes"
)

func (f Field) String() string { return string(f) }

func (f Field) IsValid() bool {
	switch f {
	case FieldStatus, FieldText, FieldLabels, FieldReferences, FieldNotes:
		return true
	}
	return false
}

// AllFields lists every patchable field.
func AllFields() []Field {
	return []Field{FieldStatus, FieldText, FieldLabels, FieldReferences, FieldNotes}
}

// ParseField converts a wire name to a Field.
func ParseField(s string) (Field, bool) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	return f, f.IsValid()
}

// FieldMask is the set of fields a caller may change.
type FieldMask map[Field]struct{}

// NewFieldMask builds a mask from the given fields.
func NewFieldMask(fields ...Field) FieldMask {
	m := make(FieldMask, len(fields))
	for _, f := range fields {
		m[f] = struct{}{}
	}
	return m
}

// Allows reports whether f is in the mask.
func (m FieldMask) Allows(f Field) bool {
	_, ok := m[f]
	return ok
}

// Union returns a new mask with the fields of both.
func (m FieldMask) Union(other FieldMask) FieldMask {
	out := maps.Clone(m)
	if out == nil {
		out = make(FieldMask, len(other))
	}
	maps.Copy(out, other)
	return out
}

// Fields returns the mask members in a stable order.
func (m FieldMask) Fields() []Field {
	fields := slices.Collect(maps.Keys(m))
	slices.Sort(fields)
	return fields
}

// FieldPatch is a partial update. Nil fields are left unchanged.
// Notes set to ptr("") clears the notes.
type FieldPatch struct {
	Status     *Status
	Text       *string
	Labels     *[]string
	References *[]Reference
	Notes      *string

	// Restore moves a non-draft item back to draft. Policy-gated.
	Restore bool
}

// Fields returns the fields the patch touches.
func (p FieldPatch) Fields() []Field {
	var fields []Field
	if p.Status != nil || p.Restore {
		fields = append(fields, FieldStatus)
	}
	if p.Text != nil {
		fields = append(fields, FieldText)
	}
	if p.Labels != nil {
		fields = append(fields, FieldLabels)
	}
	if p.References != nil {
		fields = append(fields, FieldReferences)
	}
	if p.Notes != nil {
		fields = append(fields, FieldNotes)
	}
	return fields
}

// IsEmpty reports whether the patch changes nothing.
func (p FieldPatch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// TouchesContent reports whether any non-status field is set.
func (p FieldPatch) TouchesContent() bool {
	return p.Text != nil || p.Labels != nil || p.References != nil || p.Notes != nil
}

const (
	maxTextLength  = 100_000
	maxLabels      = 64
	maxLabelLength = 100
	maxReferences  = 500
	maxNotesLength = 5_000
)

// Validate checks field values and collects all errors.
func (p FieldPatch) Validate() error {
	var errs []FieldError

	if p.Status != nil && !p.Status.IsValid() {
		errs = append(errs, FieldError{Field: "status", Message: "must be one of draft, approved, skipped, deleted"})
	}
	if p.Restore && p.Status != nil && *p.Status != StatusDraft {
		errs = append(errs, FieldError{Field: "status", Message: "restore only targets draft"})
	}
	if p.Text != nil && len(*p.Text) > maxTextLength {
		errs = append(errs, FieldError{Field: "text", Message: "too long"})
	}
	if p.Labels != nil {
		if len(*p.Labels) > maxLabels {
			errs = append(errs, FieldError{Field: "labels", Message: "too many labels"})
		}
		for _, l := range *p.Labels {
			if len(l) > maxLabelLength {
				errs = append(errs, FieldError{Field: "labels", Message: "label too long"})
				break
			}
		}
	}
	if p.References != nil {
		if len(*p.References) > maxReferences {
			errs = append(errs, FieldError{Field: "references", Message: "too many references"})
		}
		for _, r := range *p.References {
			if strings.TrimSpace(r.Source) == "" {
				errs = append(errs, FieldError{Field: "references", Message: "source required"})
				break
			}
		}
	}
	if p.Notes != nil && len(*p.Notes) > maxNotesLength {
		errs = append(errs, FieldError{Field: "notes", Message: "too long"})
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// UpdateOptions carries per-call switches resolved by the request layer.
type UpdateOptions struct {
	EnforceOwnership bool
	AllowRestore     bool
}

// UpdateRequest is the input to the update workflow.
type UpdateRequest struct {
	Item            ItemRef
	Patch           FieldPatch
	ExpectedVersion Version
	CallerID        string
	Mask            FieldMask
	Options         UpdateOptions
}
