package domain

// Status is the curation lifecycle state of a work item.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusSkipped  Status = "skipped"
	StatusDeleted  Status = "deleted"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusSkipped, StatusDeleted:
		return true
	}
	return false
}

// IsTerminal reports whether the status releases the item's assignment.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusSkipped, StatusDeleted:
		return true
	}
	return false
}

// BackendCapability declares how a store executes conditional claims.
type BackendCapability string

const (
	// CapabilityAtomicPredicate stores evaluate the claim predicate server-side.
	CapabilityAtomicPredicate BackendCapability = "atomic_predicate"
	// CapabilityReadValidateWrite stores only offer version-checked replace.
	CapabilityReadValidateWrite BackendCapability = "read_validate_write"
)

func (c BackendCapability) String() string { return string(c) }

func (c BackendCapability) IsValid() bool {
	switch c {
	case CapabilityAtomicPredicate, CapabilityReadValidateWrite:
		return true
	}
	return false
}

// Role is a caller role supplied by the authentication layer.
type Role string

const (
	RoleCurator  Role = "curator"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	switch r {
	case RoleCurator, RoleReviewer, RoleAdmin:
		return true
	}
	return false
}

// IsAdmin returns true if the role has administrative privileges.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}
