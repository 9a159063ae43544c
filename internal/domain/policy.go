package domain

import "maps"

// Permission is what one role may do.
type Permission struct {
	Fields FieldMask
	// Force allows taking over an item held by another user.
	Force bool
	// Restore allows moving a non-draft item back to draft.
	Restore bool
	// BypassOwnership allows assignment-scoped edits on items held by others.
	BypassOwnership bool
}

// Policy is the immutable tuning of assignment and update behaviour.
// Build it once with NewPolicy and pass it by value.
type Policy struct {
	overFetchFactor int
	maxOverFetch    int
	retryPasses     int
	requireVersion  bool
	permissions     map[Role]Permission
}

// PolicyParams are the raw inputs of NewPolicy.
type PolicyParams struct {
	OverFetchFactor int
	MaxOverFetch    int
	RetryPasses     int
	RequireVersion  bool
	Permissions     map[Role]Permission
}

// NewPolicy copies params into an immutable Policy, applying floors:
// over-fetch factor at least 1, max over-fetch at least 1, retry passes at least 0.
func NewPolicy(p PolicyParams) Policy {
	perms := make(map[Role]Permission, len(p.Permissions))
	for role, perm := range p.Permissions {
		perm.Fields = maps.Clone(perm.Fields)
		perms[role] = perm
	}
	return Policy{
		overFetchFactor: max(p.OverFetchFactor, 1),
		maxOverFetch:    max(p.MaxOverFetch, 1),
		retryPasses:     max(p.RetryPasses, 0),
		requireVersion:  p.RequireVersion,
		permissions:     perms,
	}
}

// DefaultPermissions is the role table used when none is configured.
func DefaultPermissions() map[Role]Permission {
	return map[Role]Permission{
		RoleCurator: {
			Fields: NewFieldMask(FieldStatus, FieldText, FieldLabels, FieldReferences, FieldNotes),
		},
		RoleReviewer: {
			Fields:          NewFieldMask(FieldStatus, FieldNotes),
			BypassOwnership: true,
		},
		RoleAdmin: {
			Fields:          NewFieldMask(AllFields()...),
			Force:           true,
			Restore:         true,
			BypassOwnership: true,
		},
	}
}

// DefaultPolicy is the strict policy used when nothing is configured.
func DefaultPolicy() Policy {
	return NewPolicy(PolicyParams{
		OverFetchFactor: 2,
		MaxOverFetch:    200,
		RetryPasses:     1,
		RequireVersion:  true,
		Permissions:     DefaultPermissions(),
	})
}

func (p Policy) OverFetchFactor() int { return p.overFetchFactor }
func (p Policy) MaxOverFetch() int    { return p.maxOverFetch }
func (p Policy) RetryPasses() int     { return p.retryPasses }
func (p Policy) RequireVersion() bool { return p.requireVersion }

// FetchSize is the over-fetched candidate count for a quota.
func (p Policy) FetchSize(quota int) int {
	if quota <= 0 {
		return 0
	}
	return min(quota*p.overFetchFactor, p.maxOverFetch)
}

// MaskFor returns the union of field masks granted to roles.
func (p Policy) MaskFor(roles []Role) FieldMask {
	mask := FieldMask{}
	for _, r := range roles {
		if perm, ok := p.permissions[r]; ok {
			mask = mask.Union(perm.Fields)
		}
	}
	return mask
}

// CanForce reports whether any role may take over held items.
func (p Policy) CanForce(roles []Role) bool {
	return p.any(roles, func(perm Permission) bool { return perm.Force })
}

// CanRestore reports whether any role may restore items to draft.
func (p Policy) CanRestore(roles []Role) bool {
	return p.any(roles, func(perm Permission) bool { return perm.Restore })
}

// EnforceOwnership reports whether assignment-scoped edits by these roles
// must come from the current holder.
func (p Policy) EnforceOwnership(roles []Role) bool {
	return !p.any(roles, func(perm Permission) bool { return perm.BypassOwnership })
}

func (p Policy) any(roles []Role, fn func(Permission) bool) bool {
	for _, r := range roles {
		if perm, ok := p.permissions[r]; ok && fn(perm) {
			return true
		}
	}
	return false
}
