package auth

import (
	"errors"
	"fmt"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the verified caller behind a bearer token.
type Identity struct {
	UserID string
	Roles  []domain.Role
}

// rolesClaim carries the caller's roles next to the standard claims.
// Unknown role names are dropped rather than failing the token.
type rolesClaim struct {
	Roles []string `json:"roles,omitempty"`
}

func (c rolesClaim) domainRoles() []domain.Role {
	roles := make([]domain.Role, 0, len(c.Roles))
	for _, name := range c.Roles {
		r := domain.Role(name)
		if r.IsValid() {
			roles = append(roles, r)
		}
	}
	return roles
}

func identityFrom(subject string, rc rolesClaim) (Identity, error) {
	if subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Identity{UserID: subject, Roles: rc.domainRoles()}, nil
}
