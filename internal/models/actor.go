package models

import "github.com/google/uuid"

// Role is the account type an authenticated user acts as
type Role string

const (
	RoleParent Role = "parent"
	RoleSacco  Role = "sacco"
	RoleAdmin  Role = "admin"
)

// IsValid checks if the role is one the system knows about
func (r Role) IsValid() bool {
	switch r {
	case RoleParent, RoleSacco, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller of a service operation.
// For sacco accounts UserID is the sacco id.
type Actor struct {
	UserID uuid.UUID
	Phone  string
	Role   Role
}

func (a Actor) IsParent() bool { return a.Role == RoleParent }
func (a Actor) IsSacco() bool  { return a.Role == RoleSacco }
func (a Actor) IsAdmin() bool  { return a.Role == RoleAdmin }
