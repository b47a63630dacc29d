package models

import (
	"github.com/google/uuid"
)

// Role defines the team a participant estimates for.
type Role string

const (
	RoleDev      Role = "Dev"
	RolePlatform Role = "Platform"
	RoleCMS      Role = "CMS"
	RoleECOM     Role = "ECOM"
)

// Roles lists every valid role in display order.
var Roles = []Role{RoleDev, RolePlatform, RoleCMS, RoleECOM}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// IsModerator reports whether the role may reveal, hide and run countdowns.
func (r Role) IsModerator() bool {
	return r == RolePlatform
}

// User represents a participant joined to a session.
type User struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role Role      `json:"role"`
}
