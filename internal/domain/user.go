package domain

import "time"

// Role is the closed set of identities the service distinguishes.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleUser    Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAnalyst, RoleUser:
		return true
	}
	return false
}

// IsStaff reports whether the role works the shared support queue.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleAnalyst
}

// StaffRoles lists the roles that receive triage notifications.
var StaffRoles = []Role{RoleAdmin, RoleAnalyst}

// User is an authenticated identity as seen by this service.
type User struct {
	ID             string
	Name           string
	Email          string
	PasswordHash   string
	Role           Role
	OrganizationID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserRef is the public projection of a user embedded in payloads.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Ref returns the public projection of u.
func (u *User) Ref() UserRef {
	if u == nil {
		return UserRef{}
	}
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
