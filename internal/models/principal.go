package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the authorization level of a principal.
type Role string

const (
	RoleUser      Role = "USER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
)

// ParseRole maps text onto a Role, case-insensitively.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, nil
	case RoleModerator:
		return RoleModerator, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// Principal is the authenticated (or guest) caller of an operation.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// AnonymousReporterID identifies reports submitted without credentials.
const AnonymousReporterID = "anonymous"

// Guest is the principal used when a request carries no credentials.
func Guest() Principal {
	return Principal{ID: AnonymousReporterID, Role: RoleUser}
}

// CanModerate reports whether the principal may read the full report list
// and change report status.
func (p Principal) CanModerate() bool {
	return p.Role == RoleModerator || p.Role == RoleAdmin
}

// IsAdmin reports whether the principal may manage users.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	ReportCount  int       `json:"report_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal returns the principal a logged in user acts as.
func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role}
}

// UserQuery filters the admin user list.
type UserQuery struct {
	Search string // matched case-insensitively against name and email
	Role   *Role
}
