package users

import (
	"strings"
)

// Profile is the identity returned by the storefront API for the logged-in
// account (/me/, and the "user" field of login/register responses).
type Profile struct {
	ID         int64  `json:"id"`                    // Server-assigned identifier
	Email      string `json:"email"`                 // Login email
	FirstName  string `json:"first_name,omitempty"`  // Given name
	LastName   string `json:"last_name,omitempty"`   // Family name
	IsStaff    bool   `json:"is_staff,omitempty"`    // IsStaff, may use the admin panel
	IsBlock    bool   `json:"isBlock,omitempty"`     // IsBlock, blocked by an administrator
	DateJoined string `json:"date_joined,omitempty"` // As formatted by the server
}

// FullName joins first and last name, falling back to the email.
func (p *Profile) FullName() string {
	if p == nil {
		return ""
	}
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Email
	}
	return name
}

// IsAdmin returns true if the profile may access the admin back office
func (p *Profile) IsAdmin() bool {
	return p != nil && p.IsStaff
}

// Clone returns a copy so callers cannot mutate a shared profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Registration holds the fields sent to POST /register/.
type Registration struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}
