// Package identity manages local user records mirrored from the identity
// provider.
package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates an unknown user.
	ErrNotFound = errors.New("identity: user not found")
	// ErrUnavailable indicates the user store could not be reached.
	ErrUnavailable = errors.New("identity: store unavailable")
)

// User is the local mirror of a provider account. The provider owns
// credentials; this record carries profile data and the superuser flag.
type User struct {
	ID          uuid.UUID  `json:"id"`
	Subject     string     `json:"subject"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	IsSuperuser bool       `json:"is_superuser"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// GetID implements rbac.Principal.
func (u *User) GetID() uuid.UUID { return u.ID }

// IsSuperUser implements rbac.Principal.
func (u *User) IsSuperUser() bool { return u.IsSuperuser }
