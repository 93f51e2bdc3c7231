// Package identity provides the principal, credential and token-session types
// persisted by the in-process identity provider.
//
// These types back provider.Local, the development identity provider that
// stands in for the hosted one. The session core itself only sees the
// provider.Session view of a login; it never reads these records directly.
//
// # Identity States
//
// Identities can be in one of several states:
//   - active: Normal operational state
//   - inactive: Disabled but not deleted
//   - locked: Locked by an operator
//   - pending: Awaiting email confirmation
package identity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

const (
	StateActive   = "active"
	StateInactive = "inactive"
	StateLocked   = "locked"
	StatePending  = "pending"
)

// JSON is a custom type for handling JSON data in various storages.
type JSON []byte

// NewJSON marshals v into a JSON value.
func NewJSON(v any) (JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSON(b), nil
}

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return errors.New("invalid type for JSON")
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// Identity is a principal known to the local identity provider.
type Identity struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex"`
	Traits    JSON      `json:"traits,omitempty"`
	State     string    `json:"state"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the identity may sign in.
func (i *Identity) Active() bool {
	return i.State == "" || i.State == StateActive
}

// Credential represents an authentication credential.
type Credential struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	IdentityID string    `json:"identity_id" gorm:"index"`
	Type       string    `json:"type"`
	Identifier string    `json:"identifier" gorm:"index"`
	Secret     string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Session is a token session issued by the local identity provider.
type Session struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	IdentityID       string    `json:"identity_id" gorm:"index"`
	RefreshToken     string    `json:"refresh_token,omitempty" gorm:"index"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
	IssuedAt         time.Time `json:"issued_at"`
	Active           bool      `json:"active"`
}

// ResetToken is a pending password reset for an identity.
type ResetToken struct {
	Token      string    `json:"-" gorm:"primaryKey"`
	IdentityID string    `json:"identity_id" gorm:"index"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}
