// Package profile provides the application-owned profile record of a
// principal and the resolver that provisions it on first login.
//
// A profile is keyed by the identity provider's principal id and carries the
// principal's Role, which the guard package uses to gate views. Profiles live
// in a Store (see kgorm.ProfileRepository for the durable one); this package
// only reads them and creates a default one when none exists.
//
// # Resolution
//
//	resolver := profile.NewResolver(store)
//	p, err := resolver.Resolve(ctx, principalID, "alice@example.com")
//	// p.FirstName == "Alice", p.Role == profile.RoleMentee on first login
//
// # Caching
//
// Stores can be decorated with an in-process LRU (NewCachedStore) or the
// shared redis cache in the kredis package. Both keep Upsert write-through.
package profile

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/getkayan/mentorship/core/identity"
)

var (
	// ErrNotFound is the record-absent signal of a Store. It is distinct from
	// every other failure.
	ErrNotFound = errors.New("profile: not found")

	// ErrStoreUnavailable wraps any other Store failure seen by the resolver.
	ErrStoreUnavailable = errors.New("profile: store unavailable")

	// ErrAlreadyProvisioned reports that Provision found an existing profile.
	ErrAlreadyProvisioned = errors.New("profile: already provisioned")
)

// Profile is the durable record of a principal's role and personal attributes.
// Attributes holds free-form fields (bio, expertise, ...) the core never reads.
type Profile struct {
	ID         string        `json:"id"`
	Email      string        `json:"email"`
	FirstName  string        `json:"first_name"`
	LastName   string        `json:"last_name"`
	Role       Role          `json:"role"`
	Attributes identity.JSON `json:"attributes,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Clone returns a deep copy so cached or shared values are never aliased.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Attributes != nil {
		cp.Attributes = append(identity.JSON(nil), p.Attributes...)
	}
	return &cp
}

// Equal compares every field the core owns plus the raw attributes.
func (p *Profile) Equal(o *Profile) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.ID == o.ID &&
		p.Email == o.Email &&
		p.FirstName == o.FirstName &&
		p.LastName == o.LastName &&
		p.Role == o.Role &&
		bytes.Equal(p.Attributes, o.Attributes) &&
		p.CreatedAt.Equal(o.CreatedAt)
}

// Store is the keyed profile record store.
//
// Get returns ErrNotFound (possibly wrapped) when no record exists for id.
// Upsert creates or replaces the record with the same ID and returns the
// stored result.
type Store interface {
	Get(ctx context.Context, id string) (*Profile, error)
	Upsert(ctx context.Context, p *Profile) (*Profile, error)
}
