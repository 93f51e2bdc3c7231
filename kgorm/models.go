package kgorm

import (
	"time"

	"github.com/getkayan/mentorship/core/audit"
	"github.com/getkayan/mentorship/core/identity"
	"github.com/getkayan/mentorship/core/profile"
)

type gormIdentity struct {
	ID        string        `gorm:"primaryKey"`
	Email     string        `gorm:"uniqueIndex"`
	Traits    identity.JSON `gorm:"type:json"`
	State     string
	Verified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (gormIdentity) TableName() string { return "identities" }

func toCoreIdentity(gi *gormIdentity) *identity.Identity {
	if gi == nil {
		return nil
	}
	return &identity.Identity{
		ID:        gi.ID,
		Email:     gi.Email,
		Traits:    gi.Traits,
		State:     gi.State,
		Verified:  gi.Verified,
		CreatedAt: gi.CreatedAt,
		UpdatedAt: gi.UpdatedAt,
	}
}

func fromCoreIdentity(i *identity.Identity) *gormIdentity {
	if i == nil {
		return nil
	}
	return &gormIdentity{
		ID:        i.ID,
		Email:     i.Email,
		Traits:    i.Traits,
		State:     i.State,
		Verified:  i.Verified,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

type gormCredential struct {
	ID         string `gorm:"primaryKey"`
	IdentityID string `gorm:"index"`
	Type       string `gorm:"uniqueIndex:idx_credential_type_identifier"`
	Identifier string `gorm:"uniqueIndex:idx_credential_type_identifier"`
	Secret     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (gormCredential) TableName() string { return "credentials" }

func toCoreCredential(gc *gormCredential) *identity.Credential {
	if gc == nil {
		return nil
	}
	return &identity.Credential{
		ID:         gc.ID,
		IdentityID: gc.IdentityID,
		Type:       gc.Type,
		Identifier: gc.Identifier,
		Secret:     gc.Secret,
		CreatedAt:  gc.CreatedAt,
		UpdatedAt:  gc.UpdatedAt,
	}
}

func fromCoreCredential(c *identity.Credential) *gormCredential {
	if c == nil {
		return nil
	}
	return &gormCredential{
		ID:         c.ID,
		IdentityID: c.IdentityID,
		Type:       c.Type,
		Identifier: c.Identifier,
		Secret:     c.Secret,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

type gormSession struct {
	ID               string `gorm:"primaryKey"`
	IdentityID       string `gorm:"index"`
	RefreshToken     string `gorm:"index"`
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	IssuedAt         time.Time
	Active           bool
}

func (gormSession) TableName() string { return "sessions" }

func toCoreSession(gs *gormSession) *identity.Session {
	return &identity.Session{
		ID:               gs.ID,
		IdentityID:       gs.IdentityID,
		RefreshToken:     gs.RefreshToken,
		ExpiresAt:        gs.ExpiresAt,
		RefreshExpiresAt: gs.RefreshExpiresAt,
		IssuedAt:         gs.IssuedAt,
		Active:           gs.Active,
	}
}

func fromCoreSession(s *identity.Session) *gormSession {
	return &gormSession{
		ID:               s.ID,
		IdentityID:       s.IdentityID,
		RefreshToken:     s.RefreshToken,
		ExpiresAt:        s.ExpiresAt,
		RefreshExpiresAt: s.RefreshExpiresAt,
		IssuedAt:         s.IssuedAt,
		Active:           s.Active,
	}
}

type gormResetToken struct {
	Token      string    `gorm:"primaryKey"`
	IdentityID string    `gorm:"index"`
	ExpiresAt  time.Time `gorm:"index"`
	CreatedAt  time.Time
}

func (gormResetToken) TableName() string { return "reset_tokens" }

type gormProfile struct {
	ID         string `gorm:"primaryKey"`
	Email      string `gorm:"index"`
	FirstName  string
	LastName   string
	Role       string        `gorm:"index"`
	Attributes identity.JSON `gorm:"type:json"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (gormProfile) TableName() string { return "profiles" }

func toCoreProfile(gp *gormProfile) *profile.Profile {
	return &profile.Profile{
		ID:         gp.ID,
		Email:      gp.Email,
		FirstName:  gp.FirstName,
		LastName:   gp.LastName,
		Role:       profile.Role(gp.Role),
		Attributes: gp.Attributes,
		CreatedAt:  gp.CreatedAt,
	}
}

func fromCoreProfile(p *profile.Profile) *gormProfile {
	return &gormProfile{
		ID:         p.ID,
		Email:      p.Email,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Role:       string(p.Role),
		Attributes: p.Attributes,
		CreatedAt:  p.CreatedAt,
	}
}

type gormAuditEvent struct {
	ID        string `gorm:"primaryKey"`
	Type      string `gorm:"index"`
	ActorID   string `gorm:"index"`
	SubjectID string `gorm:"index"`
	Status    string `gorm:"index"`
	Message   string
	Metadata  identity.JSON `gorm:"type:json"`
	Risk      string
	CreatedAt time.Time `gorm:"index"`
}

func (gormAuditEvent) TableName() string { return "audit_events" }

func fromCoreAuditEvent(e *audit.AuditEvent) *gormAuditEvent {
	return &gormAuditEvent{
		ID:        e.ID,
		Type:      e.Type,
		ActorID:   e.ActorID,
		SubjectID: e.SubjectID,
		Status:    e.Status,
		Message:   e.Message,
		Metadata:  e.Metadata,
		Risk:      string(e.Risk),
		CreatedAt: e.CreatedAt,
	}
}

func toCoreAuditEvent(g *gormAuditEvent) audit.AuditEvent {
	return audit.AuditEvent{
		ID:        g.ID,
		Type:      g.Type,
		ActorID:   g.ActorID,
		SubjectID: g.SubjectID,
		Status:    g.Status,
		Message:   g.Message,
		Metadata:  g.Metadata,
		Risk:      audit.RiskLevel(g.Risk),
		CreatedAt: g.CreatedAt,
	}
}
