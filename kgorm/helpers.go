package kgorm

import (
	"time"

	"github.com/getkayan/mentorship/core/provider"
	"github.com/getkayan/mentorship/core/token"
	"gorm.io/gorm"
)

// NewLocalProvider creates a provider.Local backed by db. Audit events go to
// the same database unless an option overrides the store.
func NewLocalProvider(db *gorm.DB, tokens *token.Manager, opts ...provider.LocalOption) *provider.Local {
	opts = append([]provider.LocalOption{provider.WithAuditStore(NewAuditRepository(db))}, opts...)
	return provider.NewLocal(NewRepository(db), tokens, opts...)
}

// NewDatabaseTokens creates a token manager whose sessions live in db.
func NewDatabaseTokens(db *gorm.DB, expiry time.Duration) *token.Manager {
	return token.NewManager(token.NewDatabaseStrategy(NewRepository(db), expiry))
}
