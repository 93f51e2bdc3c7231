// Package kgorm implements the storage contracts of the session core on
// GORM: identities, credentials and token sessions of the local identity
// provider (Repository), profiles (ProfileRepository) and the audit trail
// (AuditRepository).
//
// SQLite (pure Go), PostgreSQL and MySQL dialects are registered by default:
//
//	db, err := kgorm.Open("sqlite", "mentorship.db", nil)
//	repo := kgorm.NewRepository(db)
//	if err := repo.AutoMigrate(); err != nil { ... }
package kgorm

import (
	"context"
	"errors"
	"fmt"

	"github.com/getkayan/mentorship/core/domain"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Repository implements domain.Storage.
type Repository struct {
	db *gorm.DB
}

var _ domain.Storage = (*Repository)(nil)

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *gorm.DB {
	return r.db
}

func init() {
	Register("sqlite", sqlite.Open)
	Register("postgres", postgres.Open)
	Register("mysql", mysql.Open)
}

// AutoMigrate creates or updates every table used by the package, plus any
// extra models.
func (r *Repository) AutoMigrate(models ...any) error {
	baseModels := []any{
		&gormIdentity{},
		&gormCredential{},
		&gormSession{},
		&gormResetToken{},
		&gormProfile{},
		&gormAuditEvent{},
	}
	return r.db.AutoMigrate(append(baseModels, models...)...)
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return ping(ctx, r.db)
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// notFound maps gorm's record-not-found error to sentinel.
func notFound(err error, sentinel error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, sentinel)
	}
	return err
}
