package kgorm

import (
	"context"
	"errors"
	"time"

	"github.com/getkayan/mentorship/core/profile"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository implements profile.Store.
type ProfileRepository struct {
	db *gorm.DB
}

var _ profile.Store = (*ProfileRepository)(nil)

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Get(ctx context.Context, id string) (*profile.Profile, error) {
	var gp gormProfile
	if err := r.db.WithContext(ctx).First(&gp, "id = ?", id).Error; err != nil {
		return nil, notFound(err, profile.ErrNotFound, "profile "+id)
	}
	return toCoreProfile(&gp), nil
}

// Upsert inserts the profile or replaces every field but created_at of the
// row with the same id, then returns the stored row.
func (r *ProfileRepository) Upsert(ctx context.Context, p *profile.Profile) (*profile.Profile, error) {
	if p == nil || p.ID == "" {
		return nil, errors.New("kgorm: profile without id")
	}
	gp := fromCoreProfile(p)
	if gp.CreatedAt.IsZero() {
		gp.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "first_name", "last_name", "role", "attributes", "updated_at"}),
	}).Create(gp).Error
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, p.ID)
}

// Ping checks the database connection.
func (r *ProfileRepository) Ping(ctx context.Context) error {
	return ping(ctx, r.db)
}
