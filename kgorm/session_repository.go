package kgorm

import (
	"context"

	"github.com/getkayan/mentorship/core/domain"
	"github.com/getkayan/mentorship/core/identity"
	"gorm.io/gorm"
)

func (r *Repository) CreateSession(ctx context.Context, s *identity.Session) error {
	return r.db.WithContext(ctx).Create(fromCoreSession(s)).Error
}

func (r *Repository) GetSession(ctx context.Context, id string) (*identity.Session, error) {
	var gs gormSession
	if err := r.db.WithContext(ctx).First(&gs, "id = ?", id).Error; err != nil {
		return nil, notFound(err, domain.ErrNotFound, "session")
	}
	return toCoreSession(&gs), nil
}

func (r *Repository) GetSessionByRefreshToken(ctx context.Context, token string) (*identity.Session, error) {
	var gs gormSession
	if err := r.db.WithContext(ctx).Where("refresh_token = ?", token).First(&gs).Error; err != nil {
		return nil, notFound(err, domain.ErrNotFound, "session")
	}
	return toCoreSession(&gs), nil
}

func (r *Repository) DeleteSession(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&gormSession{}, "id = ?", id).Error
}

func (r *Repository) SaveResetToken(ctx context.Context, t *identity.ResetToken) error {
	return r.db.WithContext(ctx).Create(&gormResetToken{
		Token:      t.Token,
		IdentityID: t.IdentityID,
		ExpiresAt:  t.ExpiresAt,
		CreatedAt:  t.CreatedAt,
	}).Error
}

// ConsumeResetToken reads and deletes the token in one transaction, so a
// token is redeemed at most once.
func (r *Repository) ConsumeResetToken(ctx context.Context, token string) (*identity.ResetToken, error) {
	var gt gormResetToken
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&gt, "token = ?", token).Error; err != nil {
			return err
		}
		res := tx.Delete(&gormResetToken{}, "token = ?", token)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, notFound(err, domain.ErrNotFound, "reset token")
	}
	return &identity.ResetToken{
		Token:      gt.Token,
		IdentityID: gt.IdentityID,
		ExpiresAt:  gt.ExpiresAt,
		CreatedAt:  gt.CreatedAt,
	}, nil
}
