package kgorm

import (
	"context"
	"time"

	"github.com/getkayan/mentorship/core/domain"
	"github.com/getkayan/mentorship/core/identity"
	"gorm.io/gorm"
)

// CreateIdentity stores the identity and its credentials in one transaction.
func (r *Repository) CreateIdentity(ctx context.Context, ident *identity.Identity, creds ...*identity.Credential) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(fromCoreIdentity(ident)).Error; err != nil {
			return err
		}
		for _, c := range creds {
			if err := tx.Create(fromCoreCredential(c)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) GetIdentity(ctx context.Context, id string) (*identity.Identity, error) {
	var gi gormIdentity
	if err := r.db.WithContext(ctx).First(&gi, "id = ?", id).Error; err != nil {
		return nil, notFound(err, domain.ErrNotFound, "identity "+id)
	}
	return toCoreIdentity(&gi), nil
}

func (r *Repository) FindIdentityByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	var gi gormIdentity
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&gi).Error; err != nil {
		return nil, notFound(err, domain.ErrNotFound, "identity")
	}
	return toCoreIdentity(&gi), nil
}

func (r *Repository) GetCredentialByIdentifier(ctx context.Context, identifier string, method string) (*identity.Credential, error) {
	var gc gormCredential
	if err := r.db.WithContext(ctx).Where("identifier = ? AND type = ?", identifier, method).First(&gc).Error; err != nil {
		return nil, notFound(err, domain.ErrNotFound, "credential")
	}
	return toCoreCredential(&gc), nil
}

func (r *Repository) UpdateCredentialSecret(ctx context.Context, identityID, method, secret string) error {
	res := r.db.WithContext(ctx).
		Model(&gormCredential{}).
		Where("identity_id = ? AND type = ?", identityID, method).
		Updates(map[string]any{"secret": secret, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
