package kgorm

import (
	"context"
	"time"

	"github.com/getkayan/mentorship/core/audit"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditRepository implements audit.AuditStore.
type AuditRepository struct {
	db *gorm.DB
}

var _ audit.AuditStore = (*AuditRepository)(nil)

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) SaveEvent(ctx context.Context, event *audit.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(fromCoreAuditEvent(event)).Error
}

func (r *AuditRepository) filtered(ctx context.Context, f audit.Filter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&gormAuditEvent{})
	if f.ActorID != "" {
		q = q.Where("actor_id = ?", f.ActorID)
	}
	if f.SubjectID != "" {
		q = q.Where("subject_id = ?", f.SubjectID)
	}
	if len(f.Types) > 0 {
		q = q.Where("type IN ?", f.Types)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if !f.StartTime.IsZero() {
		q = q.Where("created_at >= ?", f.StartTime)
	}
	if !f.EndTime.IsZero() {
		q = q.Where("created_at <= ?", f.EndTime)
	}
	return q
}

func (r *AuditRepository) Query(ctx context.Context, f audit.Filter) ([]audit.AuditEvent, error) {
	q := r.filtered(ctx, f).Order("created_at DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []gormAuditEvent
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]audit.AuditEvent, len(rows))
	for i := range rows {
		events[i] = toCoreAuditEvent(&rows[i])
	}
	return events, nil
}

func (r *AuditRepository) Count(ctx context.Context, f audit.Filter) (int64, error) {
	var n int64
	err := r.filtered(ctx, f).Count(&n).Error
	return n, err
}

func (r *AuditRepository) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", olderThan).Delete(&gormAuditEvent{})
	return res.RowsAffected, res.Error
}
