package repository

import (
	"context"
	"encoding/json"
	"log"

	"parcelhop/internal/models"

	"gorm.io/gorm"
)

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Record writes an audit entry. Failures are logged, never returned.
func (r *AuditLogRepository) Record(ctx context.Context, userID *uint, action, resource, resourceID string, metadata map[string]interface{}) {
	entry := &models.AuditLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
	}
	if ip, ok := ctx.Value(ClientIPKey{}).(string); ok {
		entry.IP = ip
	}
	if ua, ok := ctx.Value(UserAgentKey{}).(string); ok {
		entry.UserAgent = ua
	}
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			entry.Metadata = string(b)
		}
	}
	if err := conn(ctx, r.db).Create(entry).Error; err != nil {
		log.Printf("[audit] failed to record %s on %s/%s: %v", action, resource, resourceID, err)
	}
}

func (r *AuditLogRepository) ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error) {
	var list []models.AuditLog
	err := conn(ctx, r.db).Where("resource = ? AND resource_id = ?", resource, resourceID).Order("id ASC").Find(&list).Error
	return list, err
}

// Context keys the HTTP layer sets so audit entries carry request origin.
type (
	ClientIPKey  struct{}
	UserAgentKey struct{}
)
