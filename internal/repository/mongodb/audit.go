package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/freshledger/internal/domain/models"
)

// WriteAudit appends an entry to audit_logs. Entries are never updated.
func (r *MongoDBRepository) WriteAudit(ctx context.Context, entry models.AuditLogEntry) error {
	if _, err := r.db.Collection(auditCollection).InsertOne(ctx, entry); err != nil {
		return storeErr("write audit entry", err)
	}
	return nil
}

// ListAudit returns the most recent entries first.
func (r *MongoDBRepository) ListAudit(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.db.Collection(auditCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, storeErr("list audit entries", err)
	}
	entries := make([]models.AuditLogEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, storeErr("list audit entries", err)
	}
	return entries, nil
}
