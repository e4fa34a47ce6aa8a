package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/domain/models"
)

func (r *MongoDBRepository) GetEntry(ctx context.Context, itemID, date string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.Collection(ledgerCollection).
		FindOne(ctx, bson.M{"item_id": itemID, "date": date}).
		Decode(&entry)
	if err != nil {
		return nil, storeErr("get ledger entry", err)
	}
	return &entry, nil
}

func (r *MongoDBRepository) ListByDate(ctx context.Context, date string) ([]models.LedgerEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "item_id", Value: 1}})
	return r.findEntries(ctx, "list ledger by date", bson.M{"date": date}, opts)
}

// ListByItem returns the item's entries from the given date on, oldest first.
func (r *MongoDBRepository) ListByItem(ctx context.Context, itemID, from string, limit int) ([]models.LedgerEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.findEntries(ctx, "list ledger by item", bson.M{"item_id": itemID, "date": bson.M{"$gte": from}}, opts)
}

func (r *MongoDBRepository) ListBefore(ctx context.Context, cutoff string) ([]models.LedgerEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "item_id", Value: 1}})
	return r.findEntries(ctx, "list ledger before cutoff", bson.M{"date": bson.M{"$lt": cutoff}}, opts)
}

func (r *MongoDBRepository) findEntries(ctx context.Context, op string, filter bson.M, opts *options.FindOptions) ([]models.LedgerEntry, error) {
	cursor, err := r.db.Collection(ledgerCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, storeErr(op, err)
	}
	entries := make([]models.LedgerEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, storeErr(op, err)
	}
	return entries, nil
}

// UpsertEntry writes the entry keyed by (item_id, date). The id and created_at
// of an existing entry are kept.
func (r *MongoDBRepository) UpsertEntry(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = entry.UpdatedAt
	}

	update := bson.M{
		"$set": bson.M{
			"yesterday_net":    entry.YesterdayNet,
			"today_quantity":   entry.TodayQuantity,
			"total":            entry.Total,
			"today_sale":       entry.TodaySale,
			"return_to_market": entry.ReturnToMarket,
			"adjust_quantity":  entry.AdjustQuantity,
			"net_amount":       entry.NetAmount,
			"updated_at":       entry.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"created_at": createdAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var saved models.LedgerEntry
	err := r.db.Collection(ledgerCollection).
		FindOneAndUpdate(ctx, bson.M{"item_id": entry.ItemID, "date": entry.Date}, update, opts).
		Decode(&saved)
	if err != nil {
		r.logger.Warn("ledger upsert failed", zap.String("item_id", entry.ItemID), zap.String("date", entry.Date), zap.Error(err))
		return models.LedgerEntry{}, storeErr("upsert ledger entry", err)
	}
	return saved, nil
}

func (r *MongoDBRepository) DeleteEntry(ctx context.Context, id string) error {
	res, err := r.db.Collection(ledgerCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storeErr("delete ledger entry", err)
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}
