package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/domain/models"
)

func (r *MongoDBRepository) ListItems(ctx context.Context) ([]models.CatalogItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := r.db.Collection(catalogCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, storeErr("list catalog", err)
	}
	items := make([]models.CatalogItem, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, storeErr("list catalog", err)
	}
	return items, nil
}

func (r *MongoDBRepository) GetItem(ctx context.Context, id string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	if err := r.db.Collection(catalogCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&item); err != nil {
		return nil, storeErr("get catalog item "+id, err)
	}
	return &item, nil
}

func (r *MongoDBRepository) CreateItem(ctx context.Context, item models.CatalogItem) (models.CatalogItem, error) {
	if item.RateHistory == nil {
		item.RateHistory = []models.RatePoint{}
	}
	if _, err := r.db.Collection(catalogCollection).InsertOne(ctx, item); err != nil {
		return models.CatalogItem{}, storeErr("create catalog item "+item.ID, err)
	}
	return item, nil
}

// GetItems resolves every id or fails with the first missing one.
func (r *MongoDBRepository) GetItems(ctx context.Context, ids []string) (map[string]models.CatalogItem, error) {
	cursor, err := r.db.Collection(catalogCollection).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, storeErr("resolve catalog items", err)
	}
	var found []models.CatalogItem
	if err := cursor.All(ctx, &found); err != nil {
		return nil, storeErr("resolve catalog items", err)
	}

	out := make(map[string]models.CatalogItem, len(found))
	for _, item := range found {
		out[item.ID] = item
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("catalog item %s: %w", id, models.ErrNotFound)
		}
	}
	return out, nil
}

// ApplyChanges applies every change inside one transaction. A missing item or
// any write error aborts the whole batch.
func (r *MongoDBRepository) ApplyChanges(ctx context.Context, changes []models.CatalogChange) ([]models.CatalogItem, error) {
	session, err := r.client.StartSession()
	if err != nil {
		return nil, storeErr("start session", err)
	}
	defer session.EndSession(ctx)

	coll := r.db.Collection(catalogCollection)
	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		updated := make([]models.CatalogItem, 0, len(changes))
		for _, c := range changes {
			var item models.CatalogItem
			if err := coll.FindOne(sc, bson.M{"_id": c.ItemID}).Decode(&item); err != nil {
				return nil, err
			}
			c.Apply(&item)

			res, err := coll.UpdateOne(sc, bson.M{"_id": item.ID}, bson.M{"$set": bson.M{
				"rate":         item.Rate,
				"available":    item.Available,
				"rate_history": item.RateHistory,
				"updated_at":   item.UpdatedAt,
			}})
			if err != nil {
				return nil, err
			}
			if res.MatchedCount == 0 {
				return nil, mongo.ErrNoDocuments
			}
			updated = append(updated, item)
		}
		return updated, nil
	})
	if err != nil {
		r.logger.Warn("catalog transaction aborted", zap.Int("changes", len(changes)), zap.Error(err))
		return nil, storeErr("apply catalog changes", err)
	}
	return result.([]models.CatalogItem), nil
}
