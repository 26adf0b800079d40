package status

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName            = "statuses"
	InteractionCollectionName = "status_interactions"
)

type mongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(coll *mongo.Collection) Repository {
	return &mongoRepository{coll: coll}
}

func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "deleted", Value: 1}, {Key: "expiresAt", Value: 1}}},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	return err
}

func (r *mongoRepository) Insert(ctx context.Context, s *Status) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.coll.InsertOne(ctx, s)
	return err
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*Status, error) {
	var s Status
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *mongoRepository) Feed(ctx context.Context, filters Filters, now time.Time, page, limit int) ([]*Status, int, error) {
	filter := bson.M{
		"deleted":    false,
		"isApproved": true,
		"expiresAt":  bson.M{"$gt": now},
	}
	if filters.Category != "" {
		filter["category"] = filters.Category
	}
	if filters.Country != "" {
		filter["country"] = filters.Country
	}
	if filters.City != "" {
		filter["city"] = filters.City
	}
	if filters.Search != "" {
		filter["content"] = bson.M{"$regex": filters.Search, "$options": "i"}
	}
	if filters.AuthorID != "" {
		filter["authorId"] = filters.AuthorID
		delete(filter, "isApproved")
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	sort := bson.D{{Key: "createdAt", Value: -1}}
	if filters.SortBy == "popular" {
		sort = bson.D{
			{Key: "counts.likes", Value: -1},
			{Key: "counts.views", Value: -1},
			{Key: "createdAt", Value: -1},
		}
	}

	opts := options.Find().SetSort(sort).SetSkip(int64((page - 1) * limit)).SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var out []*Status
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

func (r *mongoRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"deleted": true, "deletedAt": at, "updatedAt": at},
	})
	return err
}

func (r *mongoRepository) IncCounter(ctx context.Context, id, field string, delta int) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"counts." + field: delta},
	})
	return err
}

func (r *mongoRepository) ExpireAll(ctx context.Context, now time.Time) (int, error) {
	res, err := r.coll.UpdateMany(ctx, bson.M{
		"deleted":   false,
		"expiresAt": bson.M{"$lt": now},
	}, bson.M{
		"$set": bson.M{"deleted": true, "deletedAt": now, "updatedAt": now},
	})
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

type mongoInteractionRepository struct {
	coll *mongo.Collection
}

func NewMongoInteractionRepository(coll *mongo.Collection) InteractionRepository {
	return &mongoInteractionRepository{coll: coll}
}

func EnsureInteractionIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "statusId", Value: 1}, {Key: "userId", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"type": bson.M{"$in": []string{"like", "repost"}}}),
		},
		{Keys: bson.D{{Key: "statusId", Value: 1}, {Key: "userId", Value: 1}, {Key: "type", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	return err
}

type interactionDoc struct {
	StatusID  string    `bson:"statusId"`
	UserID    string    `bson:"userId"`
	Type      string    `bson:"type"`
	CreatedAt time.Time `bson:"createdAt"`
}

func (r *mongoInteractionRepository) TryInsert(ctx context.Context, statusID, userID string, typ InteractionType, now time.Time) (bool, error) {
	_, err := r.coll.InsertOne(ctx, interactionDoc{StatusID: statusID, UserID: userID, Type: string(typ), CreatedAt: now})
	if err == nil {
		return true, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	return false, err
}

func (r *mongoInteractionRepository) Delete(ctx context.Context, statusID, userID string, typ InteractionType) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"statusId": statusID, "userId": userID, "type": string(typ)})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *mongoInteractionRepository) LastViewAt(ctx context.Context, statusID, userID string) (time.Time, bool, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	var doc interactionDoc
	err := r.coll.FindOne(ctx, bson.M{"statusId": statusID, "userId": userID, "type": string(InteractionView)}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return doc.CreatedAt, true, nil
}

func (r *mongoInteractionRepository) BatchOverlay(ctx context.Context, statusIDs []string, userID string) (map[string]bool, map[string]bool, error) {
	cur, err := r.coll.Find(ctx, bson.M{
		"statusId": bson.M{"$in": statusIDs},
		"userId":   userID,
		"type":     bson.M{"$in": []string{string(InteractionLike), string(InteractionRepost)}},
	})
	if err != nil {
		return nil, nil, err
	}
	defer cur.Close(ctx)

	liked := map[string]bool{}
	reposted := map[string]bool{}
	var docs []interactionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, nil, err
	}
	for _, d := range docs {
		switch d.Type {
		case string(InteractionLike):
			liked[d.StatusID] = true
		case string(InteractionRepost):
			reposted[d.StatusID] = true
		}
	}
	return liked, reposted, nil
}

func (r *mongoInteractionRepository) ListByStatus(ctx context.Context, statusID string, typ InteractionType, skip, limit int) ([]string, int, error) {
	filter := bson.M{"statusId": statusID, "type": string(typ)}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetSkip(int64(skip)).SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var docs []interactionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	userIDs := make([]string, 0, len(docs))
	for _, d := range docs {
		userIDs = append(userIDs, d.UserID)
	}
	return userIDs, int(total), nil
}
