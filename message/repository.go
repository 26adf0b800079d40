package message

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "messages"

type mongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(coll *mongo.Collection) Repository {
	return &mongoRepository{coll: coll}
}

func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	return err
}

func (r *mongoRepository) Insert(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*Message, error) {
	var m Message
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *mongoRepository) FindByIDs(ctx context.Context, ids []string) ([]*Message, error) {
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mongoRepository) ListByConversation(ctx context.Context, conversationID string, skip, limit int) ([]*Message, int, error) {
	filter := bson.M{"conversationId": conversationID, "deleted": false}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var out []*Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

func (r *mongoRepository) MarkAllReadExceptSender(ctx context.Context, conversationID, userID string) (int, error) {
	filter := bson.M{
		"conversationId": conversationID,
		"senderId":       bson.M{"$ne": userID},
		"deleted":        false,
		"readBy":         bson.M{"$ne": userID},
	}
	res, err := r.coll.UpdateMany(ctx, filter, bson.M{
		"$addToSet": bson.M{"readBy": userID},
		"$set":      bson.M{"status": StatusRead, "updatedAt": time.Now()},
	})
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

func (r *mongoRepository) AddReadBy(ctx context.Context, ids []string, userID string) error {
	_, err := r.coll.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, bson.M{
		"$addToSet": bson.M{"readBy": userID},
		"$set":      bson.M{"status": StatusRead, "updatedAt": time.Now()},
	})
	return err
}

func (r *mongoRepository) AddDeliveredTo(ctx context.Context, ids []string, userID string) error {
	_, err := r.coll.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": ids}}, bson.M{
		"$addToSet": bson.M{"deliveredTo": userID},
		"$set":      bson.M{"updatedAt": time.Now()},
	})
	return err
}

func (r *mongoRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"deleted": true, "deletedAt": at, "updatedAt": at},
	})
	return err
}

func (r *mongoRepository) AddDeletedFor(ctx context.Context, id, userID string) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$addToSet": bson.M{"deletedFor": userID},
		"$set":      bson.M{"updatedAt": time.Now()},
	})
	return err
}
