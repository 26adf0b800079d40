package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "conversations"

type mongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(coll *mongo.Collection) Repository {
	return &mongoRepository{coll: coll}
}

// EnsureIndexes creates lookup indexes for direct conversations by
// participant pair and status_reply conversations by (statusId,
// replyer, author). The indexes are not unique: one conversation per
// pair or per status reply rests on the find-before-insert in
// GetOrCreateDirect and GetOrCreateStatusReply.
func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "type", Value: 1}, {Key: "participants", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "statusId", Value: 1}, {Key: "participants", Value: 1}},
			Options: options.Index().SetPartialFilterExpression(bson.M{"type": TypeStatusReply}),
		},
	})
	return err
}

func (r *mongoRepository) FindDirect(ctx context.Context, u1, u2 string) (*Conversation, error) {
	filter := bson.M{
		"type":         TypeDirect,
		"participants": bson.M{"$all": []string{u1, u2}, "$size": 2},
	}
	return r.findOne(ctx, filter)
}

func (r *mongoRepository) FindStatusReply(ctx context.Context, statusID, replyer, author string) (*Conversation, error) {
	filter := bson.M{
		"type":         TypeStatusReply,
		"statusId":     statusID,
		"participants": bson.M{"$all": []string{replyer, author}, "$size": 2},
	}
	return r.findOne(ctx, filter)
}

func (r *mongoRepository) findOne(ctx context.Context, filter bson.M) (*Conversation, error) {
	var conv Conversation
	err := r.coll.FindOne(ctx, filter).Decode(&conv)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *mongoRepository) Insert(ctx context.Context, c *Conversation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.coll.InsertOne(ctx, c)
	return err
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoRepository) AddDeletedFor(ctx context.Context, id, userID string) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$addToSet": bson.M{"deletedFor": userID},
		"$set":      bson.M{"updatedAt": time.Now()},
	})
	return err
}

func (r *mongoRepository) RemoveDeletedFor(ctx context.Context, id, userID string) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$pull": bson.M{"deletedFor": userID},
		"$set":  bson.M{"updatedAt": time.Now()},
	})
	return err
}

func (r *mongoRepository) SetAcceptanceStatus(ctx context.Context, id string, status AcceptanceStatus, at time.Time, reportedBy string) error {
	set := bson.M{"acceptanceStatus": status, "updatedAt": at}
	switch status {
	case StatusAccepted:
		set["acceptedAt"] = at
	case StatusReported:
		set["reportedAt"] = at
		set["reportedBy"] = reportedBy
	}
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	return err
}

func (r *mongoRepository) IncMessageCount(ctx context.Context, id, userID string, delta int) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"messageCounts." + userID: delta},
	})
	return err
}

func (r *mongoRepository) IncUnreadCount(ctx context.Context, id, userID string, delta int) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"unreadCounts." + userID: delta},
	})
	return err
}

func (r *mongoRepository) ResetUnreadCount(ctx context.Context, id, userID string) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"unreadCounts." + userID: 0},
	})
	return err
}

func (r *mongoRepository) SetLastMessage(ctx context.Context, id string, lm LastMessage) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"lastMessage": lm, "updatedAt": lm.At},
	})
	return err
}

func (r *mongoRepository) ListForUser(ctx context.Context, userID string, archived bool, page, limit int) ([]*Conversation, int, error) {
	filter := bson.M{"participants": userID}
	if archived {
		filter["deletedFor"] = userID
	} else {
		filter["deletedFor"] = bson.M{"$ne": userID}
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var out []*Conversation
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}
