package vote

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "challenge_votes"

type mongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(coll *mongo.Collection) Repository { return &mongoRepository{coll: coll} }

// EnsureIndexes backs the payment-session lookup that confirmPayment
// depends on for both the happy path and the idempotent-retry path.
func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "paymentIntentId", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	})
	return err
}

func (r *mongoRepository) Insert(ctx context.Context, v *ChallengeVote) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	_, err := r.coll.InsertOne(ctx, v)
	return err
}

func (r *mongoRepository) findOne(ctx context.Context, filter bson.M) (*ChallengeVote, error) {
	var v ChallengeVote
	err := r.coll.FindOne(ctx, filter).Decode(&v)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*ChallengeVote, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoRepository) FindByPaymentIntentID(ctx context.Context, sessionID string) (*ChallengeVote, error) {
	return r.findOne(ctx, bson.M{"paymentIntentId": sessionID})
}

func (r *mongoRepository) SetPaymentIntentID(ctx context.Context, id, sessionID string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"paymentIntentId": sessionID, "updatedAt": at},
	})
	return err
}

func (r *mongoRepository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"paymentStatus": PaymentCompleted, "updatedAt": at},
	})
	return err
}

func (r *mongoRepository) SetTickets(ctx context.Context, id string, ticketIDs []string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"tombolaTicketIds": ticketIDs,
			"ticketsGenerated": len(ticketIDs) > 0,
			"updatedAt":        at,
		},
	})
	return err
}

func (r *mongoRepository) SetTicketGenerationError(ctx context.Context, id, errMsg string) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"ticketGenerationError": errMsg},
	})
	return err
}
