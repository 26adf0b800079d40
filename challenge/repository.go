package challenge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName             = "impact_challenges"
	EntrepreneurCollectionName = "challenge_entrepreneurs"
)

type mongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(coll *mongo.Collection) Repository { return &mongoRepository{coll: coll} }

func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "month", Value: 1}, {Key: "year", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *mongoRepository) Insert(ctx context.Context, c *ImpactChallenge) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.coll.InsertOne(ctx, c)
	return err
}

func (r *mongoRepository) findOne(ctx context.Context, filter bson.M) (*ImpactChallenge, error) {
	var c ImpactChallenge
	err := r.coll.FindOne(ctx, filter).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*ImpactChallenge, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoRepository) FindByMonthYear(ctx context.Context, month, year int) (*ImpactChallenge, error) {
	return r.findOne(ctx, bson.M{"month": month, "year": year})
}

func (r *mongoRepository) FindActive(ctx context.Context) (*ImpactChallenge, error) {
	return r.findOne(ctx, bson.M{"status": StatusActive})
}

func (r *mongoRepository) List(ctx context.Context, page, limit int) ([]*ImpactChallenge, int, error) {
	total, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "year", Value: -1}, {Key: "month", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var out []*ImpactChallenge
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

func (r *mongoRepository) SetStatus(ctx context.Context, id string, status Status, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": status, "updatedAt": at},
	})
	return err
}

func (r *mongoRepository) IncTotals(ctx context.Context, id string, collectedDelta int64, voteCountDelta int, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"totalCollected": collectedDelta, "totalVoteCount": voteCountDelta},
		"$set": bson.M{"updatedAt": at},
	})
	return err
}

func (r *mongoRepository) SetDistribution(ctx context.Context, id string, d Distribution) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"distribution": d, "fundsDistributed": true, "updatedAt": d.DistributionDate},
	})
	return err
}

type mongoEntrepreneurRepository struct {
	coll *mongo.Collection
}

func NewMongoEntrepreneurRepository(coll *mongo.Collection) EntrepreneurRepository {
	return &mongoEntrepreneurRepository{coll: coll}
}

func EnsureEntrepreneurIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "challengeId", Value: 1}},
	})
	return err
}

func (r *mongoEntrepreneurRepository) Insert(ctx context.Context, e *Entrepreneur) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.coll.InsertOne(ctx, e)
	return err
}

func (r *mongoEntrepreneurRepository) FindByID(ctx context.Context, id string) (*Entrepreneur, error) {
	var e Entrepreneur
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *mongoEntrepreneurRepository) ListForChallenge(ctx context.Context, challengeID string) ([]*Entrepreneur, int, error) {
	filter := bson.M{"challengeId": challengeID}
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "voteCount", Value: -1}}))
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	var out []*Entrepreneur
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

func (r *mongoEntrepreneurRepository) SetApproved(ctx context.Context, id string, approved bool) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"approved": approved}})
	return err
}

func (r *mongoEntrepreneurRepository) IncVotes(ctx context.Context, id string, voteCountDelta int, amountDelta int64) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"voteCount": voteCountDelta, "totalAmount": amountDelta},
	})
	return err
}

func (r *mongoEntrepreneurRepository) SetRanks(ctx context.Context, ranks map[string]int, winnerID string) error {
	for id, rank := range ranks {
		_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
			"$set": bson.M{"rank": rank, "isWinner": id == winnerID},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *mongoEntrepreneurRepository) Delete(ctx context.Context, id string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
