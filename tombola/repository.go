package tombola

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName       = "tombola_months"
	TicketCollectionName = "tombola_tickets"
)

type mongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(coll *mongo.Collection) Repository { return &mongoRepository{coll: coll} }

// EnsureIndexes creates the unique (month,year) index backing the
// "exactly one month per period" invariant.
func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "month", Value: 1}, {Key: "year", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *mongoRepository) Insert(ctx context.Context, m *Month) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *mongoRepository) findOne(ctx context.Context, filter bson.M) (*Month, error) {
	var m Month
	err := r.coll.FindOne(ctx, filter).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *mongoRepository) FindByID(ctx context.Context, id string) (*Month, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoRepository) FindOpen(ctx context.Context) (*Month, error) {
	return r.findOne(ctx, bson.M{"status": StatusOpen})
}

func (r *mongoRepository) FindByMonthYear(ctx context.Context, month, year int) (*Month, error) {
	return r.findOne(ctx, bson.M{"month": month, "year": year})
}

// FindPrevious returns the calendar month immediately preceding
// (month,year), handling the January→previous-December rollover.
func (r *mongoRepository) FindPrevious(ctx context.Context, month, year int) (*Month, error) {
	prevMonth, prevYear := month-1, year
	if prevMonth < 1 {
		prevMonth, prevYear = 12, year-1
	}
	return r.findOne(ctx, bson.M{"month": prevMonth, "year": prevYear})
}

func (r *mongoRepository) List(ctx context.Context, page, limit int) ([]*Month, int, error) {
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

	var out []*Month
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

func (r *mongoRepository) CloseAllOpen(ctx context.Context, at time.Time) error {
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"status": bson.M{"$in": []Status{StatusOpen, StatusDrawing}}},
		bson.M{"$set": bson.M{"status": StatusClosed, "updatedAt": at}},
	)
	return err
}

func (r *mongoRepository) SetStatus(ctx context.Context, id string, status Status, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"status": status, "updatedAt": at},
	})
	return err
}

// IncrementTicketNumber is the atomic "increment and return" primitive
// backing strictly sequential, contiguous ticket numbering.
func (r *mongoRepository) IncrementTicketNumber(ctx context.Context, id string) (int, error) {
	res := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"lastTicketNumber": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var m Month
	if err := res.Decode(&m); err != nil {
		return 0, err
	}
	return m.LastTicketNumber, nil
}

func (r *mongoRepository) SetWinners(ctx context.Context, id string, winners []Winner, drawDate time.Time) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"winners": winners, "status": StatusClosed, "drawDate": drawDate, "updatedAt": drawDate},
	})
	return err
}

func (r *mongoRepository) SetPreviousMonthWinners(ctx context.Context, id string, userIDs []string) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"previousMonthWinners": userIDs},
	})
	return err
}

func (r *mongoRepository) SetLinkedChallenge(ctx context.Context, id, challengeID string) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"linkedChallengeId": challengeID},
	})
	return err
}

type mongoTicketRepository struct {
	coll *mongo.Collection
}

func NewMongoTicketRepository(coll *mongo.Collection) TicketRepository {
	return &mongoTicketRepository{coll: coll}
}

// EnsureTicketIndexes backs invariant 5 (dense unique ticketNumber per
// month) and the idempotent-retry lookup on the opaque ticketId.
func EnsureTicketIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "ticketId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "tombolaMonthId", Value: 1}, {Key: "ticketNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "tombolaMonthId", Value: 1}}},
	})
	return err
}

func (r *mongoTicketRepository) Insert(ctx context.Context, t *Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := r.coll.InsertOne(ctx, t)
	return err
}

func (r *mongoTicketRepository) FindByTicketID(ctx context.Context, ticketID string) (*Ticket, error) {
	var t Ticket
	err := r.coll.FindOne(ctx, bson.M{"ticketId": ticketID}).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *mongoTicketRepository) CountForUserMonth(ctx context.Context, userID, monthID string) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"userId": userID, "tombolaMonthId": monthID})
	return int(n), err
}

func (r *mongoTicketRepository) ListForMonth(ctx context.Context, monthID string) ([]*Ticket, error) {
	cur, err := r.coll.Find(ctx, bson.M{"tombolaMonthId": monthID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*Ticket
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mongoTicketRepository) ListForUser(ctx context.Context, userID string, page, limit int) ([]*Ticket, int, error) {
	filter := bson.M{"userId": userID}
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	var out []*Ticket
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}
