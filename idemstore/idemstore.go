// Package idemstore records the first outcome produced for a payment
// session so retried webhooks become no-ops instead of re-running
// side effects. It is the (sessionId -> outcome) map used by VoteCore's
// ConfirmPayment; TombolaCore's direct purchase confirmation is
// idempotent on the ticketId instead.
package idemstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "idempotency_keys"

// Record is the persisted (sessionId -> outcome) mapping.
type Record struct {
	SessionID string    `bson:"sessionId"`
	Outcome   string    `bson:"outcome"` // ticket id or vote id
	CreatedAt time.Time `bson:"createdAt"`
}

type Store struct {
	coll *mongo.Collection
}

func New(coll *mongo.Collection) *Store { return &Store{coll: coll} }

// EnsureIndexes creates the unique index on sessionId. Call once at
// startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sessionId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// TryRecord attempts to atomically write the first outcome for
// sessionId. It returns (true, recordedOutcome) if this call won the
// race, or (false, existingOutcome) if a prior call already recorded
// one — the caller should treat the latter as a no-op retry.
func (s *Store) TryRecord(ctx context.Context, sessionID, outcome string, now time.Time) (bool, string, error) {
	_, err := s.coll.InsertOne(ctx, Record{
		SessionID: sessionID,
		Outcome:   outcome,
		CreatedAt: now,
	})
	if err == nil {
		return true, outcome, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		var existing Record
		if findErr := s.coll.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&existing); findErr != nil {
			return false, "", findErr
		}
		return false, existing.Outcome, nil
	}
	return false, "", err
}

// Lookup returns the recorded outcome for a session, if any.
func (s *Store) Lookup(ctx context.Context, sessionID string) (string, bool, error) {
	var rec Record
	err := s.coll.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.Outcome, true, nil
}

func CollectionName() string { return collectionName }
