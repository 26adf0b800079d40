// Package mongoclient wraps the MongoDB driver connection used as the
// single document store behind every core component. Repositories in
// each domain package take the *mongo.Collection returned by
// Collection; this package only owns connection lifecycle.
package mongoclient

import (
	"context"
	"time"

	"github.com/TambongStercy/SBC-MS-sub006/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Client struct {
	raw *mongo.Client
	db  *mongo.Database
}

// New connects to MongoDB and pings it before returning, so startup
// fails fast on a bad MONGO_URI rather than on the first request.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Client().ApplyURI(cfg.MongoURI)
	raw, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := raw.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return &Client{raw: raw, db: raw.Database(cfg.MongoDB)}, nil
}

func (c *Client) Close(ctx context.Context) error { return c.raw.Disconnect(ctx) }

// Ping verifies the connection is still alive, used by the /ready probe.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.raw.Ping(ctx, nil)
}

// Collection returns the named collection in the configured database.
func (c *Client) Collection(name string) *mongo.Collection { return c.db.Collection(name) }

// Raw exposes the underlying driver client for session/transaction
// use. Nothing in this module calls it.
func (c *Client) Raw() *mongo.Client { return c.raw }
