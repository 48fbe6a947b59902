// Package mongo reads the challenge content catalog from MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
)

// CollectionChallenges is the catalog collection name.
const CollectionChallenges = "challenges"

// Config holds the catalog connection settings.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
}

// Connect opens and pings a client.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return client, nil
}

type challengeDoc struct {
	ID                   string   `bson:"_id"`
	Level                string   `bson:"level"`
	Question             string   `bson:"question"`
	Options              []string `bson:"options"`
	CorrectAnswerID      string   `bson:"correct_answer_id"`
	XPReward             int64    `bson:"xp_reward"`
	DifficultyMultiplier float64  `bson:"difficulty_multiplier"`
}

// ChallengeCatalog implements arena.ChallengeCatalog over a collection.
type ChallengeCatalog struct {
	challenges   *mongo.Collection
	queryTimeout time.Duration
}

var _ arena.ChallengeCatalog = (*ChallengeCatalog)(nil)

// NewChallengeCatalog reads from the given collection.
func NewChallengeCatalog(coll *mongo.Collection, queryTimeout time.Duration) *ChallengeCatalog {
	return &ChallengeCatalog{challenges: coll, queryTimeout: queryTimeout}
}

// NewChallengeCatalogFromClient uses {database}.challenges.
func NewChallengeCatalogFromClient(client *mongo.Client, cfg Config) *ChallengeCatalog {
	return NewChallengeCatalog(client.Database(cfg.Database).Collection(CollectionChallenges), cfg.QueryTimeout)
}

// Lookup fetches the challenges among ids in one query. Answer keys are not projected.
func (c *ChallengeCatalog) Lookup(ctx context.Context, ids []string) (map[string]arena.Challenge, error) {
	out := make(map[string]arena.Challenge, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	if c.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
	}

	filter := bson.M{"_id": bson.M{"$in": ids}}
	opts := options.Find().SetProjection(bson.M{"correct_answer_id": 0})

	cursor, err := c.challenges.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenges: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []challengeDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode challenges: %w", err)
	}

	for _, d := range docs {
		level, err := arena.ParseLevel(d.Level)
		if err != nil {
			continue
		}
		out[d.ID] = arena.Challenge{
			ID:                   d.ID,
			Level:                level,
			Question:             d.Question,
			Options:              d.Options,
			XPReward:             uint64(max(d.XPReward, 0)),
			DifficultyMultiplier: d.DifficultyMultiplier,
		}
	}
	return out, nil
}
