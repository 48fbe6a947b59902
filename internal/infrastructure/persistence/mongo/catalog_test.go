package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
)

func TestChallengeCatalog_Lookup(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("returns known challenges", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		first := mtest.CreateCursorResponse(1, ns, mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: "q1"},
				{Key: "level", Value: "easy"},
				{Key: "question", Value: "2+2?"},
				{Key: "options", Value: bson.A{"3", "4"}},
				{Key: "xp_reward", Value: int64(10)},
				{Key: "difficulty_multiplier", Value: 1.0},
			},
			bson.D{
				{Key: "_id", Value: "q2"},
				{Key: "level", Value: "bogus"},
			},
		)
		last := mtest.CreateCursorResponse(0, ns, mtest.NextBatch)
		mt.AddMockResponses(first, last)

		catalog := NewChallengeCatalog(mt.Coll, 0)
		got, err := catalog.Lookup(context.Background(), []string{"q1", "q2", "q3"})
		require.NoError(mt, err)

		require.Len(mt, got, 1)
		assert.Equal(mt, arena.LevelEasy, got["q1"].Level)
		assert.Equal(mt, uint64(10), got["q1"].XPReward)
		assert.Equal(mt, []string{"3", "4"}, got["q1"].Options)
	})

	mt.Run("empty ids skip the query", func(mt *mtest.T) {
		catalog := NewChallengeCatalog(mt.Coll, 0)
		got, err := catalog.Lookup(context.Background(), nil)
		require.NoError(mt, err)
		assert.Empty(mt, got)
	})

	mt.Run("server error is returned", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad query",
		}))

		catalog := NewChallengeCatalog(mt.Coll, 0)
		_, err := catalog.Lookup(context.Background(), []string{"q1"})
		assert.Error(mt, err)
	})
}
