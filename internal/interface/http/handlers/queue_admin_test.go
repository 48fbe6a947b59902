package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rediscache "github.com/alem-hub/arena-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/arena-engine/internal/infrastructure/queue"
)

func deadJob(t *testing.T, q *queue.RedisQueue, reason string) *queue.Job {
	t.Helper()
	ctx := context.Background()
	job, err := queue.NewJob("propagate-score", map[string]string{"user_id": "u1"}, now)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	got.Attempts = 3
	got.LastError = reason
	require.NoError(t, q.DeadLetter(ctx, got))
	return got
}

func serveAdmin(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestQueueAdmin_ListAndRequeueDeadLetters(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	q := queue.NewRedisQueue(rediscache.NewCacheFromClient(client))
	admin := NewQueueAdmin(q, nil)

	job := deadJob(t, q, "cache down")

	rec := serveAdmin(admin, http.MethodGet, "/admin/queue/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var st queue.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, queue.Stats{Dead: 1}, st)

	rec = serveAdmin(admin, http.MethodGet, "/admin/queue/dead?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	var dead []queue.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dead))
	require.Len(t, dead, 1)
	assert.Equal(t, job.ID, dead[0].ID)
	assert.Equal(t, "cache down", dead[0].LastError)

	rec = serveAdmin(admin, http.MethodPost, "/admin/queue/dead/"+job.ID+"/requeue")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serveAdmin(admin, http.MethodPost, "/admin/queue/dead/"+job.ID+"/requeue")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	st, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Ready: 1}, st)
}

func TestQueueAdmin_BadRequests(t *testing.T) {
	admin := NewQueueAdmin(queue.NewMemoryQueue(), nil)

	assert.Equal(t, http.StatusBadRequest, serveAdmin(admin, http.MethodGet, "/admin/queue/dead?limit=zero").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serveAdmin(admin, http.MethodGet, "/admin/queue/dead/x/requeue").Code)

	rec := serveAdmin(admin, http.MethodGet, "/admin/queue/dead")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

type failingInspector struct{ queue.Inspector }

func (failingInspector) Stats(context.Context) (queue.Stats, error) {
	return queue.Stats{}, errors.New("redis: connection refused")
}

func TestQueueAdmin_BackendFailureIs500(t *testing.T) {
	admin := NewQueueAdmin(failingInspector{}, nil)

	rec := serveAdmin(admin, http.MethodGet, "/admin/queue/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}
