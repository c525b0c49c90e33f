package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/labflow/pkg/adapters/redis"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunStateStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_Layout(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("lab:"))
	ctx := context.Background()

	require.NoError(t, store.SetState(ctx, "AN-1", domain.AxisReview, "to_be_verified", domain.HistoryEntry{
		Transition: "submit", Axis: domain.AxisReview, To: "to_be_verified", Actor: "analyst",
	}))
	require.NoError(t, store.SetState(ctx, "AN-1", domain.AxisCancellation, domain.StateActive, domain.HistoryEntry{
		Axis: domain.AxisCancellation, To: domain.StateActive,
	}))

	assert.Equal(t, "to_be_verified", mr.HGet("lab:state:AN-1", "review"))
	assert.Equal(t, "active", mr.HGet("lab:state:AN-1", "cancellation"))
	items, err := mr.List("lab:history:AN-1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Contains(t, items[1], `"transition":"submit"`)
	assert.True(t, mr.Exists("lab:index"))

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AN-1"}, list)
}

func TestRedisStore_ReindexKeepsUnknownOut(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	require.NoError(t, store.Reindex(ctx, "ghost", domain.AxisReview))
	assert.False(t, mr.Exists("labflow:index"), "reindex never creates index members")
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithTTL(time.Second))
	ctx := context.Background()

	require.NoError(t, store.SetState(ctx, "AR-1", domain.AxisReview, "sample_due", domain.HistoryEntry{To: "sample_due"}))
	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, list, "AR-1")

	mr.FastForward(2 * time.Second)
	_, err = store.GetState(ctx, "AR-1", domain.AxisReview)
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
	history, err := store.History(ctx, "AR-1")
	require.NoError(t, err)
	assert.Empty(t, history)

	// The index is pruned against the wall clock, not miniredis time.
	require.Eventually(t, func() bool {
		list, err := store.List(ctx)
		return err == nil && len(list) == 0
	}, 3*time.Second, 100*time.Millisecond)
}

func TestRedisStore_ServerDown(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)
	mr.Close()

	err := store.SetState(context.Background(), "AN-1", domain.AxisReview, "x", domain.HistoryEntry{})
	assert.ErrorContains(t, err, "redis set state AN-1")
	_, err = store.GetState(context.Background(), "AN-1", domain.AxisReview)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrStateNotFound)
}
