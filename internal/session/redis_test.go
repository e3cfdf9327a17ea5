// ABOUTME: Tests for the Redis session store against an in-process miniredis.
// ABOUTME: Covers round-trips, missing rows, clears, TTL expiry, and corrupt values.

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OGJRx/intake-gateway/internal/flow"
	"github.com/OGJRx/intake-gateway/internal/session"
)

func newTestStore(t *testing.T, opts ...session.RedisOption) (*miniredis.Miniredis, *session.RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewRedisStoreFromClient(client, opts...)
	t.Cleanup(func() { _ = store.Close() })
	return mr, store
}

func TestRedisStore_ReadMissing(t *testing.T) {
	_, store := newTestStore(t)

	_, err := store.Read(context.Background(), "12345")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	in := session.State{
		Step: flow.StepAwaitVehicle,
		Data: map[string]string{flow.FieldClientName: "Jordan Alvarez"},
	}
	require.NoError(t, store.Write(ctx, "12345", in))

	out, err := store.Read(ctx, "12345")
	require.NoError(t, err)
	assert.Equal(t, flow.StepAwaitVehicle, out.Step)
	assert.Equal(t, "Jordan Alvarez", out.Data[flow.FieldClientName])
}

func TestRedisStore_Clear(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "12345", session.State{Step: flow.StepAwaitName}))
	require.NoError(t, store.Clear(ctx, "12345"))

	_, err := store.Read(ctx, "12345")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRedisStore_ClearMissingIsNoop(t *testing.T) {
	_, store := newTestStore(t)
	assert.NoError(t, store.Clear(context.Background(), "never-written"))
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	mr, store := newTestStore(t, session.WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "12345", session.State{Step: flow.StepAwaitName}))

	// miniredis advances time manually.
	mr.FastForward(2 * time.Minute)

	_, err := store.Read(ctx, "12345")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	mr, store := newTestStore(t)

	mr.Set("intake:session:12345", "{not json")

	_, err := store.Read(context.Background(), "12345")
	require.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrNotFound)
}

func TestRedisStore_NilDataNormalized(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "12345", session.State{Step: flow.StepIdle}))

	out, err := store.Read(ctx, "12345")
	require.NoError(t, err)
	assert.NotNil(t, out.Data)
}

func TestState_Clone(t *testing.T) {
	orig := session.State{
		Step: flow.StepAwaitVehicle,
		Data: map[string]string{flow.FieldClientName: "Ana"},
	}
	clone := orig.Clone()
	clone.Data[flow.FieldVehicleInfo] = "Honda Civic"

	_, leaked := orig.Data[flow.FieldVehicleInfo]
	assert.False(t, leaked, "patching a clone must not mutate the original")
}

func TestFresh(t *testing.T) {
	fresh := session.Fresh()
	assert.Equal(t, flow.StepIdle, fresh.Step)
	assert.Empty(t, fresh.Data)
	assert.NotNil(t, fresh.Data)
}
