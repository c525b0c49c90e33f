package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	uid := "contract-" + time.Now().Format("20060102150405.000000000")
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("Set and Get", func(t *testing.T) {
		err := store.SetState(ctx, uid, domain.AxisReview, "sample_due", domain.HistoryEntry{
			Transition: "no_sampling_workflow",
			Axis:       domain.AxisReview,
			From:       "sample_registered",
			To:         "sample_due",
			Actor:      "analyst",
			Timestamp:  at,
		})
		require.NoError(t, err, "SetState should not return error")

		state, err := store.GetState(ctx, uid, domain.AxisReview)
		require.NoError(t, err, "GetState should not return error")
		assert.Equal(t, domain.StateID("sample_due"), state)
	})

	t.Run("Axes Are Independent", func(t *testing.T) {
		_, err := store.GetState(ctx, uid, domain.AxisCancellation)
		assert.ErrorIs(t, err, domain.ErrStateNotFound, "an untouched axis must not inherit another axis")

		err = store.SetState(ctx, uid, domain.AxisCancellation, domain.StateActive, domain.HistoryEntry{
			Axis: domain.AxisCancellation, To: domain.StateActive, Timestamp: at.Add(time.Second),
		})
		require.NoError(t, err)

		review, err := store.GetState(ctx, uid, domain.AxisReview)
		require.NoError(t, err)
		assert.Equal(t, domain.StateID("sample_due"), review)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.GetState(ctx, "missing-"+uid, domain.AxisReview)
		assert.ErrorIs(t, err, domain.ErrStateNotFound)
	})

	t.Run("History Newest First", func(t *testing.T) {
		err := store.SetState(ctx, uid, domain.AxisReview, "sample_received", domain.HistoryEntry{
			Transition: "receive",
			Axis:       domain.AxisReview,
			From:       "sample_due",
			To:         "sample_received",
			Actor:      "clerk",
			Comment:    "at the desk",
			Timestamp:  at.Add(2 * time.Second),
		})
		require.NoError(t, err)

		history, err := store.History(ctx, uid)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, domain.TransitionID("receive"), history[0].Transition)
		assert.Equal(t, "clerk", history[0].Actor)
		assert.Equal(t, "at the desk", history[0].Comment)
		assert.True(t, history[0].Timestamp.Equal(at.Add(2*time.Second)))
		assert.Equal(t, domain.TransitionID("no_sampling_workflow"), history[2].Transition)
	})

	t.Run("History Of Unknown Entity Is Empty", func(t *testing.T) {
		history, err := store.History(ctx, "missing-"+uid)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("Reindex", func(t *testing.T) {
		assert.NoError(t, store.Reindex(ctx, uid, domain.AxisReview))
	})

	t.Run("List", func(t *testing.T) {
		other := uid + "-2"
		require.NoError(t, store.SetState(ctx, other, domain.AxisReview, "open", domain.HistoryEntry{
			Axis: domain.AxisReview, To: "open", Timestamp: at,
		}))
		defer func() {
			_ = store.Delete(ctx, other)
		}()

		uids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, uids, uid)
		assert.Contains(t, uids, other)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Delete(ctx, uid)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.GetState(ctx, uid, domain.AxisReview)
		assert.ErrorIs(t, err, domain.ErrStateNotFound, "GetState after Delete should return ErrStateNotFound")

		history, err := store.History(ctx, uid)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}
