package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewCallState(sessionID)
		state.Waypoint = domain.WaypointTreatment
		state.History = append(state.History, domain.WaypointDiagnosis, domain.WaypointBiopsy, domain.WaypointTreatment)
		state.Metadata["patient_name"] = "Asha"
		state.Metadata["attempt"] = 2
		state.Results = []domain.StageRecord{
			{Stage: domain.StageOpening, Result: domain.TurnResult{Utterance: "yes"}},
		}

		err := store.Save(ctx, sessionID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, domain.WaypointTreatment, loaded.Waypoint)
		assert.Equal(t, state.History, loaded.History)
		assert.Equal(t, "Asha", loaded.Metadata["patient_name"])
		// JSON persistence may turn ints into float64; only check existence.
		assert.NotNil(t, loaded.Metadata["attempt"])
		require.Len(t, loaded.Results, 1)
		assert.Equal(t, domain.StageOpening, loaded.Results[0].Stage)
	})

	t.Run("Load is isolated from later mutation", func(t *testing.T) {
		state := domain.NewCallState(sessionID + "-iso")
		require.NoError(t, store.Save(ctx, state.SessionID, state))
		defer func() { _ = store.Delete(ctx, state.SessionID) }()

		state.Waypoint = domain.WaypointDone
		loaded, err := store.Load(ctx, state.SessionID)
		require.NoError(t, err)
		assert.Equal(t, domain.WaypointOpening, loaded.Waypoint)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewCallState(sessionID))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewCallState(id1))
		_ = store.Save(ctx, id2, domain.NewCallState(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
