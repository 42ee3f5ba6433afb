package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/callflow/pkg/adapters/file"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.StateStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, file.New(t.TempDir()))
}

func TestFileStore_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	st := domain.NewCallState("call-1")
	require.NoError(t, store.Save(ctx, "call-1", st))
	st.Waypoint = domain.WaypointBiopsy
	require.NoError(t, store.Save(ctx, "call-1", st))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "call-1.json", entries[0].Name())

	loaded, err := store.Load(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WaypointBiopsy, loaded.Waypoint)
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "../escape", `a\b`, ".."} {
		err := store.Save(ctx, id, domain.NewCallState(id))
		assert.ErrorIs(t, err, file.ErrInvalidSessionID, "id %q", id)
	}
}

func TestFileStore_ListMissingDir(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "missing"))
	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
