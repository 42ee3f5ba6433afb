package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/persistence/middleware"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func newEncrypted(t *testing.T, cfg middleware.EncryptionConfig, under *MockStore) ports.StateStore {
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(under)
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := NewMockStore()
	store := newEncrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)}, underlying)

	ctx := context.Background()
	state := domain.NewCallState("enc-call")
	state.Waypoint = domain.WaypointTreatment
	state.Metadata["diagnosis"] = "stage 2"

	require.NoError(t, store.Save(ctx, "enc-call", state))

	stored, err := underlying.Load(ctx, "enc-call")
	require.NoError(t, err)
	assert.NotContains(t, stored.Metadata, "diagnosis")
	assert.Contains(t, stored.Metadata, "__encrypted__")
	assert.Empty(t, stored.Waypoint, "waypoint is hidden inside the envelope")
	assert.Equal(t, domain.StatusActive, stored.Status)

	loaded, err := store.Load(ctx, "enc-call")
	require.NoError(t, err)
	assert.Equal(t, domain.WaypointTreatment, loaded.Waypoint)
	assert.Equal(t, "stage 2", loaded.Metadata["diagnosis"])
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := NewMockStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldStore := newEncrypted(t, middleware.EncryptionConfig{ActiveKey: oldKey}, underlying)
	state := domain.NewCallState("rot-call")
	state.Metadata["data"] = "old"
	require.NoError(t, oldStore.Save(ctx, "rot-call", state))

	newStore := newEncrypted(t, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}}, underlying)
	loaded, err := newStore.Load(ctx, "rot-call")
	require.NoError(t, err)
	assert.Equal(t, "old", loaded.Metadata["data"])

	loaded.Metadata["data"] = "new"
	require.NoError(t, newStore.Save(ctx, "rot-call", loaded))

	_, err = oldStore.Load(ctx, "rot-call")
	assert.Error(t, err, "old key alone cannot read data written with the new key")
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
}

func TestEncryptionMiddleware_RejectsPlainState(t *testing.T) {
	underlying := NewMockStore()
	require.NoError(t, underlying.Save(context.Background(), "plain", domain.NewCallState("plain")))

	store := newEncrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)}, underlying)
	_, err := store.Load(context.Background(), "plain")
	assert.Error(t, err)
}
