package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fundo-patronos/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntentsPutGetDelete(t *testing.T) {
	db := setupDB(t)
	store := NewIntents(db, "browser-1")
	ctx := context.Background()

	intent, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, intent, "empty slot reads as nil, not an error")

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(ctx, identity.PendingSignupIntent{
		Email:     "Ana@dac.unicamp.br",
		Role:      identity.RoleStudent,
		CreatedAt: created,
	}))

	intent, err = store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Equal(t, "ana@dac.unicamp.br", intent.Email)
	assert.Equal(t, identity.RoleStudent, intent.Role)
	assert.True(t, created.Equal(intent.CreatedAt))

	require.NoError(t, store.Delete(ctx))

	intent, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, intent)

	require.NoError(t, store.Delete(ctx), "deleting an empty slot is a no-op")
}

func TestIntentsPutReplacesExisting(t *testing.T) {
	store := NewIntents(setupDB(t), "browser-1")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, identity.PendingSignupIntent{
		Email: "first@dac.unicamp.br",
		Role:  identity.RoleStudent,
	}))
	require.NoError(t, store.Put(ctx, identity.PendingSignupIntent{
		Email: "second@patronos.org",
		Role:  identity.RoleMentor,
	}))

	intent, err := store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Equal(t, "second@patronos.org", intent.Email)
	assert.Equal(t, identity.RoleMentor, intent.Role)
	assert.False(t, intent.CreatedAt.IsZero(), "missing creation time is backfilled")
}

func TestIntentsScopedByContextKey(t *testing.T) {
	db := setupDB(t)
	tabA := NewIntents(db, "browser-a")
	tabB := NewIntents(db, "browser-b")
	ctx := context.Background()

	require.NoError(t, tabA.Put(ctx, identity.PendingSignupIntent{
		Email: "a@dac.unicamp.br",
		Role:  identity.RoleStudent,
	}))

	// another browser profile sees nothing
	intent, err := tabB.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, intent)

	// and its own writes do not clobber the first
	require.NoError(t, tabB.Put(ctx, identity.PendingSignupIntent{
		Email: "b@patronos.org",
		Role:  identity.RoleMentor,
	}))

	intent, err = tabA.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Equal(t, "a@dac.unicamp.br", intent.Email)
}
