package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venloapp/questlock/server/store"
	"github.com/venloapp/questlock/server/testutil"
)

func TestGormStore_LoadAbsent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.NewGormStore(db)

	v, ok, err := s.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestGormStore_SaveThenLoad(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.NewGormStore(db)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "queststate:1", []byte(`{"phase":"pending"}`)))

	v, ok, err := s.Load(ctx, "queststate:1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"phase":"pending"}`, string(v))
}

func TestGormStore_SaveOverwrites(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.NewGormStore(db)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "k", []byte(`1`)))
	require.NoError(t, s.Save(ctx, "k", []byte(`2`)))

	v, ok, err := s.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`2`), v)
}

func TestGormStore_DeleteThenLoadAbsent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.NewGormStore(db)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "k", []byte(`1`)))
	require.NoError(t, s.Delete(ctx, "k"))

	_, ok, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_RoundTrip(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	_, ok, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save(ctx, "k", []byte(`{"a":1}`)))
	v, ok, err := s.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"a":1}`), v)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, _ = s.Load(ctx, "k")
	assert.False(t, ok)
}

func TestMemory_FailSaves(t *testing.T) {
	s := store.NewMemory()
	s.FailSaves = errors.New("disk full")

	err := s.Save(context.Background(), "k", []byte(`1`))
	assert.EqualError(t, err, "disk full")

	_, ok, _ := s.Load(context.Background(), "k")
	assert.False(t, ok)
}
