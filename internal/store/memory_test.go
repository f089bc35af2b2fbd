package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()

	key := Key{BlockID: "abc123", Format: "avif", Width: 400, Quality: 80}
	require.NoError(t, s.Put(context.Background(), key, &Object{
		Body:        []byte("avif-bytes"),
		ContentType: "image/avif",
	}))

	got, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("avif-bytes"), got.Body)
	assert.Equal(t, "image/avif", got.ContentType)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreMiss(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), Key{BlockID: "missing"})
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()

	key := Key{BlockID: "abc123", Format: "webp"}
	require.NoError(t, s.Put(context.Background(), key, &Object{ContentType: "image/webp"}))

	got, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	got.ContentType = "mutated"

	again, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", again.ContentType)
}
