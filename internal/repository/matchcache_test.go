package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjartanjoensen/report-extractor/internal/common"
	"github.com/kjartanjoensen/report-extractor/internal/entity"
)

func TestMatchCachePutAndGet(t *testing.T) {
	cache := NewMatchCacheRepository(newTestDB(t), nil)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, &entity.TaxonomyMatchCacheEntry{
		NormalizedLabel: "søla",
		TemplateHash:    "hash-a",
		MatchedHeader:   "Nettosøla",
		Source:          "llm",
	}))

	e, err := cache.Get(ctx, "søla", "hash-a")
	require.NoError(t, err)
	assert.Equal(t, "Nettosøla", e.MatchedHeader)
	assert.Equal(t, "llm", e.Source)
	assert.False(t, e.CreatedAt.IsZero())
}

func TestMatchCacheMiss(t *testing.T) {
	cache := NewMatchCacheRepository(newTestDB(t), nil)
	_, err := cache.Get(context.Background(), "ukent", "hash-a")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMatchCacheFirstWriteWins(t *testing.T) {
	cache := NewMatchCacheRepository(newTestDB(t), nil)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, &entity.TaxonomyMatchCacheEntry{
		NormalizedLabel: "søla", TemplateHash: "hash-a", MatchedHeader: "Nettosøla", Source: "llm",
	}))
	// a second write for the same key is a no-op, not an error
	require.NoError(t, cache.Put(ctx, &entity.TaxonomyMatchCacheEntry{
		NormalizedLabel: "søla", TemplateHash: "hash-a", MatchedHeader: "Onnur inntøka", Source: "llm",
	}))

	e, err := cache.Get(ctx, "søla", "hash-a")
	require.NoError(t, err)
	assert.Equal(t, "Nettosøla", e.MatchedHeader)
}

func TestMatchCacheKeyedByTemplateHash(t *testing.T) {
	cache := NewMatchCacheRepository(newTestDB(t), nil)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, &entity.TaxonomyMatchCacheEntry{
		NormalizedLabel: "søla", TemplateHash: "hash-a", MatchedHeader: "Nettosøla", Source: "llm",
	}))

	_, err := cache.Get(ctx, "søla", "hash-b")
	assert.ErrorIs(t, err, common.ErrNotFound, "a changed template must not serve stale matches")
}
