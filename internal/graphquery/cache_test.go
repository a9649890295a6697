package graphquery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newQueryCache(2, time.Minute)

	c.put("a", "repo1", 1)
	c.put("b", "repo1", 2)
	c.put("c", "repo1", 3)

	_, ok := c.get("a")
	assert.False(t, ok, "oldest entry should be evicted at capacity")

	v, ok := c.get("c")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, c.len())
}

func TestQueryCache_GetRefreshesRecency(t *testing.T) {
	c := newQueryCache(2, time.Minute)

	c.put("a", "repo1", 1)
	c.put("b", "repo1", 2)

	_, ok := c.get("a")
	require.True(t, ok)

	// "b" is now the least recently used entry.
	c.put("c", "repo1", 3)

	_, ok = c.get("b")
	assert.False(t, ok, "stale entry should be evicted, not the refreshed one")
	_, ok = c.get("a")
	assert.True(t, ok)
}

func TestQueryCache_TTLExpiry(t *testing.T) {
	c := newQueryCache(8, 5*time.Millisecond)

	c.put("a", "repo1", 1)
	time.Sleep(25 * time.Millisecond)

	_, ok := c.get("a")
	assert.False(t, ok, "entry past its TTL should not be served")
	assert.Equal(t, 0, c.len(), "expired entry should be dropped on access")
}

func TestQueryCache_UpdateInPlace(t *testing.T) {
	c := newQueryCache(8, time.Minute)

	c.put("a", "repo1", 1)
	c.put("a", "repo1", 2)

	assert.Equal(t, 1, c.len())
	v, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestQueryCache_ClearRepository(t *testing.T) {
	c := newQueryCache(8, time.Minute)

	c.put("a", "alpha", 1)
	c.put("b", "alpha", 2)
	c.put("c", "beta", 3)

	removed := c.clearRepository("alpha")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.len())

	_, ok := c.get("a")
	assert.False(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok, "other repositories must be untouched")
}

func TestCacheKey_DistinguishesArguments(t *testing.T) {
	base := DependenciesRequest{EntityPath: "src/app.ts", Repository: "acme", Depth: 3}
	transitive := base
	transitive.IncludeTransitive = true

	assert.NotEqual(t, cacheKey("getDependencies", base), cacheKey("getDependencies", transitive),
		"boolean flags must hash apart")
	assert.NotEqual(t, cacheKey("getDependencies", base), cacheKey("getDependents", base),
		"method name is part of the key")
	assert.Equal(t, cacheKey("getDependencies", base), cacheKey("getDependencies", base))
}
