package cache

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache(t *testing.T) {
	c := New(time.Minute)

	_, ok := c.Get("entities")
	assert.False(t, ok)

	c.Set("entities", []string{"e1", "e2"})
	v, ok := c.Get("entities")
	assert.True(t, ok)
	assert.Equal(t, []string{"e1", "e2"}, v)

	assert.Equal(t, Stats{Items: 1, Hits: 1, Misses: 1}, c.Stats())

	c.Invalidate()
	_, ok = c.Get("entities")
	assert.False(t, ok)
	assert.Zero(t, c.Stats().Items)
}

func TestCacheExpiry(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Set("k", 1)
	assert.Eventually(t, func() bool {
		_, ok := c.Get("k")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestKey(t *testing.T) {
	a := url.Values{"type": {"startup"}, "limit": {"10"}}
	b := url.Values{"limit": {"10"}, "type": {"startup"}}
	assert.Equal(t, Key("entities", a), Key("entities", b))
	assert.Equal(t, "entities?limit=10&type=startup", Key("entities", a))
	assert.Equal(t, "runs", Key("runs", nil))
}
