package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetGet(t *testing.T) {
	c := New[string, int](time.Minute, time.Minute)
	defer c.Close()

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("yok")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	// Cleanup aralığı uzun: süre dolumu Get tarafında da filtrelenmeli.
	c := New[string, int](30*time.Millisecond, time.Minute)
	defer c.Close()

	c.Set("a", 1)
	time.Sleep(60 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok, "TTL dolan kayıt Get'te görünmemeli")
}

func TestCacheSetRefreshesTTL(t *testing.T) {
	c := New[string, int](80*time.Millisecond, time.Minute)
	defer c.Close()

	c.Set("a", 1)
	time.Sleep(50 * time.Millisecond)
	c.Set("a", 2) // yeniden yazmak süreyi tazeler
	time.Sleep(50 * time.Millisecond)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestCacheDelete(t *testing.T) {
	c := New[string, int](time.Minute, time.Minute)
	defer c.Close()

	c.Set("a", 1)
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCacheItemsFiltersStale(t *testing.T) {
	c := New[string, int](40*time.Millisecond, time.Minute)
	defer c.Close()

	c.Set("eski", 1)
	time.Sleep(60 * time.Millisecond)
	c.Set("taze", 2)

	items := c.Items()
	assert.NotContains(t, items, "eski")
	assert.Contains(t, items, "taze")
	assert.Equal(t, 1, len(items))
}

func TestCacheBackgroundEviction(t *testing.T) {
	c := New[string, int](20*time.Millisecond, 20*time.Millisecond)
	defer c.Close()

	c.Set("a", 1)

	// Arka plan eviction'ı Len'i de düşürmeli (Get filtresi değil).
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("arka plan eviction süresi dolan kaydı temizlemedi")
}

func TestCacheCloseIsIdempotent(t *testing.T) {
	c := New[string, int](time.Minute, time.Minute)
	c.Close()
	c.Close() // ikinci çağrı panic etmemeli
}
