package firewall

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// DenyCache is a process-local record of full windows, shared by any number
// of firewalls. A nil *DenyCache disables caching.
type DenyCache struct {
	c *ristretto.Cache
}

// NewDenyCache returns a cache tracking up to maxKeys denied windows.
func NewDenyCache(maxKeys int64) (*DenyCache, error) {
	if maxKeys <= 0 {
		maxKeys = 1 << 14
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxKeys * 10,
		MaxCost:     maxKeys,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &DenyCache{c: rc}, nil
}

func (d *DenyCache) denied(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.c.Get(key)
	return ok
}

func (d *DenyCache) remember(key string, ttl time.Duration) {
	if d == nil {
		return
	}
	d.c.SetWithTTL(key, struct{}{}, 1, ttl)
	d.c.Wait()
}

func (d *DenyCache) forget(key string) {
	if d == nil {
		return
	}
	d.c.Del(key)
	d.c.Wait()
}

// Close releases resources held by the cache.
func (d *DenyCache) Close() {
	if d != nil {
		d.c.Close()
	}
}
