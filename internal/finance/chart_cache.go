package finance

import (
	"sync"
	"time"
)

var (
	chartCache   = map[string]chartCacheEntry{}
	chartCacheMu sync.Mutex
	now          = time.Now
)

func cacheGet(key string) ([]byte, bool) {
	chartCacheMu.Lock()
	defer chartCacheMu.Unlock()
	entry, ok := chartCache[key]
	if !ok {
		return nil, false
	}
	if now().After(entry.createdAt.Add(chartCacheTTL)) {
		delete(chartCache, key)
		return nil, false
	}
	img := make([]byte, len(entry.image))
	copy(img, entry.image)
	return img, true
}

func cacheSet(key string, img []byte) {
	chartCacheMu.Lock()
	chartCache[key] = chartCacheEntry{createdAt: now(), image: img}
	chartCacheMu.Unlock()
}
