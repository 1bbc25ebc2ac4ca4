package tilelayer

import "github.com/Amund211/tilecore/internal/domain"

// refreshCachesLocked settles the cache tiers after a resolution. Tiles drawn for visible tiles
// are promoted into the visible cache, every other visible entry is demoted to the preloading
// cache.
func (l *Layer[T]) refreshCachesLocked(r *resolution[T]) {
	keys := l.visibleCache.Keys()
	unused := make(map[domain.TileID]struct{}, len(keys))
	for _, id := range keys {
		unused[id] = struct{}{}
	}

	for _, drawData := range r.drawData {
		if drawData.Preloading {
			continue
		}
		id := drawData.SourceID
		delete(unused, id)

		if !l.visibleCache.Exists(id) && l.preloadingCache.Exists(id) {
			l.preloadingCache.Move(id, l.visibleCache)
		}
	}

	// Least recently used first, so the demoted entries keep their relative order
	for i := len(keys) - 1; i >= 0; i-- {
		if _, ok := unused[keys[i]]; ok {
			l.visibleCache.Move(keys[i], l.preloadingCache)
		}
	}
}
