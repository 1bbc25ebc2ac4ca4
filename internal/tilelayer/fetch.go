package tilelayer

import (
	"sync"

	"github.com/Amund211/tilecore/internal/domain"
)

// fetchRegistry holds the in-flight fetch task of each tile.
//
// Lookups and inserts are made under the layer lock. Removal happens from task cancelation and
// completion, which do not hold the layer lock.
type fetchRegistry[T any] struct {
	mutex      sync.Mutex
	tasks      map[domain.TileID]*fetchTask[T]
	visible    int
	preloading int
}

func newFetchRegistry[T any]() *fetchRegistry[T] {
	return &fetchRegistry[T]{tasks: make(map[domain.TileID]*fetchTask[T])}
}

func (r *fetchRegistry[T]) exists(id domain.TileID) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, ok := r.tasks[id]
	return ok
}

func (r *fetchRegistry[T]) add(id domain.TileID, task *fetchTask[T]) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.tasks[id]; ok {
		return false
	}
	r.tasks[id] = task
	if task.preloading {
		r.preloading++
	} else {
		r.visible++
	}
	return true
}

// remove deregisters task, unless the id has since been taken by another task
func (r *fetchRegistry[T]) remove(id domain.TileID, task *fetchTask[T]) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.tasks[id] != task {
		return
	}
	delete(r.tasks, id)
	if task.preloading {
		r.preloading--
	} else {
		r.visible--
	}
}

// snapshot returns the registered tasks. The caller may cancel or invalidate them.
func (r *fetchRegistry[T]) snapshot() []*fetchTask[T] {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	tasks := make([]*fetchTask[T], 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}
	return tasks
}

func (r *fetchRegistry[T]) len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.tasks)
}

func (r *fetchRegistry[T]) visibleCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.visible
}

func (r *fetchRegistry[T]) preloadingCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.preloading
}

type submission[T any] struct {
	task     *fetchTask[T]
	priority int
}

// fetchTileLocked schedules a load of tile unless one is in flight or a valid cached copy exists.
// Valid preloading entries requested as visible are promoted instead of refetched.
func (l *Layer[T]) fetchTileLocked(r *resolution[T], tile domain.MapTile, preloading bool, invalidated bool) {
	id := tile.ID()
	if l.registry.exists(id) {
		return
	}

	if !invalidated {
		if l.preloadingCache.Valid(id) {
			if !preloading {
				l.preloadingCache.Move(id, l.visibleCache)
			} else {
				l.preloadingCache.Get(id)
			}
			return
		}

		if l.visibleCache.Valid(id) {
			// Mark usage only, demotion happens when the draw list is settled
			l.visibleCache.Get(id)
			return
		}
	}

	task := newFetchTask(l.self, l.registry, tile, preloading, l.source.MinZoom(), l.source.MaxZoom())
	l.registry.add(id, task)

	priority := l.updatePriority
	if preloading {
		priority += PreloadingPriorityOffset
	}
	r.submissions = append(r.submissions, submission[T]{task: task, priority: priority})
}
