package workpool

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Amund211/tilecore/internal/logging"
	"github.com/Amund211/tilecore/internal/reporting"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const DefaultPriority = 0

var ErrTaskPanicked = errors.New("task panicked")

// Task is a unit of work that can be canceled until it starts running
type Task interface {
	Run(ctx context.Context)
	Cancel()
	IsCanceled() bool
}

type worker struct {
	busy     bool
	priority int
}

// Pool runs tasks in priority order on a dynamically sized set of worker goroutines.
//
// Workers are never stopped forcibly. When the pool has more workers than its configured size,
// surplus workers exit the next time they find the queue empty.
type Pool struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	attrs  metric.MeasurementOption

	mutex    sync.Mutex
	cond     *sync.Cond
	size     int
	sequence int64
	stopped  bool
	queue    taskQueue
	workers  []*worker
}

// New starts a pool with size workers. Tasks receive ctx, which is canceled by Shutdown.
func New(ctx context.Context, name string, size int) *Pool {
	if size < 0 {
		panic(fmt.Sprintf("workpool: negative pool size %d", size))
	}

	ctx, cancel := context.WithCancel(ctx)
	logger := logging.FromContext(ctx).With("component", "workpool", "pool", name)
	ctx = logging.AddToContext(ctx, logger)

	p := &Pool{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		attrs:  metric.WithAttributes(attribute.String("pool", name)),
		queue:  taskQueue{},
	}
	p.cond = sync.NewCond(&p.mutex)

	p.SetSize(size)
	return p
}

func (p *Pool) Size() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.size
}

// SetSize grows the pool immediately, or lets surplus workers retire once idle
func (p *Pool) SetSize(size int) {
	if size < 0 {
		panic(fmt.Sprintf("workpool: negative pool size %d", size))
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.stopped {
		return
	}

	for i := len(p.workers); i < size; i++ {
		p.spawnWorkerLocked()
	}
	p.size = size

	// Idle surplus workers are waiting on the condition
	p.cond.Broadcast()
}

// Workers returns the number of live workers
func (p *Pool) Workers() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.workers)
}

// Pending returns the number of queued tasks
func (p *Pool) Pending() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.queue)
}

// Submit queues the task. Canceled tasks and submissions after Shutdown are dropped.
//
// If every worker is busy with lower priority work an extra worker is started, so that the
// new task does not wait behind long running low priority tasks.
func (p *Pool) Submit(task Task, priority int) bool {
	if task.IsCanceled() {
		return false
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.stopped {
		return false
	}

	heap.Push(&p.queue, record{task: task, priority: priority, sequence: p.sequence})
	p.sequence++
	metrics.tasksSubmitted.Add(p.ctx, 1, p.attrs)

	createWorker := true
	for _, w := range p.workers {
		if !w.busy || w.priority >= priority {
			createWorker = false
			break
		}
	}
	if createWorker {
		p.logger.Debug("Adding worker to the pool", "workers", len(p.workers)+1, "priority", priority)
		p.spawnWorkerLocked()
	}

	p.cond.Signal()
	return true
}

// CancelAll cancels every queued task. Running tasks are not affected.
func (p *Pool) CancelAll() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.cancelAllLocked()
}

func (p *Pool) cancelAllLocked() {
	canceled := len(p.queue)
	for len(p.queue) > 0 {
		rec := heap.Pop(&p.queue).(record)
		rec.task.Cancel()
	}
	if canceled > 0 {
		metrics.tasksCanceled.Add(p.ctx, int64(canceled), p.attrs)
	}
}

// Shutdown cancels queued work and releases all workers without waiting for them.
// Running tasks see their context canceled and finish on their own.
func (p *Pool) Shutdown() {
	p.mutex.Lock()
	if p.stopped {
		p.mutex.Unlock()
		return
	}
	p.stopped = true
	p.cancelAllLocked()
	p.workers = nil
	p.cond.Broadcast()
	p.mutex.Unlock()

	p.cancel()
	p.logger.Info("Pool shut down")
}

func (p *Pool) spawnWorkerLocked() {
	w := &worker{priority: DefaultPriority}
	p.workers = append(p.workers, w)
	metrics.workersSpawned.Add(p.ctx, 1, p.attrs)
	go p.work(w)
}

func (p *Pool) removeWorkerLocked(w *worker) {
	for i, other := range p.workers {
		if other == w {
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			return
		}
	}
}

func (p *Pool) work(w *worker) {
	for {
		rec, ok := p.next(w)
		if !ok {
			return
		}

		p.execute(rec)

		p.mutex.Lock()
		w.busy = false
		w.priority = DefaultPriority
		p.mutex.Unlock()
	}
}

// next blocks until there is a task for w, or returns false when w should exit
func (p *Pool) next(w *worker) (record, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for {
		if p.stopped {
			return record{}, false
		}
		if len(p.queue) > 0 {
			break
		}
		if len(p.workers) > p.size {
			p.logger.Debug("Removing worker from the pool", "workers", len(p.workers)-1)
			p.removeWorkerLocked(w)
			return record{}, false
		}
		p.cond.Wait()
	}

	rec := heap.Pop(&p.queue).(record)
	w.busy = true
	w.priority = rec.priority
	return rec, true
}

func (p *Pool) execute(rec record) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %v", ErrTaskPanicked, r)
			metrics.taskPanics.Add(p.ctx, 1, p.attrs)
			reporting.Report(p.ctx, err, map[string]string{
				"pool":     p.name,
				"priority": strconv.Itoa(rec.priority),
			})
			return
		}
		metrics.taskDuration.Record(p.ctx, time.Since(start).Seconds(), p.attrs)
	}()

	rec.task.Run(p.ctx)
}
