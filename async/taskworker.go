package async

import (
	"sync"

	"github.com/eapache/queue"
)

// TaskWorker runs tasks one after another on a dedicated goroutine. Its
// backlog is bounded for tasks submitted through Execute and TryPush, and
// Execute blocks while the backlog is full. Follow-up tasks posted through
// Continuations are always admitted.
type TaskWorker struct {
	name     string
	capacity int

	lock     sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	idle     *sync.Cond
	tasks    *queue.Queue
	running  bool
	stopped  bool
	exited   chan struct{}
}

// NewTaskWorker creates and starts a worker. A capacity of zero or less makes
// the backlog unbounded.
func NewTaskWorker(name string, capacity int) *TaskWorker {
	w := &TaskWorker{
		name:     name,
		capacity: capacity,
		tasks:    queue.New(),
		exited:   make(chan struct{}),
	}
	w.notEmpty = sync.NewCond(&w.lock)
	w.notFull = sync.NewCond(&w.lock)
	w.idle = sync.NewCond(&w.lock)

	go w.loop()

	return w
}

// Name returns the name of the worker.
func (w *TaskWorker) Name() string {
	return w.name
}

// Execute queues a task, waiting for room in the backlog. It returns false
// if the worker is stopped.
func (w *TaskWorker) Execute(task func()) bool {
	w.lock.Lock()
	defer w.lock.Unlock()

	for !w.stopped && w.full() {
		w.notFull.Wait()
	}

	if w.stopped {
		return false
	}

	w.push(task)

	return true
}

// TryPush queues a task if there is room in the backlog.
func (w *TaskWorker) TryPush(task func()) bool {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.stopped || w.full() {
		return false
	}

	w.push(task)

	return true
}

// Continuations returns an executor that queues on the worker without waiting
// for room in the backlog. Only the worker drains the backlog, so a task that
// runs on the worker must post its follow-ups through it.
func (w *TaskWorker) Continuations() Executor {
	return continuationExecutor{w: w}
}

type continuationExecutor struct {
	w *TaskWorker
}

// Execute queues the task past the backlog bound. It returns false if the
// worker is stopped.
func (c continuationExecutor) Execute(task func()) bool {
	c.w.lock.Lock()
	defer c.w.lock.Unlock()

	if c.w.stopped {
		return false
	}

	c.w.push(task)

	return true
}

// NofPending returns the number of queued tasks.
func (w *TaskWorker) NofPending() int {
	w.lock.Lock()
	defer w.lock.Unlock()

	return w.tasks.Length()
}

// WaitPending blocks until every queued task has run.
func (w *TaskWorker) WaitPending() {
	w.lock.Lock()
	defer w.lock.Unlock()

	for w.tasks.Length() > 0 || w.running {
		w.idle.Wait()
	}
}

// Stop runs the tasks already queued, refuses new ones and waits for the
// worker goroutine to exit.
func (w *TaskWorker) Stop() {
	w.lock.Lock()
	if !w.stopped {
		w.stopped = true
		w.notEmpty.Broadcast()
		w.notFull.Broadcast()
	}
	w.lock.Unlock()

	<-w.exited
}

func (w *TaskWorker) full() bool {
	return w.capacity > 0 && w.tasks.Length() >= w.capacity
}

func (w *TaskWorker) push(task func()) {
	w.tasks.Add(task)
	w.notEmpty.Signal()
}

func (w *TaskWorker) loop() {
	defer close(w.exited)

	for {
		w.lock.Lock()
		for w.tasks.Length() == 0 && !w.stopped {
			w.notEmpty.Wait()
		}

		if w.tasks.Length() == 0 {
			w.idle.Broadcast()
			w.lock.Unlock()

			return
		}

		task := w.tasks.Remove().(func())
		w.running = true
		w.notFull.Signal()
		w.lock.Unlock()

		task()

		w.lock.Lock()
		w.running = false
		if w.tasks.Length() == 0 {
			w.idle.Broadcast()
		}
		w.lock.Unlock()
	}
}
