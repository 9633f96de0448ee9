package routines

import (
	"sync"

	"github.com/go-logr/logr"
	"github.com/sarchlab/ranstack/async"
	"github.com/sarchlab/ranstack/cucp"
	"github.com/sarchlab/ranstack/ran"
	"github.com/sarchlab/ranstack/sim/hooking"
)

// Manager starts the CU-CP routines of the UEs. The routines of one UE share
// one executor, so they interleave but never run in parallel. Routines of
// different UEs may run in parallel when the manager owns per-UE workers.
type Manager struct {
	*hooking.HookableBase

	name       string
	e1         cucp.E1APControlNotifier
	f1         cucp.F1APUEContextNotifier
	logger     logr.Logger
	shared     async.Executor
	workerSize int

	lock    sync.Mutex
	workers map[ran.UEIndex]*async.TaskWorker
}

// Builder can build routine managers.
type Builder struct {
	name       string
	e1         cucp.E1APControlNotifier
	f1         cucp.F1APUEContextNotifier
	logger     logr.Logger
	exec       async.Executor
	workerSize int
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		name:       "CUCP",
		logger:     logr.Discard(),
		workerSize: 64,
	}
}

// WithName sets the name of the manager.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithE1APControlNotifier sets the CU-UP facing notifier.
func (b Builder) WithE1APControlNotifier(n cucp.E1APControlNotifier) Builder {
	b.e1 = n
	return b
}

// WithF1APUEContextNotifier sets the DU facing notifier.
func (b Builder) WithF1APUEContextNotifier(n cucp.F1APUEContextNotifier) Builder {
	b.f1 = n
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger logr.Logger) Builder {
	b.logger = logger
	return b
}

// WithExecutor makes all the routines run on one executor instead of
// per-UE workers.
func (b Builder) WithExecutor(exec async.Executor) Builder {
	b.exec = exec
	return b
}

// WithWorkerQueueSize sets the backlog of the per-UE workers.
func (b Builder) WithWorkerQueueSize(n int) Builder {
	b.workerSize = n
	return b
}

// Build creates a new Manager.
func (b Builder) Build() *Manager {
	if b.e1 == nil || b.f1 == nil {
		panic("routine manager needs both E1AP and F1AP notifiers")
	}

	return &Manager{
		HookableBase: hooking.NewHookableBase(),
		name:         b.name,
		e1:           b.e1,
		f1:           b.f1,
		logger:       b.logger,
		shared:       b.exec,
		workerSize:   b.workerSize,
		workers:      make(map[ran.UEIndex]*async.TaskWorker),
	}
}

// Name returns the name of the manager.
func (m *Manager) Name() string {
	return m.name
}

// executorsFor returns the executor that starts the routines of a UE and the
// one their continuations run on.
func (m *Manager) executorsFor(ue ran.UEIndex) (start, cont async.Executor) {
	if m.shared != nil {
		return m.shared, m.shared
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	w, found := m.workers[ue]
	if !found {
		w = async.NewTaskWorker(m.name+".UE", m.workerSize)
		m.workers[ue] = w
	}

	return w, w.Continuations()
}

// StartPDUSessionResourceRelease releases PDU sessions of a UE whose
// user-plane resources are tracked by up.
func (m *Manager) StartPDUSessionResourceRelease(
	cmd cucp.PDUSessionResourceReleaseCommand,
	up cucp.UPResourceManager,
) *async.Future[cucp.PDUSessionResourceReleaseResponse] {
	exec, cont := m.executorsFor(cmd.UE)

	r := NewPDUSessionResourceReleaseRoutine(
		cmd, m.e1, m.f1, up, cont, m.logger)
	for _, h := range m.Hooks() {
		r.AcceptHook(h)
	}

	p, f := async.NewPromise[cucp.PDUSessionResourceReleaseResponse]()
	start := func() {
		r.Launch().Then(async.InlineExecutor{}, p.Set)
	}

	if !exec.Execute(start) {
		start()
	}

	return f
}

// RemoveUE stops the worker of a UE after its queued routines have run.
func (m *Manager) RemoveUE(ue ran.UEIndex) {
	m.lock.Lock()
	w, found := m.workers[ue]
	delete(m.workers, ue)
	m.lock.Unlock()

	if found {
		w.Stop()
	}
}

// Stop stops every per-UE worker.
func (m *Manager) Stop() {
	m.lock.Lock()
	workers := m.workers
	m.workers = make(map[ran.UEIndex]*async.TaskWorker)
	m.lock.Unlock()

	for _, w := range workers {
		w.Stop()
	}
}
