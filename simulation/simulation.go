// Package simulation assembles a runnable gNB model: the engine, the cells,
// the CU-CP, and the optional recording and monitoring services.
package simulation

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/sarchlab/ranstack/async"
	"github.com/sarchlab/ranstack/cucp"
	"github.com/sarchlab/ranstack/cucp/routines"
	"github.com/sarchlab/ranstack/datarecording"
	"github.com/sarchlab/ranstack/monitoring"
	"github.com/sarchlab/ranstack/scheduler/cell"
	"github.com/sarchlab/ranstack/sim/timing"
	"github.com/sarchlab/ranstack/tracing"
)

// ErrNoCUCP is returned when a CU-CP procedure is started on a simulation
// that was built without the E1AP and F1AP notifiers.
var ErrNoCUCP = errors.New("simulation has no CU-CP")

// A Simulation owns the components of a gNB model and the services that
// observe them.
type Simulation struct {
	id     string
	logger logr.Logger
	engine *timing.SerialEngine

	cells []*cell.Cell
	cucp  *routines.Manager

	dataRecorder      datarecording.DataRecorder
	procedureRecorder *tracing.ProcedureRecorder
	procedureTime     *tracing.TotalAvgTimeTracer
	stepCounts        *tracing.StepCountTracer
	monitor           *monitoring.Monitor

	components    []monitoring.Component
	compNameIndex map[string]int
	started       bool
}

// ID returns the unique ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// GetEngine returns the engine used in the simulation.
func (s *Simulation) GetEngine() timing.Engine {
	return s.engine
}

// Cells returns the cells of the model.
func (s *Simulation) Cells() []*cell.Cell {
	return s.cells
}

// CUCP returns the CU-CP routine manager, or nil if the model has none.
func (s *Simulation) CUCP() *routines.Manager {
	return s.cucp
}

// GetDataRecorder returns the data recorder, or nil if recording is off.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetMonitor returns the monitor, or nil if monitoring is off.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// ProcedureTime returns the tracer of the CU-CP procedure durations.
func (s *Simulation) ProcedureTime() *tracing.TotalAvgTimeTracer {
	return s.procedureTime
}

// StepCounts returns the tracer of the CU-CP procedure step outcomes.
func (s *Simulation) StepCounts() *tracing.StepCountTracer {
	return s.stepCounts
}

// RegisterComponent registers a component with the simulation.
func (s *Simulation) RegisterComponent(c monitoring.Component) {
	compName := c.Name()
	if _, found := s.compNameIndex[compName]; found {
		panic("component " + compName + " already registered")
	}

	s.components = append(s.components, c)
	s.compNameIndex[compName] = len(s.components) - 1

	if s.monitor != nil {
		s.monitor.RegisterComponent(c)
	}
}

// Components returns all the registered components.
func (s *Simulation) Components() []monitoring.Component {
	return s.components
}

// GetComponentByName returns the component with the given name.
func (s *Simulation) GetComponentByName(name string) (monitoring.Component, bool) {
	i, found := s.compNameIndex[name]
	if !found {
		return nil, false
	}

	return s.components[i], true
}

// StartPDUSessionResourceRelease launches a release on the CU-CP. The
// routine runs on the engine, so the future resolves while RunFor runs.
func (s *Simulation) StartPDUSessionResourceRelease(
	cmd cucp.PDUSessionResourceReleaseCommand,
	up cucp.UPResourceManager,
) (*async.Future[cucp.PDUSessionResourceReleaseResponse], error) {
	if s.cucp == nil {
		return nil, ErrNoCUCP
	}

	return s.cucp.StartPDUSessionResourceRelease(cmd, up), nil
}

// RunFor starts the cells if needed and runs the engine for a number of
// slots.
func (s *Simulation) RunFor(slots uint64) error {
	if !s.started {
		for _, c := range s.cells {
			c.Start()
		}

		s.started = true
	}

	var bar *monitoring.ProgressBar
	if s.monitor != nil {
		bar = s.monitor.CreateProgressBar("slots", slots)
		bar.IncrementInProgress(slots)
		defer s.monitor.CompleteProgressBar(bar)
	}

	deadline := s.engine.CurrentTime() + timing.VTimeInCycle(slots)
	if err := s.engine.RunUntil(deadline); err != nil {
		return fmt.Errorf("running simulation: %w", err)
	}

	if bar != nil {
		bar.MoveInProgressToFinished(slots)
	}

	return nil
}

// Terminate flushes the records and stops the services.
func (s *Simulation) Terminate() error {
	var errs []error

	if s.cucp != nil {
		s.cucp.Stop()
	}

	if s.procedureRecorder != nil {
		errs = append(errs, s.procedureRecorder.Terminate())
	}

	if s.dataRecorder != nil {
		errs = append(errs, s.dataRecorder.Close())
	}

	if s.monitor != nil {
		errs = append(errs, s.monitor.StopServer(context.Background()))
	}

	return errors.Join(errs...)
}
