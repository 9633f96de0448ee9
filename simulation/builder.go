package simulation

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/rs/xid"
	"github.com/sarchlab/ranstack/async"
	"github.com/sarchlab/ranstack/config"
	"github.com/sarchlab/ranstack/cucp"
	"github.com/sarchlab/ranstack/cucp/routines"
	"github.com/sarchlab/ranstack/datarecording"
	"github.com/sarchlab/ranstack/logging"
	"github.com/sarchlab/ranstack/monitoring"
	"github.com/sarchlab/ranstack/scheduler/cell"
	"github.com/sarchlab/ranstack/sim/timing"
	"github.com/sarchlab/ranstack/tracing"
)

// Builder can be used to build a simulation.
type Builder struct {
	cfg            config.Config
	logger         *logr.Logger
	outputFileName string
	e1             cucp.E1APControlNotifier
	f1             cucp.F1APUEContextNotifier
}

// MakeBuilder creates a new builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		cfg: config.Default(),
	}
}

// WithConfig sets the configuration of the model.
func (b Builder) WithConfig(cfg config.Config) Builder {
	b.cfg = cfg
	return b
}

// WithLogger sets the root logger. Without it, the logger is built from the
// log section of the configuration.
func (b Builder) WithLogger(logger logr.Logger) Builder {
	b.logger = &logger
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.cfg.Monitor.Enabled = false
	return b
}

// WithOutputFileName sets the file name of the recording, without the
// extension. It enables recording.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	b.cfg.Recording.Enabled = true

	return b
}

// WithE1APControlNotifier sets the CU-UP the CU-CP talks to.
func (b Builder) WithE1APControlNotifier(n cucp.E1APControlNotifier) Builder {
	b.e1 = n
	return b
}

// WithF1APUEContextNotifier sets the DU the CU-CP talks to.
func (b Builder) WithF1APUEContextNotifier(n cucp.F1APUEContextNotifier) Builder {
	b.f1 = n
	return b
}

// Build builds the simulation.
func (b Builder) Build() (*Simulation, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	if (b.e1 == nil) != (b.f1 == nil) {
		return nil, fmt.Errorf("%w: E1AP and F1AP notifiers must be set together",
			config.ErrInvalidConfig)
	}

	logger, err := b.rootLogger()
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		id:            xid.New().String(),
		logger:        logger,
		engine:        timing.NewSerialEngine(),
		compNameIndex: make(map[string]int),
		stepCounts:    tracing.NewStepCountTracer(),
	}
	s.procedureTime = tracing.NewAverageTimeTracer(s.engine, nil)

	b.buildCells(s)
	b.buildCUCP(s)

	if err := b.buildRecording(s); err != nil {
		return nil, err
	}

	if err := b.buildMonitoring(s); err != nil {
		return nil, err
	}

	return s, nil
}

func (b Builder) rootLogger() (logr.Logger, error) {
	if b.logger != nil {
		return *b.logger, nil
	}

	logger, err := logging.New(b.cfg.Log)
	if err != nil {
		return logr.Discard(), fmt.Errorf("building logger: %w", err)
	}

	return logger, nil
}

func (b Builder) buildCells(s *Simulation) {
	schedLogger := logging.Scheduler(s.logger)

	for i := 0; i < b.cfg.Cell.NofCells; i++ {
		c := cell.MakeBuilder().
			WithEngine(s.engine).
			WithNumerology(b.cfg.Cell.Numerology).
			WithHARQConfig(b.cfg.HARQ).
			WithLogger(schedLogger).
			Build(fmt.Sprintf("Cell[%d]", i))

		s.cells = append(s.cells, c)
		s.RegisterComponent(c)
	}
}

func (b Builder) buildCUCP(s *Simulation) {
	if b.e1 == nil {
		return
	}

	s.cucp = routines.MakeBuilder().
		WithE1APControlNotifier(b.e1).
		WithF1APUEContextNotifier(b.f1).
		WithLogger(logging.CUCP(s.logger)).
		WithExecutor(async.NewEngineExecutor(s.engine)).
		Build()

	s.cucp.AcceptHook(s.procedureTime)
	s.cucp.AcceptHook(s.stepCounts)
	s.RegisterComponent(s.cucp)
}

func (b Builder) buildRecording(s *Simulation) error {
	if !b.cfg.Recording.Enabled {
		return nil
	}

	path := b.outputFileName
	if path == "" {
		path = b.cfg.Recording.Path
	}

	if path == "" {
		path = "ranstack_sim_" + s.id
	}

	recorder, err := datarecording.New(path, b.cfg.Recording.BatchSize)
	if err != nil {
		return fmt.Errorf("building recorder: %w", err)
	}

	s.dataRecorder = recorder

	harqRecorder, err := tracing.NewHARQRecorder(recorder, s.logger)
	if err != nil {
		return err
	}

	for _, c := range s.cells {
		c.HARQ().AcceptHook(harqRecorder)
	}

	s.procedureRecorder, err = tracing.NewProcedureRecorder(
		s.engine, recorder, s.logger)
	if err != nil {
		return err
	}

	if s.cucp != nil {
		s.cucp.AcceptHook(s.procedureRecorder)
	}

	return nil
}

func (b Builder) buildMonitoring(s *Simulation) error {
	if !b.cfg.Monitor.Enabled {
		return nil
	}

	s.monitor = monitoring.NewMonitor().
		WithLogger(s.logger).
		WithPortNumber(b.cfg.Monitor.Port)
	s.monitor.RegisterEngine(s.engine)

	for _, c := range s.components {
		s.monitor.RegisterComponent(c)
	}

	metrics, err := monitoring.NewMetrics(s.monitor.Registry())
	if err != nil {
		return err
	}

	for _, c := range s.cells {
		c.AcceptHook(metrics)
		c.HARQ().AcceptHook(metrics)
	}

	if s.cucp != nil {
		s.cucp.AcceptHook(metrics)
	}

	addr, err := s.monitor.StartServer()
	if err != nil {
		return err
	}

	s.logger.Info("monitor started", "addr", addr)

	return nil
}
