package monitoring

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sarchlab/ranstack/scheduler/cell"
	"github.com/sarchlab/ranstack/scheduler/harq"
	"github.com/sarchlab/ranstack/sim/hooking"
	"github.com/sarchlab/ranstack/tracing"
)

var harqEventLabels = map[*hooking.HookPos]string{
	harq.HookPosAlloc:   "alloc",
	harq.HookPosRetx:    "retx",
	harq.HookPosAck:     "ack",
	harq.HookPosNack:    "nack",
	harq.HookPosDiscard: "discard",
	harq.HookPosTimeout: "timeout",
	harq.HookPosRelease: "release",
}

// Metrics is a hook that exports the HARQ and procedure activity of the
// components it is attached to as Prometheus metrics.
type Metrics struct {
	harqEvents  *prometheus.CounterVec
	harqTBS     *prometheus.CounterVec
	puschKOs    *prometheus.CounterVec
	procedures  *prometheus.CounterVec
	stepResults *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		harqEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranstack",
			Subsystem: "harq",
			Name:      "events_total",
			Help:      "HARQ process lifecycle events.",
		}, []string{"component", "dir", "event"}),
		harqTBS: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranstack",
			Subsystem: "harq",
			Name:      "acked_bytes_total",
			Help:      "Transport block bytes of acknowledged HARQ processes.",
		}, []string{"component", "dir"}),
		puschKOs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranstack",
			Subsystem: "cell",
			Name:      "pusch_kos_total",
			Help:      "Missed PUSCHs, by cause.",
		}, []string{"component", "cause"}),
		procedures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranstack",
			Subsystem: "cucp",
			Name:      "procedures_total",
			Help:      "CU-CP procedures, by phase.",
		}, []string{"component", "kind", "phase"}),
		stepResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranstack",
			Subsystem: "cucp",
			Name:      "procedure_steps_total",
			Help:      "CU-CP procedure steps, by outcome.",
		}, []string{"component", "step", "outcome"}),
	}

	collectors := []prometheus.Collector{
		m.harqEvents, m.harqTBS, m.puschKOs, m.procedures, m.stepResults,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	return m, nil
}

// Func updates the metrics.
func (m *Metrics) Func(ctx hooking.HookCtx) {
	component := domainName(ctx.Domain)

	if name, ok := harqEventLabels[ctx.Pos]; ok {
		evt := ctx.Item.(harq.Event)
		m.harqEvents.WithLabelValues(component, evt.Dir.String(), name).Inc()

		if ctx.Pos == harq.HookPosAck {
			m.harqTBS.WithLabelValues(component, evt.Dir.String()).
				Add(float64(evt.TBS))
		}

		return
	}

	switch ctx.Pos {
	case cell.HookPosPUSCHKO:
		cause := "crc"
		if ctx.Item.(cell.PUSCHKO).Timeout {
			cause = "timeout"
		}

		m.puschKOs.WithLabelValues(component, cause).Inc()
	case tracing.HookPosTaskStart:
		task := ctx.Item.(tracing.Task)
		m.procedures.WithLabelValues(component, task.Kind, "started").Inc()
	case tracing.HookPosTaskEnd:
		m.procedures.WithLabelValues(component, "", "ended").Inc()
	case tracing.HookPosTaskStep:
		for _, step := range ctx.Item.(tracing.Task).Steps {
			m.stepResults.WithLabelValues(component, step.What, step.Detail).Inc()
		}
	}
}

func domainName(domain hooking.Hookable) string {
	if named, ok := domain.(interface{ Name() string }); ok {
		return named.Name()
	}

	return ""
}
