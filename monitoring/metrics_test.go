package monitoring

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sarchlab/ranstack/ran"
	"github.com/sarchlab/ranstack/scheduler/cell"
	"github.com/sarchlab/ranstack/scheduler/harq"
	"github.com/sarchlab/ranstack/sim/hooking"
	"github.com/sarchlab/ranstack/sim/timing"
	"github.com/sarchlab/ranstack/tracing"
)

type namedHookable struct {
	*hooking.HookableBase
}

func (namedHookable) Name() string { return "CU-CP" }

var _ = Describe("Metrics", func() {
	var (
		reg     *prometheus.Registry
		metrics *Metrics
		engine  *timing.SerialEngine
		c       *cell.Cell
	)

	BeforeEach(func() {
		reg = prometheus.NewRegistry()

		var err error
		metrics, err = NewMetrics(reg)
		Expect(err).NotTo(HaveOccurred())

		engine = timing.NewSerialEngine()
		c = cell.MakeBuilder().
			WithEngine(engine).
			WithNumerology(0).
			Build("Cell[0]")
		c.HARQ().AcceptHook(metrics)
		c.AcceptHook(metrics)
		c.Start()
		Expect(engine.RunUntil(0)).To(Succeed())
		c.AddUE(0, 0x4601)
	})

	It("should count HARQ events", func() {
		_, ok := c.ScheduleDL(0, 4, harq.TxParams{TBSBytes: 100})
		Expect(ok).To(BeTrue())
		c.HandleDLAckInfo(0, ran.NewSlotPoint(0, 4), ran.HARQAck, 0, nil)
		Expect(engine.RunUntil(4)).To(Succeed())

		Expect(testutil.ToFloat64(
			metrics.harqEvents.WithLabelValues("Cell[0].HARQ", "DL", "alloc"),
		)).To(Equal(1.0))
		Expect(testutil.ToFloat64(
			metrics.harqEvents.WithLabelValues("Cell[0].HARQ", "DL", "ack"),
		)).To(Equal(1.0))
		Expect(testutil.ToFloat64(
			metrics.harqTBS.WithLabelValues("Cell[0].HARQ", "DL"),
		)).To(Equal(100.0))
	})

	It("should count PUSCH KOs by cause", func() {
		c.ScheduleUL(0, 1, harq.TxParams{})
		c.HandleCRC(0, ran.NewSlotPoint(0, 1), false)
		Expect(engine.RunUntil(1)).To(Succeed())

		Expect(testutil.ToFloat64(
			metrics.puschKOs.WithLabelValues("Cell[0]", "crc"),
		)).To(Equal(1.0))
		Expect(testutil.ToFloat64(
			metrics.puschKOs.WithLabelValues("Cell[0]", "timeout"),
		)).To(BeZero())
	})

	It("should count procedures and step outcomes", func() {
		domain := namedHookable{HookableBase: hooking.NewHookableBase()}
		domain.AcceptHook(metrics)

		tracing.StartTask("1", "", domain, "cu_cp_routine", "release", nil)
		tracing.AddTaskStepWithDetail("1", domain, "du_ue_context_modification", "failed")
		tracing.EndTask("1", domain)

		Expect(testutil.ToFloat64(
			metrics.procedures.WithLabelValues("CU-CP", "cu_cp_routine", "started"),
		)).To(Equal(1.0))
		Expect(testutil.ToFloat64(
			metrics.stepResults.WithLabelValues("CU-CP", "du_ue_context_modification", "failed"),
		)).To(Equal(1.0))
	})

	It("should refuse to register twice", func() {
		_, err := NewMetrics(reg)
		Expect(err).To(HaveOccurred())
	})
})
