package cell

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/ranstack/config"
	"github.com/sarchlab/ranstack/ran"
	"github.com/sarchlab/ranstack/scheduler/harq"
	"github.com/sarchlab/ranstack/sim/hooking"
	"github.com/sarchlab/ranstack/sim/timing"
)

var _ = Describe("Cell", func() {
	var (
		engine *timing.SerialEngine
		cfg    config.HARQConfig
		c      *Cell
		ue     *UE
		params harq.TxParams
	)

	runUntil := func(slot int) {
		Expect(engine.RunUntil(timing.VTimeInCycle(slot))).To(Succeed())
	}

	BeforeEach(func() {
		engine = timing.NewSerialEngine()

		cfg = config.Default().HARQ
		cfg.MaxUEs = 4

		c = MakeBuilder().
			WithEngine(engine).
			WithNumerology(0).
			WithHARQConfig(cfg).
			Build("Cell[0]")
		c.Start()
		runUntil(0)

		ue = c.AddUE(0, 0x4601)
		params = harq.TxParams{TBSBytes: 1200, MCS: 20, NofPRBs: 52}
	})

	It("should follow the engine clock", func() {
		runUntil(7)

		Expect(c.CurrentSlot()).To(Equal(ran.NewSlotPoint(0, 7)))
		Expect(c.HARQ().LastSlot()).To(Equal(ran.NewSlotPoint(0, 7)))
	})

	It("should wrap the slot counter", func() {
		Expect(c.slotAt(ran.SlotWrapBase + 3)).To(Equal(ran.NewSlotPoint(0, 3)))
	})

	It("should register UEs", func() {
		Expect(c.NofUEs()).To(Equal(1))
		Expect(ue.HARQ().RNTI()).To(Equal(ran.RNTI(0x4601)))

		got, ok := c.UE(0)
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(ue))
	})

	It("should release the HARQs of removed UEs", func() {
		free := c.HARQ().NofFreeDLProcesses()
		_, ok := c.ScheduleDL(0, 4, params)
		Expect(ok).To(BeTrue())

		c.RemoveUE(0)

		Expect(c.NofUEs()).To(Equal(0))
		Expect(c.HARQ().Contains(0)).To(BeFalse())
		Expect(c.HARQ().NofFreeDLProcesses()).To(Equal(free))
	})

	It("should not schedule unknown UEs", func() {
		_, ok := c.ScheduleDL(3, 4, params)
		Expect(ok).To(BeFalse())

		_, ok = c.ScheduleUL(3, 4, params)
		Expect(ok).To(BeFalse())
	})

	It("should apply HARQ-ACKs at the next tick", func() {
		h, ok := c.ScheduleDL(0, 4, params)
		Expect(ok).To(BeTrue())
		Expect(h.PUCCHAckToReceive()).To(Equal(uint(1)))

		c.HandleDLAckInfo(0, ran.NewSlotPoint(0, 4), ran.HARQAck, 0, nil)
		Expect(ue.HARQ().NofAllocatedDLHARQs()).To(Equal(1))

		runUntil(4)

		Expect(ue.HARQ().NofAllocatedDLHARQs()).To(Equal(0))
	})

	It("should retransmit on NACK", func() {
		h, _ := c.ScheduleDL(0, 4, params)
		c.HandleDLAckInfo(0, ran.NewSlotPoint(0, 4), ran.HARQNack, 0, nil)
		runUntil(5)

		retx, ok := c.ScheduleDL(0, 4, harq.TxParams{})
		Expect(ok).To(BeTrue())
		Expect(retx.ID()).To(Equal(h.ID()))
		Expect(retx.NofRetxs()).To(Equal(uint(1)))
		Expect(retx.TxParams()).To(Equal(params))
		Expect(retx.SlotAck()).To(Equal(ran.NewSlotPoint(0, 9)))
	})

	It("should give PDSCHs sharing a UCI slot distinct bits", func() {
		first, _ := c.ScheduleDL(0, 4, params)
		second, _ := c.ScheduleDL(0, 4, params)
		Expect(first.BitIndex()).To(Equal(uint8(0)))
		Expect(second.BitIndex()).To(Equal(uint8(1)))

		c.HandleDLAckInfo(0, ran.NewSlotPoint(0, 4), ran.HARQAck, 1, nil)
		c.HandleDLAckInfo(0, ran.NewSlotPoint(0, 4), ran.HARQNack, 0, nil)
		runUntil(4)

		Expect(first.HasPendingRetx()).To(BeTrue())
		Expect(second.Empty()).To(BeTrue())
	})

	It("should apply feedback received before the deadline slot", func() {
		_, ok := c.ScheduleDL(0, 4, params)
		Expect(ok).To(BeTrue())
		runUntil(19)

		c.HandleDLAckInfo(0, ran.NewSlotPoint(0, 4), ran.HARQAck, 0, nil)
		runUntil(20)

		Expect(ue.NofDLTimeouts()).To(BeZero())
		Expect(ue.HARQ().NofAllocatedDLHARQs()).To(Equal(0))
	})

	It("should ignore HARQ-ACKs nobody waits for", func() {
		c.HandleDLAckInfo(0, ran.NewSlotPoint(0, 4), ran.HARQAck, 0, nil)
		c.HandleDLAckInfo(2, ran.NewSlotPoint(0, 4), ran.HARQAck, 0, nil)

		Expect(func() { runUntil(4) }).NotTo(Panic())
	})

	It("should count downlink timeouts", func() {
		_, ok := c.ScheduleDL(0, 4, params)
		Expect(ok).To(BeTrue())

		runUntil(19)
		Expect(ue.NofDLTimeouts()).To(BeZero())

		runUntil(20)
		Expect(ue.NofDLTimeouts()).To(Equal(uint(1)))
		Expect(ue.ConsecutivePUSCHKOs()).To(BeZero())
		Expect(ue.HARQ().NofAllocatedDLHARQs()).To(Equal(0))
	})

	Context("when receiving CRCs", func() {
		var kos []PUSCHKO

		BeforeEach(func() {
			kos = nil
			c.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				if ctx.Pos == HookPosPUSCHKO {
					kos = append(kos, ctx.Item.(PUSCHKO))
				}
			}))
		})

		It("should count consecutive KOs", func() {
			h, ok := c.ScheduleUL(0, 4, params)
			Expect(ok).To(BeTrue())
			Expect(h.SlotTx()).To(Equal(ran.NewSlotPoint(0, 4)))

			c.HandleCRC(0, ran.NewSlotPoint(0, 4), false)
			runUntil(4)

			Expect(ue.ConsecutivePUSCHKOs()).To(Equal(uint(1)))
			Expect(h.HasPendingRetx()).To(BeTrue())

			retx, ok := c.ScheduleUL(0, 2, params)
			Expect(ok).To(BeTrue())
			Expect(retx.ID()).To(Equal(h.ID()))

			c.HandleCRC(0, ran.NewSlotPoint(0, 6), false)
			runUntil(6)

			Expect(ue.ConsecutivePUSCHKOs()).To(Equal(uint(2)))
			Expect(kos).To(HaveLen(2))
			Expect(kos[1].Consecutive).To(Equal(uint(2)))
			Expect(kos[1].Timeout).To(BeFalse())
		})

		It("should reset the KO counter on success", func() {
			c.ScheduleUL(0, 1, params)
			c.HandleCRC(0, ran.NewSlotPoint(0, 1), false)
			runUntil(1)

			c.ScheduleUL(0, 1, params)
			c.HandleCRC(0, ran.NewSlotPoint(0, 2), true)
			runUntil(2)

			Expect(ue.ConsecutivePUSCHKOs()).To(BeZero())
			Expect(ue.HARQ().NofAllocatedULHARQs()).To(Equal(0))
		})

		It("should count an uplink timeout as a KO", func() {
			c.ScheduleUL(0, 2, params)

			runUntil(18)

			Expect(ue.NofULTimeouts()).To(Equal(uint(1)))
			Expect(ue.ConsecutivePUSCHKOs()).To(Equal(uint(1)))
			Expect(kos).To(ConsistOf(PUSCHKO{
				Slot:        ran.NewSlotPoint(0, 18),
				UE:          0,
				Consecutive: 1,
				Timeout:     true,
			}))
		})

		It("should ignore CRCs nobody waits for", func() {
			c.HandleCRC(0, ran.NewSlotPoint(0, 3), true)
			c.HandleCRC(1, ran.NewSlotPoint(0, 3), false)
			runUntil(3)

			Expect(ue.ConsecutivePUSCHKOs()).To(BeZero())
			Expect(kos).To(BeEmpty())
		})
	})

	It("should refuse to build without an engine", func() {
		Expect(func() { MakeBuilder().Build("Cell") }).To(Panic())
	})
})
