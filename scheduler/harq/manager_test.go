package harq

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/ranstack/ran"
	"github.com/sarchlab/ranstack/sim/hooking"
	"go.uber.org/mock/gomock"
)

func snr(v float32) *float32 {
	return &v
}

var _ = Describe("CellManager", func() {
	var (
		mockCtrl *gomock.Controller
		notifier *MockTimeoutNotifier
		mgr      *CellManager
		ue       *UEEntity
		slot0    ran.SlotPoint
	)

	advanceTo := func(from, to int) {
		for i := from; i <= to; i++ {
			mgr.SlotIndication(slot0.Add(i))
		}
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		notifier = NewMockTimeoutNotifier(mockCtrl)

		mgr = MakeBuilder().
			WithMaxUEs(4).
			WithMaxAckWaitSlots(16).
			WithTimeoutNotifier(notifier).
			Build()

		slot0 = ran.NewSlotPoint(0, 0)
		mgr.SlotIndication(slot0)

		ue = mgr.AddUE(0, 0x4601, ran.MaxNofHARQs, ran.MaxNofHARQs)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("when adding UEs", func() {
		It("should register the UE", func() {
			Expect(mgr.Contains(0)).To(BeTrue())
			Expect(mgr.Contains(1)).To(BeFalse())
			Expect(ue.UE()).To(Equal(ran.UEIndex(0)))
			Expect(ue.RNTI()).To(Equal(ran.RNTI(0x4601)))
			Expect(ue.NofDLHARQs()).To(Equal(ran.MaxNofHARQs))
		})

		It("should panic on duplicate UE", func() {
			Expect(func() { mgr.AddUE(0, 0x4602, 8, 8) }).To(Panic())
		})

		It("should panic on zero HARQs", func() {
			Expect(func() { mgr.AddUE(1, 0x4602, 0, 8) }).To(Panic())
			Expect(func() { mgr.AddUE(1, 0x4602, 8, 0) }).To(Panic())
		})
	})

	Context("when allocating", func() {
		It("should hand out HARQ IDs in increasing order", func() {
			for i := 0; i < 3; i++ {
				h, ok := ue.AllocDLHARQ(slot0, 4, 4, 0)
				Expect(ok).To(BeTrue())
				Expect(h.ID()).To(Equal(ran.HARQID(i)))
				Expect(h.UE()).To(Equal(ran.UEIndex(0)))
				Expect(h.IsWaitingAck()).To(BeTrue())
				Expect(h.SlotAck()).To(Equal(slot0.Add(4)))
			}
		})

		It("should not exceed the UE capacity", func() {
			small := mgr.AddUE(1, 0x4602, 2, 2)

			_, ok1 := small.AllocDLHARQ(slot0, 4, 4, 0)
			_, ok2 := small.AllocDLHARQ(slot0, 4, 4, 1)
			_, ok3 := small.AllocDLHARQ(slot0, 4, 4, 2)

			Expect(ok1).To(BeTrue())
			Expect(ok2).To(BeTrue())
			Expect(ok3).To(BeFalse())
			Expect(small.NofAllocatedDLHARQs()).To(Equal(2))
		})

		It("should not exceed the cell capacity", func() {
			tiny := MakeBuilder().
				WithMaxUEs(1).
				WithTimeoutNotifier(notifier).
				Build()
			e := tiny.AddUE(0, 0x4601, ran.MaxNofHARQs, 1)

			for i := 0; i < ran.MaxNofHARQs; i++ {
				_, ok := e.AllocDLHARQ(slot0, 4, 4, 0)
				Expect(ok).To(BeTrue())
			}

			_, ok := e.AllocDLHARQ(slot0, 4, 4, 0)
			Expect(ok).To(BeFalse())
			Expect(tiny.NofFreeDLProcesses()).To(Equal(0))
		})

		It("should toggle the NDI when an ID is reused", func() {
			h, _ := ue.AllocDLHARQ(slot0, 4, 4, 0)
			ndi := h.NDI()
			h.Reset()

			h2, ok := ue.AllocDLHARQ(slot0.Add(1), 4, 4, 0)

			Expect(ok).To(BeTrue())
			Expect(h2.ID()).To(Equal(h.ID()))
			Expect(h2.NDI()).To(Equal(!ndi))
		})

		It("should seed the downlink fields", func() {
			h, _ := ue.AllocDLHARQ(slot0, 4, 4, 3)

			Expect(h.PUCCHAckToReceive()).To(BeZero())
			Expect(h.ChosenAck()).To(Equal(ran.HARQDTX))
			Expect(h.BitIndex()).To(Equal(uint8(3)))
			Expect(h.TxParams()).To(Equal(TxParams{}))
		})
	})

	Context("when the acknowledgment does not arrive", func() {
		It("should time out at the ack slot plus the wait window", func() {
			h, _ := ue.AllocDLHARQ(slot0, 4, 4, 0)

			advanceTo(1, 19)
			Expect(h.IsWaitingAck()).To(BeTrue())

			notifier.EXPECT().OnHARQTimeout(ran.UEIndex(0), Downlink, false)
			mgr.SlotIndication(slot0.Add(20))

			Expect(h.Empty()).To(BeTrue())
			Expect(ue.NofAllocatedDLHARQs()).To(BeZero())
		})

		It("should time out uplink processes", func() {
			h, _ := ue.AllocULHARQ(slot0.Add(2), 4)

			advanceTo(1, 17)
			Expect(h.IsWaitingAck()).To(BeTrue())

			notifier.EXPECT().OnHARQTimeout(ran.UEIndex(0), Uplink, false)
			mgr.SlotIndication(slot0.Add(18))

			Expect(h.Empty()).To(BeTrue())
		})

		It("should not notify with a single slot window", func() {
			ntn := MakeBuilder().
				WithMaxAckWaitSlots(1).
				WithTimeoutNotifier(notifier).
				Build()
			ntn.SlotIndication(slot0)
			e := ntn.AddUE(0, 0x4601, 8, 8)
			h, _ := e.AllocDLHARQ(slot0, 4, 4, 0)

			for i := 1; i <= 5; i++ {
				ntn.SlotIndication(slot0.Add(i))
			}

			Expect(h.Empty()).To(BeTrue())
		})

		It("should time out across the slot counter wrap", func() {
			last := ran.NewSlotPoint(0, ran.SlotWrapBase-1)
			mgr.SlotIndication(last)
			h, _ := ue.AllocULHARQ(last, 4)

			for i := 1; i < 16; i++ {
				mgr.SlotIndication(last.Add(i))
			}
			Expect(h.IsWaitingAck()).To(BeTrue())

			notifier.EXPECT().OnHARQTimeout(ran.UEIndex(0), Uplink, false)
			mgr.SlotIndication(last.Add(16))

			Expect(h.Empty()).To(BeTrue())
		})

		It("should time out a large K1 exactly at its deadline", func() {
			wide := MakeBuilder().
				WithMaxK1(32).
				WithMaxAckWaitSlots(30).
				WithRingSize(80).
				WithTimeoutNotifier(notifier).
				Build()
			wide.SlotIndication(slot0)
			e := wide.AddUE(0, 0x4601, 8, 8)
			h, _ := e.AllocDLHARQ(slot0, 15, 4, 0)

			for i := 1; i < 45; i++ {
				wide.SlotIndication(slot0.Add(i))
			}
			Expect(h.IsWaitingAck()).To(BeTrue())

			notifier.EXPECT().OnHARQTimeout(ran.UEIndex(0), Downlink, false)
			wide.SlotIndication(slot0.Add(45))

			Expect(h.Empty()).To(BeTrue())
		})

		It("should refuse a timeout a full lap ahead", func() {
			Expect(func() { ue.AllocDLHARQ(slot0, 30, 4, 0) }).To(Panic())
			Expect(ue.NofAllocatedDLHARQs()).To(BeZero())
		})

		It("should leave records of a later lap in the bucket", func() {
			h, _ := ue.AllocDLHARQ(slot0, 4, 4, 0)
			mgr.dl.rescheduleTimeout(h.ref, slot0.Add(mgr.RingSize()+5))

			advanceTo(1, mgr.RingSize()+4)
			Expect(h.IsWaitingAck()).To(BeTrue())

			notifier.EXPECT().OnHARQTimeout(ran.UEIndex(0), Downlink, false)
			mgr.SlotIndication(slot0.Add(mgr.RingSize() + 5))

			Expect(h.Empty()).To(BeTrue())
		})
	})

	Context("when the CRC arrives", func() {
		It("should return the TBS on success", func() {
			h, _ := ue.AllocULHARQ(slot0, 4)
			h.SaveTxParams(TxParams{TBSBytes: 100, MCS: 10, NofPRBs: 5})

			Expect(h.CRCInfo(true)).To(Equal(100))
			Expect(h.Empty()).To(BeTrue())
		})

		It("should return -1 when the CRC is not expected", func() {
			h, _ := ue.AllocULHARQ(slot0, 4)
			h.CRCInfo(true)

			Expect(h.CRCInfo(true)).To(Equal(-1))
			Expect(h.Empty()).To(BeTrue())
		})

		It("should leave a process pending retx unmodified on late CRC", func() {
			h, _ := ue.AllocULHARQ(slot0, 4)

			Expect(h.CRCInfo(false)).To(Equal(0))
			Expect(h.HasPendingRetx()).To(BeTrue())

			Expect(h.CRCInfo(true)).To(Equal(-1))
			Expect(h.HasPendingRetx()).To(BeTrue())
			Expect(h.NofRetxs()).To(BeZero())
		})

		It("should retransmit with the same NDI", func() {
			h, _ := ue.AllocULHARQ(slot0, 4)
			ndi := h.NDI()
			h.CRCInfo(false)

			found, ok := ue.FindPendingULRetx()
			Expect(ok).To(BeTrue())
			Expect(found.ID()).To(Equal(h.ID()))

			h.NewRetx(slot0.Add(8))

			Expect(h.IsWaitingAck()).To(BeTrue())
			Expect(h.NofRetxs()).To(Equal(uint(1)))
			Expect(h.NDI()).To(Equal(ndi))
			Expect(h.SlotTx()).To(Equal(slot0.Add(8)))
		})

		It("should panic on retx of a process not pending retx", func() {
			h, _ := ue.AllocULHARQ(slot0, 4)

			Expect(func() { h.NewRetx(slot0.Add(1)) }).To(Panic())
		})
	})

	Context("when the HARQ-ACK arrives", func() {
		var h DLProcess

		BeforeEach(func() {
			h, _ = ue.AllocDLHARQ(slot0, 4, 2, 0)
			h.IncrementPUCCHCounter()
		})

		It("should release on ACK", func() {
			Expect(h.AckInfo(ran.HARQAck, snr(10))).To(Equal(DLAckAcked))
			Expect(h.Empty()).To(BeTrue())
		})

		It("should move to pending retx on NACK", func() {
			Expect(h.AckInfo(ran.HARQNack, snr(10))).To(Equal(DLAckNacked))
			Expect(h.HasPendingRetx()).To(BeTrue())
		})

		It("should report an error for feedback that is not expected", func() {
			h.AckInfo(ran.HARQNack, nil)

			Expect(h.AckInfo(ran.HARQAck, nil)).To(Equal(DLAckError))
			Expect(h.HasPendingRetx()).To(BeTrue())
			Expect(h.NofRetxs()).To(BeZero())
		})

		It("should discard after the retx budget is exhausted", func() {
			discards := 0
			mgr.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				if ctx.Pos == HookPosDiscard {
					discards++
				}
			}))

			Expect(h.AckInfo(ran.HARQNack, nil)).To(Equal(DLAckNacked))
			Expect(h.HasPendingRetx()).To(BeTrue())

			h.NewRetx(slot0.Add(1), 4, 0)
			h.IncrementPUCCHCounter()
			Expect(h.AckInfo(ran.HARQNack, nil)).To(Equal(DLAckNacked))
			Expect(h.HasPendingRetx()).To(BeTrue())
			Expect(h.NofRetxs()).To(Equal(uint(1)))

			h.NewRetx(slot0.Add(2), 4, 0)
			h.IncrementPUCCHCounter()
			Expect(h.AckInfo(ran.HARQNack, nil)).To(Equal(DLAckNacked))

			Expect(h.Empty()).To(BeTrue())
			Expect(discards).To(Equal(1))
		})

		It("should discard on NACK after retxs are cancelled", func() {
			long, _ := ue.AllocDLHARQ(slot0, 4, 5, 1)
			for i := 1; i <= 2; i++ {
				long.IncrementPUCCHCounter()
				long.AckInfo(ran.HARQNack, nil)
				long.NewRetx(slot0.Add(i), 4, 1)
			}
			long.IncrementPUCCHCounter()
			Expect(long.NofRetxs()).To(Equal(uint(2)))

			long.CancelRetxs()
			Expect(long.MaxNofRetxs()).To(Equal(uint(2)))
			Expect(long.IsWaitingAck()).To(BeTrue())

			Expect(long.AckInfo(ran.HARQNack, nil)).To(Equal(DLAckNacked))
			Expect(long.Empty()).To(BeTrue())
		})
	})

	Context("when the HARQ-ACK is bundled over two occasions", func() {
		var h DLProcess

		BeforeEach(func() {
			h, _ = ue.AllocDLHARQ(slot0, 4, 4, 0)
			h.IncrementPUCCHCounter()
			h.IncrementPUCCHCounter()
		})

		It("should resolve DTX followed by ACK as ACK", func() {
			Expect(h.AckInfo(ran.HARQDTX, nil)).To(Equal(DLAckNoUpdate))
			Expect(h.PUCCHAckToReceive()).To(Equal(uint(1)))

			Expect(h.AckInfo(ran.HARQAck, snr(5))).To(Equal(DLAckAcked))
			Expect(h.Empty()).To(BeTrue())
		})

		It("should keep the value with the better SNR", func() {
			h.AckInfo(ran.HARQAck, snr(10))

			Expect(h.AckInfo(ran.HARQNack, snr(3))).To(Equal(DLAckAcked))
		})

		It("should replace the value when the SNR improves", func() {
			h.AckInfo(ran.HARQAck, snr(3))

			Expect(h.AckInfo(ran.HARQNack, snr(10))).To(Equal(DLAckNacked))
		})

		It("should time out early with the provisional ACK", func() {
			mgr.SlotIndication(slot0.Add(1))
			mgr.SlotIndication(slot0.Add(2))
			Expect(h.AckInfo(ran.HARQAck, snr(10))).To(Equal(DLAckNoUpdate))

			advanceTo(3, 9)
			Expect(h.IsWaitingAck()).To(BeTrue())

			notifier.EXPECT().OnHARQTimeout(ran.UEIndex(0), Downlink, true)
			mgr.SlotIndication(slot0.Add(10))

			Expect(h.Empty()).To(BeTrue())
		})
	})

	Context("when looking up processes", func() {
		It("should find a downlink process by UCI slot and bit index", func() {
			ue.AllocDLHARQ(slot0, 4, 4, 0)
			h1, _ := ue.AllocDLHARQ(slot0, 4, 4, 1)

			found, ok := ue.FindDLHARQ(slot0.Add(4), 1)
			Expect(ok).To(BeTrue())
			Expect(found.ID()).To(Equal(h1.ID()))

			_, ok = ue.FindDLHARQ(slot0.Add(4), 2)
			Expect(ok).To(BeFalse())

			_, ok = ue.FindDLHARQ(slot0.Add(5), 1)
			Expect(ok).To(BeFalse())
		})

		It("should find an uplink process by PUSCH slot", func() {
			ue.AllocULHARQ(slot0, 4)
			h, _ := ue.AllocULHARQ(slot0.Add(1), 4)

			found, ok := ue.FindULHARQ(slot0.Add(1))
			Expect(ok).To(BeTrue())
			Expect(found.ID()).To(Equal(h.ID()))
		})

		It("should find processes by state and by ID", func() {
			_, ok := ue.FindDLHARQWaitingAck()
			Expect(ok).To(BeFalse())

			h, _ := ue.AllocDLHARQ(slot0, 4, 4, 0)
			u, _ := ue.AllocULHARQ(slot0, 4)

			waiting, ok := ue.FindDLHARQWaitingAck()
			Expect(ok).To(BeTrue())
			Expect(waiting.ID()).To(Equal(h.ID()))

			_, ok = ue.FindULHARQWaitingAck()
			Expect(ok).To(BeTrue())

			byID, ok := ue.ULHARQ(u.ID())
			Expect(ok).To(BeTrue())
			Expect(byID.SlotTx()).To(Equal(slot0))

			_, ok = ue.DLHARQ(5)
			Expect(ok).To(BeFalse())

			h.IncrementPUCCHCounter()
			h.AckInfo(ran.HARQNack, nil)
			pending, ok := ue.FindPendingDLRetx()
			Expect(ok).To(BeTrue())
			Expect(pending.ID()).To(Equal(h.ID()))
		})
	})

	Context("when removing UEs", func() {
		It("should return every process to the pools", func() {
			freeDL := mgr.NofFreeDLProcesses()
			freeUL := mgr.NofFreeULProcesses()

			for i := 0; i < 3; i++ {
				ue.AllocDLHARQ(slot0, 4, 4, uint8(i))
			}
			h, _ := ue.AllocULHARQ(slot0, 4)
			ue.AllocULHARQ(slot0.Add(1), 4)
			h.CRCInfo(false)

			Expect(mgr.NofFreeDLProcesses()).To(Equal(freeDL - 3))
			Expect(mgr.NofFreeULProcesses()).To(Equal(freeUL - 2))

			mgr.RemoveUE(0)

			Expect(mgr.NofFreeDLProcesses()).To(Equal(freeDL))
			Expect(mgr.NofFreeULProcesses()).To(Equal(freeUL))
			Expect(mgr.Contains(0)).To(BeFalse())
			Expect(mgr.dl.pendingRetx.len()).To(BeZero())
			Expect(mgr.ul.pendingRetx.len()).To(BeZero())
		})

		It("should refill the UE free IDs", func() {
			for i := 0; i < 3; i++ {
				ue.AllocDLHARQ(slot0, 4, 4, uint8(i))
			}
			ue.AllocULHARQ(slot0, 4)
			ue.AllocULHARQ(slot0.Add(1), 4)

			mgr.dl.releaseUEHARQs(0)
			mgr.ul.releaseUEHARQs(0)

			Expect(mgr.dl.ues[0].freeIDs).To(HaveLen(ran.MaxNofHARQs))
			Expect(mgr.ul.ues[0].freeIDs).To(HaveLen(ran.MaxNofHARQs))
		})

		It("should not time out released processes", func() {
			ue.AllocDLHARQ(slot0, 4, 4, 0)
			ue.Reset()

			advanceTo(1, 40)

			Expect(ue.Empty()).To(BeTrue())
			Expect(ue.UE()).To(Equal(ran.InvalidUEIndex))
		})

		It("should release the previous UE on assignment", func() {
			ue.AllocDLHARQ(slot0, 4, 4, 0)
			other := mgr.AddUE(1, 0x4602, 4, 4)

			ue.Assign(other)

			Expect(mgr.Contains(0)).To(BeFalse())
			Expect(mgr.Contains(1)).To(BeTrue())
			Expect(ue.UE()).To(Equal(ran.UEIndex(1)))
			Expect(other.Empty()).To(BeTrue())

			other.Reset()
			Expect(mgr.Contains(1)).To(BeTrue())
		})
	})

	Context("with hooks", func() {
		It("should report the lifecycle of a process", func() {
			positions := []*hooking.HookPos{}
			var last Event
			mgr.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				positions = append(positions, ctx.Pos)
				last = ctx.Item.(Event)
			}))

			h, _ := ue.AllocULHARQ(slot0, 4)
			h.SaveTxParams(TxParams{TBSBytes: 64})
			h.CRCInfo(true)

			Expect(positions).To(Equal([]*hooking.HookPos{
				HookPosAlloc, HookPosAck, HookPosRelease,
			}))
			Expect(last.Dir).To(Equal(Uplink))
			Expect(last.TBS).To(Equal(uint32(64)))
		})
	})
})

var _ = Describe("Builder", func() {
	It("should reject a zero wait window", func() {
		Expect(func() { MakeBuilder().WithMaxAckWaitSlots(0).Build() }).To(Panic())
	})

	It("should reject a ring not larger than the wait window", func() {
		Expect(func() {
			MakeBuilder().WithMaxAckWaitSlots(40).WithRingSize(40).Build()
		}).To(Panic())
	})

	It("should reject a ring the furthest timeout can lap", func() {
		Expect(func() {
			MakeBuilder().WithMaxAckWaitSlots(30).Build()
		}).To(Panic())
		Expect(func() {
			MakeBuilder().WithMaxK1(32).WithRingSize(50).Build()
		}).To(Panic())
	})

	It("should reject a zero short DTX window", func() {
		Expect(func() { MakeBuilder().WithShortDTXTimeoutSlots(0).Build() }).To(Panic())
	})

	It("should build with the requested ring size", func() {
		m := MakeBuilder().WithRingSize(64).WithName("Cell[0].HARQ").Build()

		Expect(m.RingSize()).To(Equal(64))
		Expect(m.Name()).To(Equal("Cell[0].HARQ"))
	})
})
