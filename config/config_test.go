package config_test

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/sarchlab/ranstack/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	It("should have a valid default", func() {
		cfg := config.Default()

		Expect(cfg.Validate()).To(Succeed())
		Expect(cfg.HARQ.RingSize()).To(Equal(40))
	})

	It("should grow the ring with the wait window", func() {
		h := config.Default().HARQ
		h.MaxAckWaitSlots = 40

		// 4 + 15 + 40 + 1 = 60, and 64 is the next divisor of 10240.
		Expect(h.RingSize()).To(Equal(64))
	})

	It("should use the short DTX window when it is the longest", func() {
		h := config.Default().HARQ
		h.MaxAckWaitSlots = 1
		h.ShortDTXTimeoutSlots = 50

		Expect(h.RingSize()).To(Equal(80))
	})

	DescribeTable("should reject invalid values",
		func(mutate func(*config.Config)) {
			cfg := config.Default()
			mutate(&cfg)

			err := cfg.Validate()

			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, config.ErrInvalidConfig)).To(BeTrue())
		},
		Entry("numerology", func(c *config.Config) { c.Cell.Numerology = 5 }),
		Entry("no cells", func(c *config.Config) { c.Cell.NofCells = 0 }),
		Entry("no UEs", func(c *config.Config) { c.HARQ.MaxUEs = 0 }),
		Entry("zero wait", func(c *config.Config) { c.HARQ.MaxAckWaitSlots = 0 }),
		Entry("zero short DTX wait", func(c *config.Config) { c.HARQ.ShortDTXTimeoutSlots = 0 }),
		Entry("too many HARQs", func(c *config.Config) { c.HARQ.NofDLHARQs = 17 }),
		Entry("no UL HARQs", func(c *config.Config) { c.HARQ.NofULHARQs = 0 }),
		Entry("huge window", func(c *config.Config) { c.HARQ.MaxAckWaitSlots = 6000 }),
		Entry("port", func(c *config.Config) { c.Monitor.Port = 70000 }),
		Entry("batch", func(c *config.Config) {
			c.Recording.Enabled = true
			c.Recording.BatchSize = 0
		}),
	)

	Context("when loading files", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		It("should overlay the file on the defaults", func() {
			path := filepath.Join(dir, "gnb.yaml")
			Expect(os.WriteFile(path, []byte(`
cell:
  numerology: 0
harq:
  max_ues: 8
  max_ack_wait_slots: 24
monitor:
  enabled: true
  port: 8080
`), 0o600)).To(Succeed())

			cfg, err := config.LoadFile(path)

			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Cell.Numerology).To(Equal(uint8(0)))
			Expect(cfg.Cell.NofCells).To(Equal(1))
			Expect(cfg.HARQ.MaxUEs).To(Equal(8))
			Expect(cfg.HARQ.MaxAckWaitSlots).To(Equal(uint(24)))
			Expect(cfg.HARQ.MaxK1).To(Equal(uint(15)))
			Expect(cfg.Monitor.Enabled).To(BeTrue())
			Expect(cfg.Monitor.Port).To(Equal(8080))
		})

		It("should fail on a missing file", func() {
			_, err := config.LoadFile(filepath.Join(dir, "missing.yaml"))

			Expect(err).To(HaveOccurred())
		})

		It("should fail on malformed YAML", func() {
			path := filepath.Join(dir, "bad.yaml")
			Expect(os.WriteFile(path, []byte("harq: [1, 2"), 0o600)).To(Succeed())

			_, err := config.LoadFile(path)

			Expect(err).To(HaveOccurred())
		})
	})

	Context("when applying the environment", func() {
		setenv := func(key, value string) {
			Expect(os.Setenv(key, value)).To(Succeed())
			DeferCleanup(os.Unsetenv, key)
		}

		It("should override from variables", func() {
			setenv("RANSTACK_HARQ_MAX_UES", "32")
			setenv("RANSTACK_MONITOR_ENABLED", "true")
			setenv("RANSTACK_RECORDING_PATH", "/tmp/harq")
			cfg := config.Default()

			Expect(config.ApplyEnv(&cfg, filepath.Join(GinkgoT().TempDir(), "none.env"))).
				To(Succeed())

			Expect(cfg.HARQ.MaxUEs).To(Equal(32))
			Expect(cfg.Monitor.Enabled).To(BeTrue())
			Expect(cfg.Recording.Path).To(Equal("/tmp/harq"))
		})

		It("should read dotenv files", func() {
			path := filepath.Join(GinkgoT().TempDir(), "test.env")
			Expect(os.WriteFile(path,
				[]byte("RANSTACK_LOG_VERBOSITY=2\nRANSTACK_CELL_NUMEROLOGY=0\n"),
				0o600)).To(Succeed())
			DeferCleanup(os.Unsetenv, "RANSTACK_LOG_VERBOSITY")
			DeferCleanup(os.Unsetenv, "RANSTACK_CELL_NUMEROLOGY")
			cfg := config.Default()

			Expect(config.ApplyEnv(&cfg, path)).To(Succeed())

			Expect(cfg.Log.Verbosity).To(Equal(2))
			Expect(cfg.Cell.Numerology).To(Equal(uint8(0)))
		})

		It("should reject malformed values", func() {
			setenv("RANSTACK_MONITOR_PORT", "eighty")
			cfg := config.Default()

			err := config.ApplyEnv(&cfg, filepath.Join(GinkgoT().TempDir(), "none.env"))

			Expect(errors.Is(err, config.ErrInvalidConfig)).To(BeTrue())
		})
	})
})
