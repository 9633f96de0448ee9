// Package config defines the parameters of a ranstack gNB model and loads
// them from YAML files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/sarchlab/ranstack/ran"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid config")

// minRingSize is the timing wheel size used when the configured windows are
// small.
const minRingSize = 40

// Config is the complete configuration of a gNB model.
type Config struct {
	Cell      CellConfig      `yaml:"cell"`
	HARQ      HARQConfig      `yaml:"harq"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Recording RecordingConfig `yaml:"recording"`
	Log       LogConfig       `yaml:"log"`
}

// CellConfig describes the cells of the DU.
type CellConfig struct {
	Numerology uint8 `yaml:"numerology"`
	NofCells   int   `yaml:"nof_cells"`
}

// HARQConfig holds the HARQ parameters shared by all the cells.
type HARQConfig struct {
	MaxUEs               int  `yaml:"max_ues"`
	MaxAckWaitSlots      uint `yaml:"max_ack_wait_slots"`
	ShortDTXTimeoutSlots uint `yaml:"short_dtx_timeout_slots"`
	MaxK1                uint `yaml:"max_k1"`
	MaxTxLookaheadSlots  uint `yaml:"max_tx_lookahead_slots"`
	MaxNofHARQRetxs      uint `yaml:"max_nof_harq_retxs"`
	NofDLHARQs           int  `yaml:"nof_dl_harqs"`
	NofULHARQs           int  `yaml:"nof_ul_harqs"`
}

// MonitorConfig controls the HTTP monitor.
type MonitorConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// RecordingConfig controls the SQLite recorder.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	BatchSize int    `yaml:"batch_size"`
}

// LogConfig controls the logger. Verbosity 0 logs at info level in JSON,
// 1 switches to the console encoder, 2 and above enable debug messages.
type LogConfig struct {
	Verbosity int    `yaml:"verbosity"`
	Service   string `yaml:"service"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Cell: CellConfig{
			Numerology: 1,
			NofCells:   1,
		},
		HARQ: HARQConfig{
			MaxUEs:               64,
			MaxAckWaitSlots:      16,
			ShortDTXTimeoutSlots: 8,
			MaxK1:                15,
			MaxTxLookaheadSlots:  4,
			MaxNofHARQRetxs:      4,
			NofDLHARQs:           ran.MaxNofHARQs,
			NofULHARQs:           ran.MaxNofHARQs,
		},
		Monitor: MonitorConfig{
			Enabled: false,
			Port:    0,
		},
		Recording: RecordingConfig{
			Enabled:   false,
			BatchSize: 100000,
		},
		Log: LogConfig{
			Verbosity: 0,
			Service:   "ranstack",
		},
	}
}

// LoadFile reads a YAML file on top of the default configuration.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// RingSize returns the number of timing wheel buckets. It is the smallest
// divisor of the hyper-frame slot period that keeps every HARQ timeout less
// than one lap ahead, so bucket indices stay continuous when the slot counter
// wraps.
func (c HARQConfig) RingSize() int {
	need := int(c.maxTimeoutDistance()) + 1
	if need < minRingSize {
		need = minRingSize
	}

	for d := need; d < ran.SlotWrapBase; d++ {
		if ran.SlotWrapBase%d == 0 {
			return d
		}
	}

	return ran.SlotWrapBase
}

// maxTimeoutDistance is the furthest a timeout can be from the current slot.
func (c HARQConfig) maxTimeoutDistance() uint {
	wait := c.MaxAckWaitSlots
	if c.ShortDTXTimeoutSlots > wait {
		wait = c.ShortDTXTimeoutSlots
	}

	return c.MaxTxLookaheadSlots + c.MaxK1 + wait
}

// Validate checks that the configuration can be used to build a model.
func (c Config) Validate() error {
	if c.Cell.Numerology > ran.MaxNumerology {
		return fmt.Errorf("%w: numerology %d above %d",
			ErrInvalidConfig, c.Cell.Numerology, ran.MaxNumerology)
	}

	if c.Cell.NofCells <= 0 {
		return fmt.Errorf("%w: at least one cell is needed", ErrInvalidConfig)
	}

	if err := c.HARQ.validate(); err != nil {
		return err
	}

	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		return fmt.Errorf("%w: monitor port %d", ErrInvalidConfig, c.Monitor.Port)
	}

	if c.Recording.Enabled && c.Recording.BatchSize <= 0 {
		return fmt.Errorf("%w: recording batch size %d",
			ErrInvalidConfig, c.Recording.BatchSize)
	}

	if c.Log.Verbosity < 0 {
		return fmt.Errorf("%w: negative log verbosity", ErrInvalidConfig)
	}

	return nil
}

func (c HARQConfig) validate() error {
	switch {
	case c.MaxUEs <= 0 || c.MaxUEs > ran.MaxNofDUUEs:
		return fmt.Errorf("%w: max UEs %d not in [1, %d]",
			ErrInvalidConfig, c.MaxUEs, ran.MaxNofDUUEs)
	case c.MaxAckWaitSlots == 0:
		return fmt.Errorf("%w: HARQ-ACK wait window must be at least one slot",
			ErrInvalidConfig)
	case c.ShortDTXTimeoutSlots == 0:
		return fmt.Errorf("%w: short DTX wait window must be at least one slot",
			ErrInvalidConfig)
	case c.NofDLHARQs <= 0 || c.NofDLHARQs > ran.MaxNofHARQs:
		return fmt.Errorf("%w: %d DL HARQs not in [1, %d]",
			ErrInvalidConfig, c.NofDLHARQs, ran.MaxNofHARQs)
	case c.NofULHARQs <= 0 || c.NofULHARQs > ran.MaxNofHARQs:
		return fmt.Errorf("%w: %d UL HARQs not in [1, %d]",
			ErrInvalidConfig, c.NofULHARQs, ran.MaxNofHARQs)
	case c.maxTimeoutDistance() >= ran.SlotWrapBase/2:
		return fmt.Errorf("%w: HARQ timeouts reach %d slots ahead",
			ErrInvalidConfig, c.maxTimeoutDistance())
	}

	return nil
}
