package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of the environment variables read by ApplyEnv.
const EnvPrefix = "RANSTACK_"

// ApplyEnv overrides the configuration with RANSTACK_* environment variables.
// The given dotenv files are loaded first; missing files are skipped. Without
// files, ./.env is tried. Variables already present in the environment win
// over the files.
func ApplyEnv(cfg *Config, envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	for _, f := range envFiles {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}

	overrides := []struct {
		name  string
		apply func(string) error
	}{
		{"CELL_NUMEROLOGY", uintVar(func(v uint64) { cfg.Cell.Numerology = uint8(v) }, 8)},
		{"CELL_NOF_CELLS", intVar(func(v int) { cfg.Cell.NofCells = v })},
		{"HARQ_MAX_UES", intVar(func(v int) { cfg.HARQ.MaxUEs = v })},
		{"HARQ_MAX_ACK_WAIT_SLOTS", uintVar(func(v uint64) { cfg.HARQ.MaxAckWaitSlots = uint(v) }, 32)},
		{"HARQ_MAX_NOF_RETXS", uintVar(func(v uint64) { cfg.HARQ.MaxNofHARQRetxs = uint(v) }, 32)},
		{"MONITOR_ENABLED", boolVar(func(v bool) { cfg.Monitor.Enabled = v })},
		{"MONITOR_PORT", intVar(func(v int) { cfg.Monitor.Port = v })},
		{"RECORDING_ENABLED", boolVar(func(v bool) { cfg.Recording.Enabled = v })},
		{"RECORDING_PATH", func(s string) error { cfg.Recording.Path = s; return nil }},
		{"LOG_VERBOSITY", intVar(func(v int) { cfg.Log.Verbosity = v })},
	}

	for _, o := range overrides {
		value, ok := os.LookupEnv(EnvPrefix + o.name)
		if !ok {
			continue
		}

		if err := o.apply(value); err != nil {
			return fmt.Errorf("%w: %s%s=%q: %v",
				ErrInvalidConfig, EnvPrefix, o.name, value, err)
		}
	}

	return nil
}

func intVar(set func(int)) func(string) error {
	return func(s string) error {
		v, err := strconv.Atoi(s)
		if err != nil {
			return err
		}

		set(v)

		return nil
	}
}

func uintVar(set func(uint64), bits int) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseUint(s, 10, bits)
		if err != nil {
			return err
		}

		set(v)

		return nil
	}
}

func boolVar(set func(bool)) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}

		set(v)

		return nil
	}
}
