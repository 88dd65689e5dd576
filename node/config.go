package node

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"globe.dev/node/node/store"
)

type Config struct {
	Network          string `json:"network"`
	DataDir          string `json:"data_dir"`
	LogLevel         string `json:"log_level"`
	DBBackend        string `json:"db_backend"`
	VerifyWorkers    int    `json:"verify_workers"`
	MinRelayFeePerKB uint64 `json:"min_relay_fee_per_kb"`
	// SkipRangeProofs trusts output range proofs. Only for importing blocks
	// that were already validated.
	SkipRangeProofs bool `json:"skip_range_proofs"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

var allowedNetworks = map[string]struct{}{
	"mainnet": {},
	"testnet": {},
	"regtest": {},
}

const maxVerifyWorkers = 256

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".globe"
	}
	return filepath.Join(home, ".globe")
}

func DefaultConfig() Config {
	return Config{
		Network:          "regtest",
		DataDir:          DefaultDataDir(),
		LogLevel:         "info",
		DBBackend:        store.BackendBolt,
		VerifyWorkers:    4,
		MinRelayFeePerKB: 0,
	}
}

// LoadConfigFile overlays the JSON file at path on DefaultConfig. Unknown
// fields are rejected.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	name := filepath.Base(path)
	if name == "" || name == "." || name == ".." {
		return cfg, fmt.Errorf("invalid config file name: %q", path)
	}
	raw, err := fs.ReadFile(os.DirFS(filepath.Dir(path)), name)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	network := strings.TrimSpace(cfg.Network)
	if network == "" {
		return errors.New("network is required")
	}
	if _, ok := allowedNetworks[network]; !ok {
		return fmt.Errorf("invalid network %q", cfg.Network)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	switch cfg.DBBackend {
	case store.BackendBolt, store.BackendLevelDB:
	default:
		return fmt.Errorf("invalid db_backend %q", cfg.DBBackend)
	}
	if cfg.VerifyWorkers <= 0 {
		return errors.New("verify_workers must be > 0")
	}
	if cfg.VerifyWorkers > maxVerifyWorkers {
		return fmt.Errorf("verify_workers must be <= %d", maxVerifyWorkers)
	}
	return nil
}
