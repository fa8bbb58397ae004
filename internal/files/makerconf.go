package files

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const makerConfigFile = "config.toml"

// MakerFileConfig is the maker daemon's own config.toml.
type MakerFileConfig struct {
	NetworkPort          int     `toml:"network_port" json:"networkPort"`
	RPCPort              int     `toml:"rpc_port" json:"rpcPort"`
	SocksPort            int     `toml:"socks_port" json:"socksPort"`
	ControlPort          int     `toml:"control_port" json:"controlPort"`
	MinSwapAmount        int64   `toml:"min_swap_amount" json:"minSwapAmount"`
	BaseFee              int64   `toml:"base_fee" json:"baseFee"`
	AmountRelativeFeePct float64 `toml:"amount_relative_fee_pct" json:"amountRelativeFeePct"`
	FidelityAmount       int64   `toml:"fidelity_amount" json:"fidelityAmount"`
	FidelityTimelock     int64   `toml:"fidelity_timelock" json:"fidelityTimelock"`
}

func DefaultMakerFileConfig() MakerFileConfig {
	return MakerFileConfig{
		NetworkPort:          6102,
		RPCPort:              6103,
		SocksPort:            9052,
		ControlPort:          9051,
		MinSwapAmount:        10000,
		BaseFee:              100,
		AmountRelativeFeePct: 0.1,
		FidelityAmount:       50000,
		FidelityTimelock:     13104,
	}
}

// Validate checks ports and fee parameters.
func (c MakerFileConfig) Validate() error {
	ports := map[string]int{
		"network_port": c.NetworkPort,
		"rpc_port":     c.RPCPort,
		"socks_port":   c.SocksPort,
		"control_port": c.ControlPort,
	}
	for name, p := range ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535", name)
		}
	}
	if c.NetworkPort == c.RPCPort {
		return fmt.Errorf("network_port and rpc_port must differ")
	}
	if c.MinSwapAmount <= 0 {
		return fmt.Errorf("min_swap_amount must be positive")
	}
	if c.BaseFee < 0 || c.AmountRelativeFeePct < 0 {
		return fmt.Errorf("fees must not be negative")
	}
	if c.FidelityAmount <= 0 || c.FidelityTimelock <= 0 {
		return fmt.Errorf("fidelity amount and timelock must be positive")
	}
	return nil
}

// LoadMakerConfig reads <dataDir>/config.toml. Keys missing from the file
// keep their defaults, and a missing file yields the defaults.
func LoadMakerConfig(dataDir string) (MakerFileConfig, error) {
	cfg := DefaultMakerFileConfig()
	path := filepath.Join(dataDir, makerConfigFile)
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return DefaultMakerFileConfig(), nil
		}
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveMakerConfig validates cfg and writes <dataDir>/config.toml.
func SaveMakerConfig(dataDir string, cfg MakerFileConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode maker config: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dataDir, makerConfigFile), buf.Bytes(), 0600)
}
