package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Handik4/GenLayer-Escrow/crypto"
)

// Config is the top-level node configuration.
type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	OpsAddress  string `toml:"OpsAddress"`
	DataDir     string `toml:"DataDir"`
	DBBackend   string `toml:"DBBackend"`
	NetworkName string `toml:"NetworkName"`
	RPCTokenEnv string `toml:"RPCTokenEnv"`

	Log       LogConfig         `toml:"log"`
	Oracle    OracleConfig      `toml:"oracle"`
	Telemetry TelemetryConfig   `toml:"telemetry"`
	Genesis   map[string]uint64 `toml:"genesis"`
}

// LogConfig controls the optional rotated file sink.
type LogConfig struct {
	Path       string `toml:"Path"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// OracleConfig points the arbitration bridge at its judgment endpoint.
type OracleConfig struct {
	URL                 string `toml:"URL"`
	Model               string `toml:"Model"`
	APIKeyEnv           string `toml:"APIKeyEnv"`
	TimeoutSeconds      int    `toml:"TimeoutSeconds"`
	ProofTimeoutSeconds int    `toml:"ProofTimeoutSeconds"`
}

// TelemetryConfig wires the OTLP trace exporter.
type TelemetryConfig struct {
	Enabled     bool   `toml:"Enabled"`
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	Environment string `toml:"Environment"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8645"
	}
	if strings.TrimSpace(c.OpsAddress) == "" {
		c.OpsAddress = ":9645"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./escrowd-data"
	}
	if strings.TrimSpace(c.DBBackend) == "" {
		c.DBBackend = "leveldb"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "escrow-local"
	}
	if strings.TrimSpace(c.RPCTokenEnv) == "" {
		c.RPCTokenEnv = "ESCROWD_RPC_TOKEN"
	}
	if c.Oracle.TimeoutSeconds <= 0 {
		c.Oracle.TimeoutSeconds = 60
	}
	if c.Oracle.ProofTimeoutSeconds <= 0 {
		c.Oracle.ProofTimeoutSeconds = 15
	}
	if c.Genesis == nil {
		c.Genesis = map[string]uint64{}
	}
}

// Validate rejects unusable settings before the node boots.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.DBBackend)) {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("unsupported DBBackend %q (leveldb, bolt or memory)", c.DBBackend)
	}
	for addr := range c.Genesis {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("invalid genesis address %q: %w", addr, err)
		}
	}
	return nil
}

// GenesisAlloc decodes the configured genesis allocations to raw addresses.
func (c *Config) GenesisAlloc() (map[[20]byte]uint64, error) {
	alloc := make(map[[20]byte]uint64, len(c.Genesis))
	for encoded, balance := range c.Genesis {
		addr, err := crypto.DecodeAddress(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid genesis address %q: %w", encoded, err)
		}
		var key [20]byte
		copy(key[:], addr.Bytes())
		alloc[key] = balance
	}
	return alloc, nil
}

// RPCToken resolves the RPC bearer token from the configured environment
// variable. An empty result disables RPC authentication.
func (c *Config) RPCToken() string {
	return strings.TrimSpace(os.Getenv(c.RPCTokenEnv))
}

// OracleAPIKey resolves the oracle API key from the configured environment
// variable.
func (c *Config) OracleAPIKey() string {
	if strings.TrimSpace(c.Oracle.APIKeyEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.Oracle.APIKeyEnv))
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create config directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create default config: %w", err)
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}
	return cfg, nil
}
