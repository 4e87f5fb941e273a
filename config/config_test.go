package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Handik4/GenLayer-Escrow/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8645", cfg.RPCAddress)
	require.Equal(t, "leveldb", cfg.DBBackend)
	require.Equal(t, 60, cfg.Oracle.TimeoutSeconds)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file should be written")

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, reloaded.RPCAddress)
}

func TestLoadExistingConfig(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	addr := key.PubKey().Address().String()

	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
RPCAddress = ":7000"
DBBackend = "bolt"
NetworkName = "escrow-test"

[oracle]
URL = "https://llm.example/v1/chat/completions"
Model = "gpt-4o"
TimeoutSeconds = 30

[genesis]
"` + addr + `" = 5000
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.RPCAddress)
	require.Equal(t, "bolt", cfg.DBBackend)
	require.Equal(t, "escrow-test", cfg.NetworkName)
	require.Equal(t, "https://llm.example/v1/chat/completions", cfg.Oracle.URL)
	require.Equal(t, 30, cfg.Oracle.TimeoutSeconds)
	require.Equal(t, 15, cfg.Oracle.ProofTimeoutSeconds, "missing timeout falls back to default")

	alloc, err := cfg.GenesisAlloc()
	require.NoError(t, err)
	require.Len(t, alloc, 1)
	for _, balance := range alloc {
		require.Equal(t, uint64(5000), balance)
	}
}

func TestValidateRejectsBadBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`DBBackend = "cassandra"`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported DBBackend")
}

func TestValidateRejectsBadGenesisAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[genesis]
"glx1notanaddress" = 10
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid genesis address")
}

func TestRPCTokenFromEnvironment(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	t.Setenv(cfg.RPCTokenEnv, "  secret-token \n")
	require.Equal(t, "secret-token", cfg.RPCToken())
}
