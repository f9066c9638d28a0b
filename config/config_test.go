package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chainweaver.Accounts = []string{"k:abc", "alice"}
	cfg.Chainweaver.DefaultAccount = "alice"

	cfgPath := filepath.Join(t.TempDir(), ConfigFile)
	assert.NoError(t, WriteConfig(cfgPath, cfg))

	res, err := ReadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.API, res.API)
	assert.Equal(t, cfg.Network, res.Network)
	assert.Equal(t, cfg.Connectors, res.Connectors)
	assert.Equal(t, cfg.EckoWallet, res.EckoWallet)
	assert.Equal(t, cfg.Chainweaver, res.Chainweaver)
	assert.Equal(t, cfg.WalletConnect, res.WalletConnect)
	assert.Equal(t, cfg.Request, res.Request)
	assert.Equal(t, cfg.Metrics, res.Metrics)
	assert.Equal(t, cfg.Trace, res.Trace)
}

func TestPartialConfigKeepsDefaults(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), ConfigFile)
	require.NoError(t, os.WriteFile(cfgPath, []byte("[Network]\nNetworkID = \"testnet04\"\n"), 0644))

	res, err := ReadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "testnet04", res.Network.NetworkID)
	assert.Equal(t, DefaultConfig().API, res.API)
	assert.Equal(t, 3*time.Second, res.EckoWallet.Timeout())
}

func TestDurations(t *testing.T) {
	assert.Equal(t, 3*time.Second, (&EckoWalletConfig{}).Timeout())
	assert.Equal(t, 500*time.Millisecond, (&EckoWalletConfig{InjectTimeout: "500ms"}).Timeout())
	assert.Equal(t, 3*time.Second, (&EckoWalletConfig{InjectTimeout: "bogus"}).Timeout())
	assert.Equal(t, 5*time.Minute, (&RequestConfig{}).Timeout())
	assert.Equal(t, time.Minute, (&RequestConfig{ClearInterval: "1m"}).Interval())
	assert.Equal(t, 5*time.Minute, (&WalletConnectConfig{}).Timeout())
}

func TestInvalidDuration(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), ConfigFile)
	require.NoError(t, os.WriteFile(cfgPath, []byte("[EckoWallet]\nInjectTimeout = \"3 seconds\"\n"), 0644))

	_, err := ReadConfig(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EckoWallet.InjectTimeout")

	cfg := DefaultConfig()
	cfg.Request.ClearInterval = "-1m"
	assert.Error(t, cfg.Validate())
	assert.NoError(t, DefaultConfig().Validate())
}
