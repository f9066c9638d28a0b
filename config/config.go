package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ipfs-force-community/metrics"
	"github.com/pelletier/go-toml"
)

const (
	// Configuration file name
	ConfigFile = "config.toml"
)

type Config struct {
	API           *APIConfig
	Network       *NetworkConfig
	Connectors    *ConnectorsConfig
	EckoWallet    *EckoWalletConfig
	Zelcore       *SignAPIConfig
	Chainweaver   *SignAPIConfig
	WalletConnect *WalletConnectConfig
	Request       *RequestConfig
	Proxy         *ProxyConfig
	Metrics       *metrics.MetricsConfig
	Trace         *metrics.TraceConfig
}

type APIConfig struct {
	ListenAddress string
}

// NetworkConfig points at the chainweb node used to verify accounts.
type NetworkConfig struct {
	NetworkID string
	ChainID   string
	Host      string

	GasLimit int64
	GasPrice float64
	TTL      int64

	RequestsPerSecond float64
	Burst             int
}

type ConnectorsConfig struct {
	// Order is the registration order, it decides priority ties.
	Order []string
	// Selected is the wallet reconnected at start up, empty for none.
	Selected     string
	EagerConnect bool
}

type EckoWalletConfig struct {
	InjectTimeout string
}

func (c *EckoWalletConfig) Timeout() time.Duration {
	return parseDuration(c.InjectTimeout, 3*time.Second)
}

// SignAPIConfig is a wallet speaking the local signing api on URL.
type SignAPIConfig struct {
	URL            string
	Accounts       []string
	DefaultAccount string
}

type WalletConnectConfig struct {
	RelayURL    string
	ProjectID   string
	Name        string
	Description string
	AppURL      string
	Icon        string
	SessionFile string
	// PairingTimeout bounds the wait for the wallet to approve a pairing.
	PairingTimeout string
}

func (c *WalletConnectConfig) Timeout() time.Duration {
	return parseDuration(c.PairingTimeout, 5*time.Minute)
}

type RequestConfig struct {
	RequestQueueSize int
	RequestTimeout   string
	ClearInterval    string
}

type ProxyConfig struct {
	// Chainweb is forwarded to for requests tagged with the chainweb namespace header.
	Chainweb string
}

func DefaultConfig() *Config {
	cfg := &Config{
		API: &APIConfig{ListenAddress: "/ip4/127.0.0.1/tcp/45133"},
		Network: &NetworkConfig{
			NetworkID:         "mainnet01",
			ChainID:           "1",
			Host:              "https://api.chainweb.com",
			GasLimit:          1000,
			GasPrice:          0.00000001,
			TTL:               600,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Connectors: &ConnectorsConfig{
			Order:        []string{"eckoWALLET", "Zelcore", "Chainweaver", "WalletConnect"},
			Selected:     "",
			EagerConnect: true,
		},
		EckoWallet: &EckoWalletConfig{InjectTimeout: "3s"},
		// both wallets serve the signing api on the same well known port
		Zelcore:     &SignAPIConfig{URL: "http://127.0.0.1:9467"},
		Chainweaver: &SignAPIConfig{URL: "http://127.0.0.1:9467"},
		WalletConnect: &WalletConnectConfig{
			RelayURL:       "wss://relay.walletconnect.com",
			Name:           "Kadena Cabinet",
			Description:    "Kadena Cabinet",
			AppURL:         "https://cabinet.kadena.io",
			SessionFile:    "walletconnect.json",
			PairingTimeout: "5m",
		},
		Request: &RequestConfig{
			RequestQueueSize: 30,
			RequestTimeout:   "5m",
			ClearInterval:    "5m",
		},
		Proxy:   &ProxyConfig{Chainweb: ""},
		Metrics: metrics.DefaultMetricsConfig(),
		Trace:   metrics.DefaultTraceConfig(),
	}
	namespace := "cabinet"
	cfg.Metrics.Exporter.Prometheus.Namespace = namespace
	cfg.Metrics.Exporter.Graphite.Namespace = namespace
	cfg.Metrics.Exporter.Prometheus.EndPoint = "/ip4/0.0.0.0/tcp/4570"
	cfg.Metrics.Exporter.Graphite.Port = 4570
	cfg.Trace.ServerName = "cabinet-gateway"
	cfg.Trace.JaegerEndpoint = ""

	return cfg
}

func (c *RequestConfig) Timeout() time.Duration {
	return parseDuration(c.RequestTimeout, 5*time.Minute)
}

func (c *RequestConfig) Interval() time.Duration {
	return parseDuration(c.ClearInterval, 5*time.Minute)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Validate rejects duration settings that would otherwise fall back to their
// defaults unnoticed.
func (c *Config) Validate() error {
	durations := map[string]string{}
	if c.EckoWallet != nil {
		durations["EckoWallet.InjectTimeout"] = c.EckoWallet.InjectTimeout
	}
	if c.WalletConnect != nil {
		durations["WalletConnect.PairingTimeout"] = c.WalletConnect.PairingTimeout
	}
	if c.Request != nil {
		durations["Request.RequestTimeout"] = c.Request.RequestTimeout
		durations["Request.ClearInterval"] = c.Request.ClearInterval
	}
	for name, v := range durations {
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s %q: must be positive", name, v)
		}
	}
	return nil
}

func ReadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err = toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return cfg, nil
}

func WriteConfig(filePath string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(filePath, data, 0644)
}
