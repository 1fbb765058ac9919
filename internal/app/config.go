package app

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"

	"healthvault/internal/devnet"
	sessionsvc "healthvault/internal/services/session"
)

// ConfigFile is the name of the YAML file read from the home directory.
const ConfigFile = "config.yaml"

// Network selects the ledger backend.
const (
	NetworkDevnet = "devnet" // sandbox ledger, in process or behind relayer_url
	NetworkRPC    = "rpc"    // deployed contracts behind an Ethereum JSON-RPC endpoint
)

// DevnetConfig configures the in-process sandbox.
type DevnetConfig struct {
	Path     string `yaml:"path"`      // badger directory, default <home>/devnet
	InMemory bool   `yaml:"in_memory"` // keep state in memory only
}

// Config holds runtime wiring options for building the app.
type Config struct {
	Home string       `yaml:"-"` // config directory, e.g. $HOME/.healthvault
	HTTP *http.Client `yaml:"-"` // optional; defaults to http.DefaultClient

	Network            string        `yaml:"network"`
	RPCURL             string        `yaml:"rpc_url"`
	ChainID            int64         `yaml:"chain_id"`
	LedgerAddress      string        `yaml:"ledger_address"`
	TokenAddress       string        `yaml:"token_address"`
	DecryptionVerifier string        `yaml:"decryption_verifier"`
	RelayerURL         string        `yaml:"relayer_url"`
	InclusionTimeout   time.Duration `yaml:"inclusion_timeout"`
	ScanConcurrency    int           `yaml:"scan_concurrency"`
	GrantDays          int           `yaml:"grant_days"`
	VisitFee           string        `yaml:"visit_fee"`
	LogLevel           string        `yaml:"log_level"`
	Devnet             DevnetConfig  `yaml:"devnet"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig(home string) Config {
	c := Config{Home: home}
	c.fill()
	return c
}

// LoadConfig reads <home>/config.yaml over the defaults. A missing file is
// not an error.
func LoadConfig(home string) (Config, error) {
	var c Config
	data, err := os.ReadFile(filepath.Join(home, ConfigFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", ConfigFile, err)
		}
	}
	c.Home = home
	c.fill()
	return c, nil
}

// Save writes c to <home>/config.yaml.
func (c Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.Home, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.Home, ConfigFile), data, 0o600)
}

func (c *Config) fill() {
	if c.Network == "" {
		c.Network = NetworkDevnet
	}
	if c.ChainID == 0 {
		c.ChainID = devnet.DefaultChainID
	}
	if c.InclusionTimeout <= 0 {
		c.InclusionTimeout = sessionsvc.DefaultInclusionTimeout
	}
	if c.ScanConcurrency <= 0 {
		c.ScanConcurrency = sessionsvc.DefaultScanConcurrency
	}
	if c.GrantDays <= 0 {
		c.GrantDays = sessionsvc.DefaultGrantDays
	}
	if c.VisitFee == "" {
		c.VisitFee = big.NewInt(sessionsvc.DefaultVisitFee).String()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Devnet.Path == "" && c.Home != "" {
		c.Devnet.Path = filepath.Join(c.Home, "devnet")
	}
}

// Validate checks the fields the selected network needs.
func (c Config) Validate() error {
	if _, err := c.fee(); err != nil {
		return err
	}
	switch c.Network {
	case NetworkDevnet:
		if c.RelayerURL == "" && !c.Devnet.InMemory && c.Devnet.Path == "" {
			return errors.New("devnet.path is required unless devnet.in_memory is set")
		}
		return nil
	case NetworkRPC:
		if c.RPCURL == "" {
			return errors.New("rpc_url is required for the rpc network")
		}
		if c.RelayerURL == "" {
			return errors.New("relayer_url is required for the rpc network")
		}
		for name, v := range map[string]string{
			"ledger_address":      c.LedgerAddress,
			"token_address":       c.TokenAddress,
			"decryption_verifier": c.DecryptionVerifier,
		} {
			if !common.IsHexAddress(v) || common.HexToAddress(v) == (common.Address{}) {
				return fmt.Errorf("%s must be a non-zero hex address, got %q", name, v)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown network %q (want %s or %s)", c.Network, NetworkDevnet, NetworkRPC)
	}
}

func (c Config) fee() (*big.Int, error) {
	fee, ok := new(big.Int).SetString(c.VisitFee, 10)
	if !ok || fee.Sign() <= 0 {
		return nil, fmt.Errorf("visit_fee must be a positive integer, got %q", c.VisitFee)
	}
	return fee, nil
}

func (c Config) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}
