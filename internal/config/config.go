// Package config provides configuration management for paycart.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/paycart/internal/fileutil"
)

// Config represents the application configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Home      string          `yaml:"home"`
	Backend   BackendConfig   `yaml:"backend"`
	Chain     ChainConfig     `yaml:"chain"`
	Checkout  CheckoutConfig  `yaml:"checkout"`
	Wallet    WalletConfig    `yaml:"wallet"`
	User      UserConfig      `yaml:"user"`
	Admin     AdminConfig     `yaml:"admin"`
	Cache     CacheConfig     `yaml:"cache"`
	Journal   JournalConfig   `yaml:"journal"`
	Notify    NotifyConfig    `yaml:"notify"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BackendConfig defines the shop backend REST API.
type BackendConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	AdminToken    string        `yaml:"admin_token,omitempty"`
	FeedbackHook  string        `yaml:"feedback_hook,omitempty"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RateLimit     float64       `yaml:"rate_limit"`
	RateBurst     int           `yaml:"rate_burst"`
}

// ChainConfig defines the target network and deployed contracts.
type ChainConfig struct {
	ChainID             int64         `yaml:"chain_id"`
	RPC                 string        `yaml:"rpc"`
	WalletRPC           string        `yaml:"wallet_rpc,omitempty"`
	PaymentToken        TokenConfig   `yaml:"payment_token"`
	OrderContract       string        `yaml:"order_contract"`
	Lending             LendingConfig `yaml:"lending"`
	ReceiptTimeout      time.Duration `yaml:"receipt_timeout"`
	ReceiptPollInterval time.Duration `yaml:"receipt_poll_interval"`
	ReadRetryAttempts   int           `yaml:"read_retry_attempts"`
	RateLimit           float64       `yaml:"rate_limit"`
	RateBurst           int           `yaml:"rate_burst"`
}

// TokenConfig defines the ERC-20 payment token.
type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
}

// LendingConfig defines the Aave V3 market used for borrow-then-pay.
type LendingConfig struct {
	Enabled           bool   `yaml:"enabled"`
	AddressesProvider string `yaml:"addresses_provider"`
	Pool              string `yaml:"pool,omitempty"`
	Oracle            string `yaml:"oracle,omitempty"`
	InterestRateMode  int64  `yaml:"interest_rate_mode"`
	ReferralCode      uint16 `yaml:"referral_code"`
}

// CheckoutConfig defines settlement flow tuning.
type CheckoutConfig struct {
	FeeRate           float64       `yaml:"fee_rate"`
	EventIndexDelay   time.Duration `yaml:"event_index_delay"`
	EventPollAttempts int           `yaml:"event_poll_attempts"`
	EventPollInterval time.Duration `yaml:"event_poll_interval"`
	EventTimeout      time.Duration `yaml:"event_timeout"`
	HistoryView       string        `yaml:"history_view"`
}

// WalletConfig defines where the signing key comes from.
type WalletConfig struct {
	Source         string `yaml:"source"` // env, keystore, age, mnemonic
	Path           string `yaml:"path,omitempty"`
	DerivationPath string `yaml:"derivation_path"`
	Confirm        bool   `yaml:"confirm"`
	MemoryLock     bool   `yaml:"memory_lock"`
}

// UserConfig identifies the shopper on the backend.
type UserConfig struct {
	ID    string `yaml:"id"`
	Email string `yaml:"email,omitempty"`
}

// AdminConfig identifies the shop administrator.
type AdminConfig struct {
	WalletAddress string `yaml:"wallet_address,omitempty"`
	PrivyID       string `yaml:"privy_id,omitempty"`
}

// CacheConfig defines the cart cache and exchange-rate snapshot.
type CacheConfig struct {
	RedisURL      string        `yaml:"redis_url,omitempty"`
	CartTTL       time.Duration `yaml:"cart_ttl"`
	RateFile      string        `yaml:"rate_file"`
	RateStaleness time.Duration `yaml:"rate_staleness"`
}

// JournalConfig defines the settlement journal database.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// NotifyConfig defines settlement event publishing.
type NotifyConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers,omitempty"`
	Topic        string   `yaml:"topic"`
}

// TelemetryConfig defines OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	ServiceName  string `yaml:"service_name"`
	Insecure     bool   `yaml:"insecure"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file on top of Defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the config file path inside home.
func Path(home string) string {
	return filepath.Join(ExpandHome(home), "config.yaml")
}

// DefaultHome returns the default paycart home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".paycart"
	}
	return filepath.Join(home, ".paycart")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// GetHome returns the paycart home directory path.
func (c *Config) GetHome() string {
	return c.Home
}

// GetLoggingLevel returns the configured logging level.
func (c *Config) GetLoggingLevel() string {
	return c.Logging.Level
}

// GetLoggingFile returns the configured log file path.
func (c *Config) GetLoggingFile() string {
	return c.Logging.File
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}

// GetUserID returns the backend user id of the shopper.
func (c *Config) GetUserID() string {
	return c.User.ID
}

// IsAdmin reports whether the wallet address or user id belongs to the
// configured administrator.
func (c *Config) IsAdmin(walletAddress, userID string) bool {
	if c.Admin.WalletAddress != "" && strings.EqualFold(c.Admin.WalletAddress, walletAddress) {
		return true
	}
	return c.Admin.PrivyID != "" && c.Admin.PrivyID == userID
}
