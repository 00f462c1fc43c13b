package config

import "time"

// Sepolia deployment defaults.
const (
	DefaultRPCURL                = "https://ethereum-sepolia-rpc.publicnode.com"
	DefaultChainID         int64 = 11155111
	DefaultUSDCAddress           = "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
	DefaultAaveProvider          = "0x012bAC54348C0E635dCAc9D5FB99f06F24136C9A"
	DefaultBackendURL            = "http://localhost:8000"
	DefaultFeeRate               = 0.03
	DefaultHistoryView           = "order-history"
	DefaultKafkaTopic            = "paycart.settlements"
	DefaultServiceName           = "paycart"
	DefaultDerivationPath        = "m/44'/60'/0'/0/0"
	variableInterestRateMode     = 2
)

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.paycart",
		Backend: BackendConfig{
			BaseURL:       DefaultBackendURL,
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
			RateLimit:     10,
			RateBurst:     20,
		},
		Chain: ChainConfig{
			ChainID: DefaultChainID,
			RPC:     DefaultRPCURL,
			PaymentToken: TokenConfig{
				Symbol:   "USDC",
				Address:  DefaultUSDCAddress,
				Decimals: 6,
			},
			Lending: LendingConfig{
				Enabled:           true,
				AddressesProvider: DefaultAaveProvider,
				InterestRateMode:  variableInterestRateMode,
			},
			ReceiptTimeout:      3 * time.Minute,
			ReceiptPollInterval: 2 * time.Second,
			ReadRetryAttempts:   3,
			RateLimit:           10,
			RateBurst:           20,
		},
		Checkout: CheckoutConfig{
			FeeRate:           DefaultFeeRate,
			EventIndexDelay:   2 * time.Second,
			EventPollAttempts: 3,
			EventPollInterval: time.Second,
			EventTimeout:      30 * time.Second,
			HistoryView:       DefaultHistoryView,
		},
		Wallet: WalletConfig{
			Source:         "env",
			DerivationPath: DefaultDerivationPath,
			Confirm:        true,
			MemoryLock:     true,
		},
		Cache: CacheConfig{
			CartTTL:       5 * time.Minute,
			RateFile:      "~/.paycart/exchange_rate.json",
			RateStaleness: time.Hour,
		},
		Journal: JournalConfig{
			Path: "~/.paycart/journal.db",
		},
		Notify: NotifyConfig{
			Topic: DefaultKafkaTopic,
		},
		Telemetry: TelemetryConfig{
			ServiceName: DefaultServiceName,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.paycart/paycart.log",
		},
	}
}
