package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dwarvesf/settlement-backend/internal/model"
	"github.com/dwarvesf/settlement-backend/internal/types/environments"
)

type AppConfig struct {
	Environment environments.Environment
	ApiServer   ApiServerConfig
	Database    DatabaseConfig
	Postgres    DBConnection
	Solana      SolanaConfig
	Custody     CustodyConfig
	Oracle      OracleConfig
	Verifier    VerifierConfig
	Settlement  SettlementConfig
	Sweeper     SweeperConfig
	Webhook     WebhookConfig
	Vault       VaultConfig
	Currencies  []model.Currency
}

type ApiServerConfig struct {
	Port           string
	AllowedOrigins string
	RateLimitRPS   float64
	RateLimitBurst int
}

type DatabaseConfig struct {
	// Driver is either "postgres" or "sqlite".
	Driver     string
	SQLitePath string
}

type DBConnection struct {
	Host string
	Port string
	User string
	Name string
	Pass string

	SSLMode string
}

type SolanaConfig struct {
	RPCURL           string
	ReceivingWallet  string
	MinConfirmations int
	RequestTimeout   time.Duration
}

type CustodyConfig struct {
	BaseURL        string
	APIKey         string
	PayoutWallet   string
	RequestTimeout time.Duration
}

type OracleConfig struct {
	BinanceBaseURL string
	CacheTTL       time.Duration
	RequestTimeout time.Duration
}

type VerifierConfig struct {
	Attempts int
	Delay    time.Duration
}

type SettlementConfig struct {
	Timeout time.Duration
}

type SweeperConfig struct {
	Schedule   string
	StaleAfter time.Duration
	BatchSize  int
}

type WebhookConfig struct {
	OperatorURL string
	UptimeURL   string
}

// VaultConfig is optional; when Addr is set, secrets missing from the
// environment are read from the KV path at startup.
type VaultConfig struct {
	Addr              string
	Role              string
	KVPath            string
	CustodyAPIKeyField string
}

func New() *AppConfig {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// this will not override env variables if they already exist
	godotenv.Load(".env." + env)

	currencies, err := loadCurrencies(os.Getenv("CURRENCIES_FILE"))
	if err != nil {
		panic(err)
	}

	cfg := &AppConfig{
		Environment: environments.Parse(env),
		ApiServer: ApiServerConfig{
			Port:           envVarOrDefault("PORT", "8080"),
			AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
			RateLimitRPS:   envVarAsFloat("RATE_LIMIT_RPS", 5),
			RateLimitBurst: envVarAtoi("RATE_LIMIT_BURST", 10),
		},
		Database: DatabaseConfig{
			Driver:     envVarOrDefault("DB_DRIVER", "postgres"),
			SQLitePath: envVarOrDefault("DB_SQLITE_PATH", "settlement.db"),
		},
		Postgres: DBConnection{
			Host:    os.Getenv("DB_HOST"),
			Port:    os.Getenv("DB_PORT"),
			User:    os.Getenv("DB_USER"),
			Name:    os.Getenv("DB_NAME"),
			Pass:    os.Getenv("DB_PASS"),
			SSLMode: os.Getenv("DB_SSL_MODE"),
		},
		Solana: SolanaConfig{
			RPCURL:           envVarOrDefault("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
			ReceivingWallet:  os.Getenv("SOLANA_RECEIVING_WALLET"),
			MinConfirmations: envVarAtoi("SOLANA_MIN_CONFIRMATIONS", 1),
			RequestTimeout:   envVarAsDuration("SOLANA_REQUEST_TIMEOUT", 10*time.Second),
		},
		Custody: CustodyConfig{
			BaseURL:        os.Getenv("CUSTODY_BASE_URL"),
			APIKey:         os.Getenv("CUSTODY_API_KEY"),
			PayoutWallet:   os.Getenv("CUSTODY_PAYOUT_WALLET"),
			RequestTimeout: envVarAsDuration("CUSTODY_REQUEST_TIMEOUT", 30*time.Second),
		},
		Oracle: OracleConfig{
			BinanceBaseURL: envVarOrDefault("BINANCE_BASE_URL", "https://api.binance.com"),
			CacheTTL:       envVarAsDuration("ORACLE_CACHE_TTL", 5*time.Second),
			RequestTimeout: envVarAsDuration("ORACLE_REQUEST_TIMEOUT", 5*time.Second),
		},
		Verifier: VerifierConfig{
			Attempts: envVarAtoi("VERIFIER_ATTEMPTS", 3),
			Delay:    envVarAsDuration("VERIFIER_DELAY", 2*time.Second),
		},
		Settlement: SettlementConfig{
			Timeout: envVarAsDuration("SETTLEMENT_TIMEOUT", 2*time.Minute),
		},
		Sweeper: SweeperConfig{
			Schedule:   envVarOrDefault("SWEEPER_SCHEDULE", "@every 1m"),
			StaleAfter: envVarAsDuration("SWEEPER_STALE_AFTER", 15*time.Minute),
			BatchSize:  envVarAtoi("SWEEPER_BATCH_SIZE", 100),
		},
		Webhook: WebhookConfig{
			OperatorURL: os.Getenv("OPERATOR_WEBHOOK_URL"),
			UptimeURL:   os.Getenv("UPTIME_WEBHOOK_URL"),
		},
		Vault: VaultConfig{
			Addr:               os.Getenv("VAULT_ADDR"),
			Role:               os.Getenv("VAULT_ROLE"),
			KVPath:             os.Getenv("VAULT_KV_PATH"),
			CustodyAPIKeyField: envVarOrDefault("VAULT_CUSTODY_API_KEY_FIELD", "custody_api_key"),
		},
		Currencies: currencies,
	}

	// the sweeper must not fail a QUOTED record while its payout may still be in flight
	if cfg.Sweeper.StaleAfter <= cfg.Settlement.Timeout {
		panic(errors.Errorf("SWEEPER_STALE_AFTER (%s) must be greater than SETTLEMENT_TIMEOUT (%s)",
			cfg.Sweeper.StaleAfter, cfg.Settlement.Timeout))
	}

	return cfg
}

// WrappedSOLMint is the SPL mint used for the deposit token when SPL_MINT is unset.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// DefaultCurrencies is the table used when CURRENCIES_FILE is not set: the
// deposit token is priced off SOLUSDT, payouts go out in USDT or USDC.
// SPL_MINT selects the deposit token mint.
func DefaultCurrencies() []model.Currency {
	return []model.Currency{
		{
			Code:       "SPL",
			Kind:       model.CurrencyKindNative,
			Decimals:   9,
			Mint:       envVarOrDefault("SPL_MINT", WrappedSOLMint),
			PricePair:  "SOLUSDT",
			TokenRatio: "0.00048",
		},
		{
			Code:       "USDT",
			Kind:       model.CurrencyKindStable,
			Decimals:   6,
			Mint:       "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
			TokenRatio: "1",
		},
		{
			Code:      "USDC",
			Kind:      model.CurrencyKindStable,
			Decimals:  6,
			Mint:      "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			PricePair: "USDCUSDT",
		},
	}
}

type currencyFile struct {
	Currencies []model.Currency `yaml:"currencies"`
}

func loadCurrencies(path string) ([]model.Currency, error) {
	if path == "" {
		return DefaultCurrencies(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read currencies file %s", path)
	}

	return ParseCurrencies(raw)
}

// ParseCurrencies decodes and validates a YAML currency table.
func ParseCurrencies(raw []byte) ([]model.Currency, error) {
	var f currencyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "decode currencies")
	}
	if len(f.Currencies) == 0 {
		return nil, errors.New("currencies file defines no currency")
	}

	seen := make(map[string]struct{}, len(f.Currencies))
	for i := range f.Currencies {
		c := &f.Currencies[i]
		c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
		c.PricePair = strings.ToUpper(strings.TrimSpace(c.PricePair))
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[c.Code]; dup {
			return nil, errors.Errorf("duplicate currency %s", c.Code)
		}
		seen[c.Code] = struct{}{}
	}

	return f.Currencies, nil
}

func envVarOrDefault(envName, fallback string) string {
	if v := os.Getenv(envName); v != "" {
		return v
	}
	return fallback
}

func envVarAtoi(envName string, fallback int) int {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		panic(errors.Wrapf(err, "invalid %s", envName))
	}

	return value
}

func envVarAsFloat(envName string, fallback float64) float64 {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		panic(errors.Wrapf(err, "invalid %s", envName))
	}

	return value
}

func envVarAsDuration(envName string, fallback time.Duration) time.Duration {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		panic(errors.Wrapf(err, "invalid %s", envName))
	}

	return value
}
