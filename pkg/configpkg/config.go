// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
//
// The values are read by viper from a config file or environment variables.
type Config struct {
	DBDriver            string        `mapstructure:"DB_DRIVER"`
	DBSource            string        `mapstructure:"DB_SOURCE"`
	ServerAddress       string        `mapstructure:"SERVER_ADDRESS"`
	TokenSymmetricKey   string        `mapstructure:"TOKEN_SYMMETRIC_KEY"`
	AccessTokenDuration time.Duration `mapstructure:"ACCESS_TOKEN_DURATION"`
	Environment         string        `mapstructure:"GO_ENV"`

	KafkaBrokers      []string `mapstructure:"KAFKA_BROKERS"`
	SettlementTopic   string   `mapstructure:"SETTLEMENT_TOPIC"`
	SettlementDLQ     string   `mapstructure:"SETTLEMENT_DLQ_TOPIC"`
	SettlementGroupID string   `mapstructure:"SETTLEMENT_GROUP_ID"`
	SettlementWorkers int      `mapstructure:"SETTLEMENT_WORKERS"`

	// SettlementThreshold is the quote value at which a bucket is flushed.
	SettlementThreshold   string        `mapstructure:"SETTLEMENT_THRESHOLD"`
	SettlementMaxAttempts uint          `mapstructure:"SETTLEMENT_MAX_ATTEMPTS"`
	SettlementRetryBase   time.Duration `mapstructure:"SETTLEMENT_RETRY_BASE_DELAY"`
	SettlementRetryMax    time.Duration `mapstructure:"SETTLEMENT_RETRY_MAX_DELAY"`
	SettlementLockTimeout time.Duration `mapstructure:"SETTLEMENT_LOCK_TIMEOUT"`
	SettlementFlushEvery  time.Duration `mapstructure:"SETTLEMENT_FLUSH_INTERVAL"`

	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	OutboxGracePeriod  time.Duration `mapstructure:"OUTBOX_GRACE_PERIOD"`
	OutboxBatchSize    int32         `mapstructure:"OUTBOX_BATCH_SIZE"`

	ExchangeURL       string        `mapstructure:"EXCHANGE_URL"`
	ExchangeAPIKey    string        `mapstructure:"EXCHANGE_API_KEY"`
	ExchangeTimeout   time.Duration `mapstructure:"EXCHANGE_TIMEOUT"`
	ExchangeRateLimit float64       `mapstructure:"EXCHANGE_RATE_LIMIT"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_SOURCE", "")
	v.SetDefault("TOKEN_SYMMETRIC_KEY", "")
	v.SetDefault("GO_ENV", "production")
	v.SetDefault("SERVER_ADDRESS", "0.0.0.0:8080")
	v.SetDefault("ACCESS_TOKEN_DURATION", 15*time.Minute)
	v.SetDefault("KAFKA_BROKERS", []string{"localhost:9092"})
	v.SetDefault("SETTLEMENT_TOPIC", "settlement.work-items")
	v.SetDefault("SETTLEMENT_DLQ_TOPIC", "settlement.work-items.dlq")
	v.SetDefault("SETTLEMENT_GROUP_ID", "settlement-aggregator")
	v.SetDefault("SETTLEMENT_WORKERS", 4)
	v.SetDefault("SETTLEMENT_THRESHOLD", "10.0")
	v.SetDefault("SETTLEMENT_MAX_ATTEMPTS", 5)
	v.SetDefault("SETTLEMENT_RETRY_BASE_DELAY", 200*time.Millisecond)
	v.SetDefault("SETTLEMENT_RETRY_MAX_DELAY", 5*time.Second)
	v.SetDefault("SETTLEMENT_LOCK_TIMEOUT", 5*time.Second)
	v.SetDefault("SETTLEMENT_FLUSH_INTERVAL", 30*time.Second)
	v.SetDefault("OUTBOX_POLL_INTERVAL", 5*time.Second)
	v.SetDefault("OUTBOX_GRACE_PERIOD", 10*time.Second)
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("EXCHANGE_URL", "")
	v.SetDefault("EXCHANGE_API_KEY", "")
	v.SetDefault("EXCHANGE_TIMEOUT", 10*time.Second)
	v.SetDefault("EXCHANGE_RATE_LIMIT", 5.0)
}

// Load reads configuration from file or environment variables.
func Load(path string) (Config, error) {
	var c Config

	v := viper.New()

	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	setDefaults(v)
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		return c, err
	}

	err = v.Unmarshal(&c)
	if err != nil {
		return c, err
	}

	return c, nil
}

// Threshold returns the parsed settlement threshold.
func (c Config) Threshold() (decimal.Decimal, error) {
	return decimal.NewFromString(c.SettlementThreshold)
}
