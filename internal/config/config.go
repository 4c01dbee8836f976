package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"chainstats/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Statistics StatisticsConfig `mapstructure:"statistics"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ServerConfig governs the read API listener.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// SourcesConfig groups the polled external sources.
type SourcesConfig struct {
	Blockchain BlockchainSourceConfig `mapstructure:"blockchain"`
	Price      HTTPSourceConfig       `mapstructure:"price"`
	Exchanges  ExchangesSourceConfig  `mapstructure:"exchanges"`
	Volume     HTTPSourceConfig       `mapstructure:"volume"`
}

// BlockchainSourceConfig covers network-state sampling. When RPCURL is set
// the sample is taken over Ethereum JSON-RPC instead of the REST endpoint.
type BlockchainSourceConfig struct {
	URL            string        `mapstructure:"url"`
	Token          string        `mapstructure:"token"`
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestsPerDay int           `mapstructure:"requests_per_day"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// HTTPSourceConfig describes a single rate-limited REST source.
type HTTPSourceConfig struct {
	URL            string        `mapstructure:"url"`
	RequestsPerDay int           `mapstructure:"requests_per_day"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExchangesSourceConfig describes the exchange-listing pass-through source.
type ExchangesSourceConfig struct {
	URLs           []string      `mapstructure:"urls"`
	RequestsPerDay int           `mapstructure:"requests_per_day"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// StatisticsConfig governs the regeneration cycle.
type StatisticsConfig struct {
	RegenerationInterval time.Duration `mapstructure:"regeneration_interval"`
	HoursBack            []int         `mapstructure:"hours_back"`
	Granularities        []string      `mapstructure:"granularities"`
	StaggerBase          time.Duration `mapstructure:"stagger_base"`
	PendingNoiseFloor    int64         `mapstructure:"pending_noise_floor"`
}

// AlertingConfig defines the pending-transaction alert.
type AlertingConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	PendingTxThreshold float64       `mapstructure:"pending_tx_threshold"`
	Cooldown           time.Duration `mapstructure:"cooldown"`
	Recipients         []string      `mapstructure:"recipients"`
	Mailgun            MailgunConfig `mapstructure:"mailgun"`
}

// MailgunConfig describes the mail delivery API.
type MailgunConfig struct {
	APIBase string `mapstructure:"api_base"`
	APIKey  string `mapstructure:"api_key"`
	Domain  string `mapstructure:"domain"`
	From    string `mapstructure:"from"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHAINSTATS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "chainstats")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.listen_addr", ":8333")

	v.SetDefault("sources.blockchain.url", "https://api.blockcypher.com/v1/eth/main")
	v.SetDefault("sources.blockchain.requests_per_day", 1440)
	v.SetDefault("sources.blockchain.request_timeout", "10s")

	v.SetDefault("sources.price.url", "https://api.coinmarketcap.com/v1/ticker/ethereum/")
	v.SetDefault("sources.price.requests_per_day", 2880)
	v.SetDefault("sources.price.request_timeout", "10s")

	v.SetDefault("sources.exchanges.requests_per_day", 288)
	v.SetDefault("sources.exchanges.request_timeout", "10s")

	v.SetDefault("sources.volume.requests_per_day", 288)
	v.SetDefault("sources.volume.request_timeout", "10s")

	v.SetDefault("statistics.regeneration_interval", "30m")
	v.SetDefault("statistics.hours_back", []int{1, 3, 6, 12, 24, 72, 168})
	v.SetDefault("statistics.granularities", []string{"hour", "minute"})
	v.SetDefault("statistics.stagger_base", "5s")
	v.SetDefault("statistics.pending_noise_floor", int64(100))

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.pending_tx_threshold", 10000.0)
	v.SetDefault("alerting.cooldown", "60m")
	v.SetDefault("alerting.mailgun.api_base", "https://api.mailgun.net/v3")
	v.SetDefault("alerting.mailgun.from", "do-not-reply@chainstats.local")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Sources.Blockchain.URL == "" && c.Sources.Blockchain.RPCURL == "" {
		return fmt.Errorf("sources.blockchain.url or sources.blockchain.rpc_url is required")
	}
	if c.Sources.Blockchain.RequestsPerDay <= 0 {
		return fmt.Errorf("sources.blockchain.requests_per_day must be greater than zero")
	}
	if c.Sources.Price.URL == "" {
		return fmt.Errorf("sources.price.url is required")
	}
	if c.Sources.Price.RequestsPerDay <= 0 {
		return fmt.Errorf("sources.price.requests_per_day must be greater than zero")
	}
	if c.Statistics.RegenerationInterval <= 0 {
		return fmt.Errorf("statistics.regeneration_interval must be greater than zero")
	}
	if len(c.Statistics.HoursBack) == 0 {
		return fmt.Errorf("statistics.hours_back cannot be empty")
	}
	for _, h := range c.Statistics.HoursBack {
		if h <= 0 {
			return fmt.Errorf("statistics.hours_back entries must be greater than zero")
		}
	}
	for _, g := range c.Statistics.Granularities {
		if g != "hour" && g != "minute" {
			return fmt.Errorf("statistics.granularities: unsupported granularity %q", g)
		}
	}
	if c.Alerting.PendingTxThreshold < 0 {
		return fmt.Errorf("alerting.pending_tx_threshold cannot be negative")
	}
	if c.Alerting.Enabled {
		if c.Alerting.Mailgun.APIKey == "" {
			return fmt.Errorf("alerting.mailgun.api_key is required when alerting is enabled")
		}
		if c.Alerting.Mailgun.Domain == "" {
			return fmt.Errorf("alerting.mailgun.domain is required when alerting is enabled")
		}
		if len(c.Alerting.Recipients) == 0 {
			return fmt.Errorf("alerting.recipients cannot be empty when alerting is enabled")
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
