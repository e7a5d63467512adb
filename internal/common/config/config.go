// internal/common/config/config.go
package config

import "time"

// Config is the configuration shared by both processes. Each process only
// validates the sections it needs.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Receiver ReceiverConfig `mapstructure:"receiver"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Armory   ArmoryConfig   `mapstructure:"armory"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ReceiverConfig holds the public HTTP side.
type ReceiverConfig struct {
	Address      string `mapstructure:"address"`
	APIKey       string `mapstructure:"api_key"`
	RelayTimeout int    `mapstructure:"relay_timeout"` // milliseconds
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

// RelayConfig is read by both ends of the relay link.
type RelayConfig struct {
	Address         string `mapstructure:"address"`
	Secret          string `mapstructure:"secret"`
	TokenTTL        int    `mapstructure:"token_ttl"`     // milliseconds
	DialTimeout     int    `mapstructure:"dial_timeout"`  // milliseconds
	ReadTimeout     int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"` // milliseconds
	MaxRequestBytes int64  `mapstructure:"max_request_bytes"`
}

// WorkerConfig holds the privileged side.
type WorkerConfig struct {
	HandlerTimeout int    `mapstructure:"handler_timeout"` // milliseconds
	MetricsAddress string `mapstructure:"metrics_address"`
}

type DiscordConfig struct {
	Token        string `mapstructure:"token"`
	GuildID      string `mapstructure:"guild_id"`
	CategoryID   string `mapstructure:"category_id"`
	CategoryName string `mapstructure:"category_name"`
}

// ArmoryConfig configures the Battle.net character media lookup.
type ArmoryConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"`
	APIBaseURL   string `mapstructure:"api_base_url"` // %s is replaced by the region
	Timeout      int    `mapstructure:"timeout"`      // milliseconds
}

// RedisConfig is optional. When Address is empty channel provisioning is
// serialized in-process only.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	LockTTL  int    `mapstructure:"lock_ttl"` // milliseconds
}

func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig selects where worker stage spans go: "log", "stdout" or
// "none".
type TracingConfig struct {
	Exporter string `mapstructure:"exporter"`
}

// GetDuration converts a millisecond setting into a time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
