package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultCategoryName = "Applicants"

// Load reads configs/config.yaml (if present), merges config.<env>.yaml,
// overlays environment variables and applies defaults. It does not
// validate; call ValidateReceiver or ValidateWorker for the role at hand.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return unmarshal(v)
}

// LoadFromFile reads exactly one YAML file plus the environment overlay.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	registerDefaults(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)
	return &cfg, nil
}

// registerDefaults also declares every key so AutomaticEnv can bind it
// during Unmarshal.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "guild-intake")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")

	v.SetDefault("receiver.address", ":5000")
	v.SetDefault("receiver.api_key", "")
	v.SetDefault("receiver.relay_timeout", 75000)
	v.SetDefault("receiver.max_body_bytes", 1<<20)

	v.SetDefault("relay.address", "127.0.0.1:20000")
	v.SetDefault("relay.secret", "")
	v.SetDefault("relay.token_ttl", 30000)
	v.SetDefault("relay.dial_timeout", 5000)
	v.SetDefault("relay.read_timeout", 30000)
	v.SetDefault("relay.write_timeout", 10000)
	v.SetDefault("relay.max_request_bytes", 1<<20)

	v.SetDefault("worker.handler_timeout", 60000)
	v.SetDefault("tracing.exporter", "log")
	v.SetDefault("worker.metrics_address", ":8080")

	v.SetDefault("discord.token", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.category_id", "")
	v.SetDefault("discord.category_name", defaultCategoryName)

	v.SetDefault("armory.client_id", "")
	v.SetDefault("armory.client_secret", "")
	v.SetDefault("armory.token_url", "https://oauth.battle.net/token")
	v.SetDefault("armory.api_base_url", "https://%s.api.blizzard.com")
	v.SetDefault("armory.timeout", 10000)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 10000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				fmt.Printf("Loaded .env from: %s\n", path)
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		// Unset variables expand to "" so the legacy names and the
		// required-value checks still apply.
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig honours the variable names used by the earlier
// deployment of the bot.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.Receiver.APIKey, "API_KEY")
	setIfEmpty(&cfg.Relay.Secret, "IPC_SECRET_KEY")
	setIfEmpty(&cfg.Discord.Token, "DISCORD_TOKEN")
	setIfEmpty(&cfg.Discord.GuildID, "DISCORD_GUILD")
	setIfEmpty(&cfg.Discord.CategoryID, "DISCORD_CATEGORY")
	setIfEmpty(&cfg.Armory.ClientID, "BLIZZARD_CLIENT")
	setIfEmpty(&cfg.Armory.ClientSecret, "BLIZZARD_SECRET")
	setIfEmpty(&cfg.Redis.Address, "REDIS_ADDRESS")
}

func setIfEmpty(dst *string, envName string) {
	if *dst != "" {
		return
	}
	if val := os.Getenv(envName); val != "" {
		*dst = val
	}
}

// ValidateReceiver checks what the public receiver needs to start.
func ValidateReceiver(cfg *Config) error {
	if cfg.Receiver.Address == "" {
		return fmt.Errorf("receiver.address is required")
	}
	if cfg.Receiver.APIKey == "" {
		return fmt.Errorf("receiver.api_key is required")
	}
	if cfg.Relay.Address == "" {
		return fmt.Errorf("relay.address is required")
	}
	if err := validateTimeouts(cfg); err != nil {
		return err
	}
	return validateRelaySecret(cfg)
}

// ValidateWorker checks what the privileged worker needs to start.
func ValidateWorker(cfg *Config) error {
	if cfg.Discord.Token == "" {
		return fmt.Errorf("discord.token is required")
	}
	if cfg.Discord.GuildID == "" {
		return fmt.Errorf("discord.guild_id is required")
	}
	if cfg.Discord.CategoryID == "" && cfg.Discord.CategoryName == "" {
		return fmt.Errorf("discord.category_id or discord.category_name is required")
	}
	if cfg.Armory.ClientID == "" || cfg.Armory.ClientSecret == "" {
		return fmt.Errorf("armory.client_id and armory.client_secret are required")
	}
	if cfg.Relay.Address == "" {
		return fmt.Errorf("relay.address is required")
	}
	if err := validateTimeouts(cfg); err != nil {
		return err
	}
	return validateRelaySecret(cfg)
}

// validateTimeouts keeps the receiver waiting longer than the worker may
// run, so a worker timeout reaches the caller as a rejection and not as a
// dropped connection.
func validateTimeouts(cfg *Config) error {
	relay, handler := cfg.Receiver.RelayTimeout, cfg.Worker.HandlerTimeout
	if relay > 0 && handler > 0 && relay <= handler {
		return fmt.Errorf("receiver.relay_timeout (%dms) must exceed worker.handler_timeout (%dms)", relay, handler)
	}
	return nil
}

func validateRelaySecret(cfg *Config) error {
	if cfg.Relay.Secret == "" {
		return fmt.Errorf("relay.secret is required")
	}
	if cfg.Receiver.APIKey != "" && cfg.Receiver.APIKey == cfg.Relay.Secret {
		return fmt.Errorf("relay.secret must differ from receiver.api_key")
	}
	return nil
}
