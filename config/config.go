package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the circulation desk reads at startup.
type Config struct {
	Storage     StorageConfig     `mapstructure:"storage"`
	Circulation CirculationConfig `mapstructure:"circulation"`
	Logger      LoggerConfig      `mapstructure:"logger"`
}

// StorageConfig selects and locates the durable backend.
type StorageConfig struct {
	Backend    string `mapstructure:"backend"` // "json" or "sqlite"
	BooksFile  string `mapstructure:"books_file"`
	UsersFile  string `mapstructure:"users_file"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// CirculationConfig holds the loan policy.
type CirculationConfig struct {
	LoanDays      int   `mapstructure:"loan_days"`
	LateFeePerDay int64 `mapstructure:"late_fee_per_day"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file plus LIBRARY_* environment
// variables, falling back to defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LIBRARY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", "json")
	v.SetDefault("storage.books_file", "books.json")
	v.SetDefault("storage.users_file", "users.json")
	v.SetDefault("storage.sqlite_path", "library.db")
	v.SetDefault("circulation.loan_days", 14)
	v.SetDefault("circulation.late_fee_per_day", 10)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}

// Validate checks the configuration for values the desk cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Circulation.LoanDays <= 0 {
		return fmt.Errorf("loan_days must be positive, got %d", c.Circulation.LoanDays)
	}
	if c.Circulation.LateFeePerDay < 0 {
		return fmt.Errorf("late_fee_per_day cannot be negative, got %d", c.Circulation.LateFeePerDay)
	}
	return nil
}
