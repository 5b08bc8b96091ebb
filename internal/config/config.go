package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig
	Matching  MatchingConfig
	Sequence  SequenceConfig
	Reconcile ReconcileConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// MatchingConfig holds scorer tolerances. The keyword tables live here rather
// than in code so the matching core stays domain-agnostic.
type MatchingConfig struct {
	DateWindowDays       int
	AmountToleranceCents int64 `mapstructure:"amount_tolerance_cents"`
	FallbackMinDays      int
	FallbackMaxDays      int
	VendorAliases        map[string]string
	VendorSuffixes       []string
}

// SequenceConfig holds cluster classification settings.
type SequenceConfig struct {
	NSFMarkers  []string `mapstructure:"nsf_markers"`
	WindowDays  map[string]int
	NSFSpanDays int `mapstructure:"nsf_span_days"`
}

// ReconcileConfig holds write-path settings.
type ReconcileConfig struct {
	Actor      string
	Workers    int
	MaxRetries int
	ReviewTopN int `mapstructure:"review_top_n"`
}

// Load reads configuration from file and env. Env var overrides use prefix LEDGERMATCH_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "ledgermatch", "ledgermatch.db"))
	v.SetDefault("matching.datewindowdays", 3)
	v.SetDefault("matching.amount_tolerance_cents", 500)
	v.SetDefault("matching.fallbackmindays", 30)
	v.SetDefault("matching.fallbackmaxdays", 120)
	v.SetDefault("matching.vendorsuffixes", []string{"LTD", "INC", "CORP", "CO", "LLC"})
	v.SetDefault("sequence.nsf_markers", []string{"NSF", "RETURNED", "REVERSAL", "REVERSED", "INSUFFICIENT FUNDS", "CHQ RTND"})
	v.SetDefault("sequence.windowdays", map[string]int{"BANK": 3, "RECEIPT": 7, "PAYMENT": 7, "PAYROLL": 14})
	v.SetDefault("sequence.nsf_span_days", 14)
	v.SetDefault("reconcile.actor", "ledgermatch")
	v.SetDefault("reconcile.workers", 4)
	v.SetDefault("reconcile.maxretries", 5)
	v.SetDefault("reconcile.review_top_n", 3)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("LEDGERMATCH_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "ledgermatch"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEDGERMATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// SequenceWindow returns the cluster window for a source kind, falling back
// to the tightest window when the kind is not configured. Lookup is
// case-insensitive: viper lowercases keys read from config files.
func (c Config) SequenceWindow(kind string) int {
	for k, d := range c.Sequence.WindowDays {
		if strings.EqualFold(k, kind) && d > 0 {
			return d
		}
	}
	return 3
}
