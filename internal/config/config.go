// Package config loads jobflow's runtime configuration from a YAML file,
// environment variables, and CLI flags, layered the way viper does for the
// teacher's CLI.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the bound configuration record for a jobflow run.
type Config struct {
	// StoreBackend selects the JobStore implementation: "memory" or "redis".
	StoreBackend string `mapstructure:"store_backend"`
	// RedisAddr is the address used when StoreBackend == "redis".
	RedisAddr string `mapstructure:"redis_addr"`
	// RedisPoolSize bounds the Redis client's connection pool.
	RedisPoolSize int `mapstructure:"redis_pool_size"`
	// AuxiliaryFields maps an output field name to an auxiliary store name,
	// in the shape of pkg/store.CompositeStore's field rules. It is decoded
	// but not applied: the CLI opens a single backend with no auxiliary
	// stores.
	AuxiliaryFields map[string]string `mapstructure:"auxiliary_fields"`
	// RunTimeout bounds a single Manager.Run call; zero means no timeout.
	RunTimeout time.Duration `mapstructure:"run_timeout"`
	// Verbose is bound to the --verbose flag; no command reads it, so it
	// does not change CLI output.
	Verbose bool `mapstructure:"verbose"`
}

// Default returns the configuration used when no file, environment variable,
// or flag overrides a field.
func Default() Config {
	return Config{
		StoreBackend:  "memory",
		RedisAddr:     "localhost:6379",
		RedisPoolSize: 10,
	}
}

// BindFlags registers the global flags Load reads, following the
// teacher's root.go pattern of binding persistent flags into viper. The
// "config" flag itself is registered separately by the caller (bound
// directly to a string variable), so it is not repeated here.
func BindFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	cmd.PersistentFlags().String("store", "memory", "store backend: memory or redis")
	cmd.PersistentFlags().String("redis", "localhost:6379", "redis/dragonfly address")

	viper.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("store_backend", cmd.PersistentFlags().Lookup("store"))
	viper.BindPFlag("redis_addr", cmd.PersistentFlags().Lookup("redis"))
}

// Load reads jobflow.yaml (or the file named by the --config flag) from the
// current directory or $HOME/.jobflow, overlays JOBFLOW_-prefixed
// environment variables and bound flags, and decodes the result.
func Load(cfgFile string) (Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("jobflow")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.jobflow")
	}

	viper.SetEnvPrefix("JOBFLOW")
	viper.AutomaticEnv()

	cfg := Default()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, fmt.Errorf("config: read config: %w", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: decode config: %w", err)
	}
	return cfg, nil
}
