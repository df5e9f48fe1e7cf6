// Package cmd provides the jobflow CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nuulab/jobflow/internal/config"
	"github.com/nuulab/jobflow/pkg/store"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "jobflow",
	Short:   "jobflow - a deferred-call DAG execution engine",
	Long:    "jobflow runs a Flow of Jobs to completion against a JobStore, interpreting each job's Response to evolve the schedule as it goes.",
	Version: "0.1.0",
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./jobflow.yaml)")
	config.BindFlags(rootCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

func loadConfig() config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fail(fmt.Sprintf("loading config: %v", err))
		os.Exit(1)
	}
	return cfg
}

// openStore builds the document store named by cfg.StoreBackend, exiting the
// process on failure the way every subcommand needs to. It does not connect
// the store; each subcommand calls Connect on the result.
func openStore(cfg config.Config) store.Store {
	var s store.Store
	switch cfg.StoreBackend {
	case "redis":
		redisCfg := store.DefaultRedisConfig()
		redisCfg.Address = cfg.RedisAddr
		redisCfg.PoolSize = cfg.RedisPoolSize
		rs, err := store.NewRedisStore(redisCfg)
		if err != nil {
			fail(fmt.Sprintf("opening redis store: %v", err))
			os.Exit(1)
		}
		s = rs
	case "memory", "":
		s = store.NewMemoryStore()
	default:
		fail(fmt.Sprintf("unknown store backend %q", cfg.StoreBackend))
		os.Exit(1)
	}
	return s
}

func green(s string) string  { return "\033[32m" + s + "\033[0m" }
func red(s string) string    { return "\033[31m" + s + "\033[0m" }
func yellow(s string) string { return "\033[33m" + s + "\033[0m" }
func cyan(s string) string   { return "\033[36m" + s + "\033[0m" }
func bold(s string) string   { return "\033[1m" + s + "\033[0m" }

func success(msg string) { fmt.Println(green("✓ ") + msg) }
func fail(msg string)    { fmt.Fprintln(os.Stderr, red("✗ ")+msg) }
func info(msg string)    { fmt.Println(cyan("ℹ ") + msg) }
func warn(msg string)    { fmt.Println(yellow("⚠ ") + msg) }
