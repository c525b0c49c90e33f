package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/labflow/pkg/adapters/file"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "labflow",
	Short: "labflow drives laboratory workflows",
	Long: `labflow runs the workflow engine of a laboratory information system:
samples, partitions, analysis requests, analyses, worksheets and batches move
through their states together, with guards, cascades and escalations.

Configuration comes from flags, a config file (--config) and LABFLOW_* environment
variables, in that order of precedence.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (yaml, json or toml)")
	pf.String("store", "memory", "State store: memory, file, redis, sqlite or postgres")
	pf.String("file-dir", file.DefaultDir, "State directory for --store=file")
	pf.String("redis-addr", "localhost:6379", "Redis address for --store=redis")
	pf.String("sql-dsn", "", "Database DSN for --store=sqlite or --store=postgres")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")
	pf.String("fixture", "", "Lab fixture YAML (defaults to the built-in demo lab)")
	pf.String("actor", "", "Acting user recorded in the audit trail")

	bind := map[string]string{
		"store":      "store",
		"redis.addr": "redis-addr",
		"sql.dsn":    "sql-dsn",
		"file.dir":   "file-dir",
		"log.level":  "log-level",
		"fixture":    "fixture",
		"actor":      "actor",
	}
	for key, flag := range bind {
		_ = viper.BindPFlag(key, pf.Lookup(flag))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	viper.SetEnvPrefix("LABFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		if err := viper.ReadInConfig(); err != nil {
			fmt.Printf("Error reading config %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
	}
}
