package main

import (
	"fmt"
	"net/http"
	"os"

	"brain/internal/config"
	"brain/internal/metrics"
	"brain/internal/telemetry"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var exit = os.Exit
var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "brain",
	Short:         "brain runs a notebook of markdown+frontmatter tasks through an AI coding agent",
	SilenceErrors: true,
}

// Execute adds all child commands to rootCmd and runs it. Called once by
// main.main.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n=== CRITICAL ERROR: Command Execution Panic ===\n")
			fmt.Fprintf(os.Stderr, "Error: %v\n", r)
			exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.toml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	config.Load(cfgFile)

	if err := config.ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}

	telemetry.InitLogger(viper.GetBool("verbose"), "")

	go func() {
		m := metrics.NewMetrics()
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		addr := fmt.Sprintf(":%d", viper.GetInt("metrics_port"))
		if err := http.ListenAndServe(addr, mux); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: metrics server failed: %v\n", err)
		}
	}()
}
