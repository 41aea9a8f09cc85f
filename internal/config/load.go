// Package config loads runner configuration from BRAIN_* environment
// variables, a config file, and built-in defaults; an environment variable
// overrides the config file, which overrides the default.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load initializes the configuration from file and environment variables.
func Load(cfgFile string) {
	// explicit .env loading
	if err := godotenv.Load(); err != nil {
		// no .env file present; not fatal
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("toml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("BRAIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// BRAIN_DIR is the notebook root; fall back to $HOME/.brain.
	if os.Getenv("BRAIN_DIR") == "" {
		if home, err := os.UserHomeDir(); err == nil {
			viper.SetDefault("dir", home+"/.brain")
		}
	}

	// Scheduling defaults (§4.2, §4.4, §5)
	viper.SetDefault("max_parallel", 4)
	viper.SetDefault("poll_interval", 2)    // seconds
	viper.SetDefault("store_timeout", 10)   // seconds
	viper.SetDefault("task_timeout", 4*60*60) // seconds (4h)
	viper.SetDefault("cancel_grace", 30)    // seconds
	viper.SetDefault("memory_threshold_pct", 10)
	viper.SetDefault("log_ring_size", 200)
	viper.SetDefault("default_workdir", "")

	// API surface for the entry store (out-of-scope collaborator; only its
	// wire contract is consumed here).
	viper.SetDefault("api_url", "http://127.0.0.1:8420")
	viper.SetDefault("projects", []string{})

	viper.SetDefault("supervisor.backend", "local")
	viper.SetDefault("supervisor.agent", "claude-code")

	// templates.required maps template name -> expected sha256 hex, checked
	// by `brain doctor` for drift; empty by default, populated by projects
	// that pin template content.
	viper.SetDefault("templates.required", map[string]string{})

	viper.SetDefault("verbose", false)
	viper.SetDefault("metrics_port", 9420)

	viper.SetDefault("notifications.slack.enabled", os.Getenv("SLACK_BOT_USER_TOKEN") != "")
	viper.SetDefault("notifications.slack.channel", "#brain-runner")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile == "" {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			viper.SetConfigName("config")
			viper.SetConfigType("toml")
			viper.AddConfigPath(".")
			if werr := viper.SafeWriteConfig(); werr != nil {
				if _, statErr := os.Stat("config.toml"); os.IsNotExist(statErr) {
					if werr := viper.WriteConfigAs("config.toml"); werr != nil {
						fmt.Fprintf(os.Stderr, "Warning: failed to create default config file: %v\n", werr)
					} else {
						fmt.Println("Created default configuration file: config.toml")
					}
				}
			} else {
				fmt.Println("Created default configuration file: config.toml")
			}
		}
	}
}

// Dir returns the resolved notebook root.
func Dir() string {
	return viper.GetString("dir")
}
