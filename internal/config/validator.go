package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// ValidateConfig validates configuration values and returns an error if any are invalid.
// This function should be called after viper has loaded the configuration.
func ValidateConfig() error {
	var errors []string

	durationKeys := []string{"poll_interval", "store_timeout", "task_timeout", "cancel_grace"}
	for _, key := range durationKeys {
		if !viper.IsSet(key) {
			continue
		}
		var d time.Duration
		if v := viper.GetDuration(key); v != 0 {
			d = v
		} else if s := viper.GetInt(key); s != 0 {
			d = time.Duration(s) * time.Second
		}
		if d <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %v", key, d))
		}
	}

	if viper.IsSet("max_parallel") {
		if n := viper.GetInt("max_parallel"); n < 0 {
			errors = append(errors, fmt.Sprintf("max_parallel must be >= 0, got: %d", n))
		}
	}

	if viper.IsSet("memory_threshold_pct") {
		pct := viper.GetInt("memory_threshold_pct")
		if pct < 0 || pct > 100 {
			errors = append(errors, fmt.Sprintf("memory_threshold_pct must be between 0 and 100, got: %d", pct))
		}
	}

	if viper.IsSet("log_ring_size") {
		if n := viper.GetInt("log_ring_size"); n <= 0 {
			errors = append(errors, fmt.Sprintf("log_ring_size must be positive, got: %d", n))
		}
	}

	if viper.IsSet("metrics_port") {
		port := viper.GetInt("metrics_port")
		if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("metrics_port must be between 1 and 65535, got: %d", port))
		}
	}

	if viper.IsSet("supervisor.backend") {
		switch viper.GetString("supervisor.backend") {
		case "local", "docker", "k8s":
		default:
			errors = append(errors, fmt.Sprintf("supervisor.backend must be one of local|docker|k8s, got: %q", viper.GetString("supervisor.backend")))
		}
	}

	if len(errors) > 0 {
		errorMsg := errors[0]
		for i := 1; i < len(errors); i++ {
			errorMsg += "\n  " + errors[i]
		}
		return fmt.Errorf("configuration validation failed:\n  %s", errorMsg)
	}

	return nil
}

// ValidateAndExit validates the configuration and exits with a non-zero code if validation fails.
func ValidateAndExit() {
	if err := ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
