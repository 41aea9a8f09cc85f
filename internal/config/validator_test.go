package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		setup     func()
		wantError bool
		errMsg    string
	}{
		{
			name: "Valid Configuration",
			setup: func() {
				viper.Set("poll_interval", 2)
				viper.Set("max_parallel", 4)
				viper.Set("memory_threshold_pct", 10)
				viper.Set("metrics_port", 9420)
				viper.Set("supervisor.backend", "docker")
			},
			wantError: false,
		},
		{
			name: "Invalid Poll Interval (Negative Int)",
			setup: func() {
				viper.Set("poll_interval", -10)
			},
			wantError: true,
			errMsg:    "poll_interval must be positive",
		},
		{
			name: "Invalid Max Parallel",
			setup: func() {
				viper.Set("max_parallel", -1)
			},
			wantError: true,
			errMsg:    "max_parallel must be >= 0",
		},
		{
			name: "Invalid Memory Threshold (Too High)",
			setup: func() {
				viper.Set("memory_threshold_pct", 150)
			},
			wantError: true,
			errMsg:    "memory_threshold_pct must be between 0 and 100",
		},
		{
			name: "Invalid Log Ring Size",
			setup: func() {
				viper.Set("log_ring_size", 0)
			},
			wantError: true,
			errMsg:    "log_ring_size must be positive",
		},
		{
			name: "Invalid Metrics Port (Too Low)",
			setup: func() {
				viper.Set("metrics_port", 0)
			},
			wantError: true,
			errMsg:    "metrics_port must be between 1 and 65535",
		},
		{
			name: "Invalid Metrics Port (Too High)",
			setup: func() {
				viper.Set("metrics_port", 70000)
			},
			wantError: true,
			errMsg:    "metrics_port must be between 1 and 65535",
		},
		{
			name: "Multiple Errors",
			setup: func() {
				viper.Set("poll_interval", -5)
				viper.Set("metrics_port", 80000)
			},
			wantError: true,
			errMsg:    "configuration validation failed",
		},
		{
			name: "Invalid Supervisor Backend",
			setup: func() {
				viper.Set("supervisor.backend", "lambda")
			},
			wantError: true,
			errMsg:    "supervisor.backend must be one of",
		},
		{
			name: "Invalid Cancel Grace",
			setup: func() {
				viper.Set("cancel_grace", -1)
			},
			wantError: true,
			errMsg:    "cancel_grace must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()

			if tt.setup != nil {
				tt.setup()
			}

			err := ValidateConfig()
			if tt.wantError {
				if err == nil {
					t.Errorf("ValidateConfig() expected error, got nil")
				} else if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ValidateConfig() error = %v, want error containing %v", err, tt.errMsg)
				}
			} else {
				if err != nil {
					t.Errorf("ValidateConfig() unexpected error: %v", err)
				}
			}
		})
	}
}
