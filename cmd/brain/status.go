package main

import (
	"fmt"
	"os"
	"syscall"

	"brain/internal/entrystore"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the runner is running and each project's task counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		running := false
		if pid, err := readPID(); err == nil {
			if proc, err := os.FindProcess(pid); err == nil && proc.Signal(syscall.Signal(0)) == nil {
				running = true
			}
		}
		if running {
			fmt.Println("runner: running")
		} else {
			fmt.Println("runner: stopped")
		}

		store := entrystore.NewClient(viper.GetString("api_url"))
		for _, project := range viper.GetStringSlice("projects") {
			resp, err := store.List(cmd.Context(), project)
			if err != nil {
				fmt.Printf("%-20s error: %v\n", project, err)
				continue
			}
			fmt.Printf("%-20s total=%d ready=%d waiting=%d blocked=%d\n",
				project, resp.Stats.Total, resp.Stats.Ready, resp.Stats.Waiting, resp.Stats.Blocked)
		}
		return nil
	},
}
