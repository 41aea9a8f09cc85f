package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	survey "github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
)

func init() {
	stopCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(stopCmd)
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running runner loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := readPID()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Println("brain is not running")
				return nil
			}
			return err
		}

		skip, _ := cmd.Flags().GetBool("yes")
		if !skip {
			confirmed := false
			prompt := &survey.Confirm{
				Message: "Stopping the runner will soft-cancel every in-progress task. Continue?",
			}
			if err := survey.AskOne(prompt, &confirmed); err != nil {
				return fmt.Errorf("confirmation cancelled: %w", err)
			}
			if !confirmed {
				fmt.Println("aborted")
				return nil
			}
		}

		proc, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("find process %d: %w", pid, err)
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("signal process %d: %w", pid, err)
		}

		for i := 0; i < 50; i++ {
			if proc.Signal(syscall.Signal(0)) != nil {
				fmt.Println("brain stopped")
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}

		fmt.Println("brain did not exit within 5s, sending SIGKILL")
		return proc.Kill()
	},
}
