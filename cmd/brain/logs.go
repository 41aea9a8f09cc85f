package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"brain/internal/telemetry"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	logsCmd.Flags().BoolP("follow", "f", false, "follow log output as new lines are written")
	rootCmd.AddCommand(logsCmd)
}

var logsCmd = &cobra.Command{
	Use:   "logs <project>",
	Short: "Show a project's runner log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		logFile := telemetry.ProjectLogPath(viper.GetString("dir"), args[0])

		if _, err := os.Stat(logFile); os.IsNotExist(err) {
			return fmt.Errorf("no log file for project %q at %s", args[0], logFile)
		}

		if follow {
			return followLog(cmd, logFile)
		}
		return printLog(cmd, logFile)
	},
}

func printLog(cmd *cobra.Command, logFile string) error {
	f, err := os.Open(logFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	_, err = io.Copy(cmd.OutOrStdout(), f)
	return err
}

// followLog polls the log file for new bytes. There is no teacher or pack
// dependency covering this narrow a need, so this stays on the standard
// library rather than adding an unexercised-elsewhere tailing library.
func followLog(cmd *cobra.Command, logFile string) error {
	f, err := os.Open(logFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			fmt.Fprint(cmd.OutOrStdout(), line)
		}
		if err == io.EOF {
			select {
			case <-cmd.Context().Done():
				return nil
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return err
		}
	}
}
