package main

import (
	"fmt"
	"path/filepath"

	"brain/internal/docker"
	"brain/internal/doctor"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	doctorCmd.Flags().Bool("fix", false, "attempt to fix issues automatically")
	doctorCmd.Flags().Bool("force", false, "with --fix, also reset drifted template content")
	doctorCmd.Flags().Bool("dry-run", false, "report what --fix would do without changing anything")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Short:   "Diagnose and optionally fix common environment issues",
	Aliases: []string{"check"},
	RunE: func(cmd *cobra.Command, args []string) error {
		fix, _ := cmd.Flags().GetBool("fix")
		force, _ := cmd.Flags().GetBool("force")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		dir := viper.GetString("dir")
		cfg := doctor.Config{
			NotebookDir:       dir,
			IDLength:          8,
			IDCharset:         "alphanum",
			TemplateDir:       filepath.Join(dir, "templates"),
			DBPath:            filepath.Join(dir, "brain.db"),
			SupervisorBackend: viper.GetString("supervisor.backend"),
			AgentBinary:       viper.GetString("supervisor.agent"),
			AgentImage:        viper.GetString("supervisor.image"),
			RequiredTemplates: viper.GetStringMapString("templates.required"),
		}

		doctor.SetDockerFactory(func(namePrefix string) (doctor.DockerClient, error) {
			c, err := docker.NewClient(namePrefix)
			if err != nil {
				return nil, err
			}
			return c, nil
		})

		checks := doctor.Run(cmd.Context(), cfg, doctor.Options{Fix: fix, Force: force, DryRun: dryRun})
		fmt.Println(doctor.Report(checks))

		for _, c := range checks {
			if c.Status == doctor.StatusFail {
				exit(1)
			}
		}
		return nil
	},
}
