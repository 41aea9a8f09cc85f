package main

import (
	"fmt"
	"time"

	"brain/internal/entrystore"
	"brain/internal/graph"
	"brain/internal/supervisor"
	"brain/internal/task"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(runOneCmd)
}

var runOneCmd = &cobra.Command{
	Use:   "run-one <project> <task-id>",
	Short: "Dispatch a single task synchronously, bypassing the scheduler and capacity limits",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		project, taskID := args[0], args[1]
		ctx := cmd.Context()

		store := entrystore.NewClient(viper.GetString("api_url"))
		resp, err := store.List(ctx, project)
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		g := graph.Resolve(resp.Tasks)

		var target *task.Resolved
		for _, t := range g.Tasks {
			if t.ID == taskID {
				target = t
				break
			}
		}
		if target == nil {
			return fmt.Errorf("task %s not found in project %s", taskID, project)
		}
		if target.Classification != task.ClassificationReady {
			return fmt.Errorf("task %s is %s, not ready", taskID, target.Classification)
		}

		backend, err := buildBackend()
		if err != nil {
			return err
		}
		broadcaster := supervisor.NewLogBroadcaster(viper.GetInt("log_ring_size"), nil)
		lines := broadcaster.Subscribe("run-one")
		go func() {
			for rec := range lines {
				fmt.Println(rec.Message)
			}
		}()

		cancelGrace := time.Duration(viper.GetInt("cancel_grace")) * time.Second
		taskTimeout := time.Duration(viper.GetInt("task_timeout")) * time.Second
		sup := supervisor.New(backend, broadcaster, cancelGrace, taskTimeout)

		inProgress := task.StatusInProgress
		if err := store.Update(ctx, target.Path, entrystore.UpdateRequest{Status: &inProgress}); err != nil {
			return fmt.Errorf("write in_progress: %w", err)
		}

		if err := sup.Launch(ctx, target, viper.GetString("supervisor.agent"), agentArgs(target), agentEnv(target)); err != nil {
			pending := task.StatusPending
			_ = store.Update(ctx, target.Path, entrystore.UpdateRequest{Status: &pending})
			return fmt.Errorf("launch: %w", err)
		}

		out, err := sup.Await(target.ID)
		if err != nil {
			return fmt.Errorf("await: %w", err)
		}

		var final task.Status
		switch out.Outcome {
		case supervisor.OutcomeCompleted:
			final = task.StatusCompleted
		case supervisor.OutcomeCancelled:
			final = task.StatusCancelled
		default:
			final = task.StatusBlocked
		}
		req := entrystore.UpdateRequest{Status: &final}
		if out.Reason != "" {
			req.Note = &out.Reason
		}
		if err := store.Update(ctx, target.Path, req); err != nil {
			return fmt.Errorf("write outcome: %w", err)
		}

		fmt.Printf("task %s finished: %s (%s)\n", target.ID, out.Outcome, out.Reason)
		return nil
	},
}
