package main

import (
	"context"
	"fmt"

	"brain/internal/entrystore"
	"brain/internal/task"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(listCmd, readyCmd, waitingCmd, blockedCmd)
}

var listCmd = &cobra.Command{
	Use:   "list <project>",
	Short: "List every task in a project",
	Args:  cobra.ExactArgs(1),
	RunE: listRunner(func(c *entrystore.Client, ctx context.Context, project string) (*entrystore.ListResponse, error) {
		return c.List(ctx, project)
	}),
}

var readyCmd = &cobra.Command{
	Use:   "ready <project>",
	Short: "List tasks ready to dispatch",
	Args:  cobra.ExactArgs(1),
	RunE: listRunner(func(c *entrystore.Client, ctx context.Context, project string) (*entrystore.ListResponse, error) {
		return c.Ready(ctx, project)
	}),
}

var waitingCmd = &cobra.Command{
	Use:   "waiting <project>",
	Short: "List tasks waiting on dependencies",
	Args:  cobra.ExactArgs(1),
	RunE: listRunner(func(c *entrystore.Client, ctx context.Context, project string) (*entrystore.ListResponse, error) {
		return c.Waiting(ctx, project)
	}),
}

var blockedCmd = &cobra.Command{
	Use:   "blocked <project>",
	Short: "List blocked tasks",
	Args:  cobra.ExactArgs(1),
	RunE: listRunner(func(c *entrystore.Client, ctx context.Context, project string) (*entrystore.ListResponse, error) {
		return c.Blocked(ctx, project)
	}),
}

func listRunner(fetch func(*entrystore.Client, context.Context, string) (*entrystore.ListResponse, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		store := entrystore.NewClient(viper.GetString("api_url"))
		resp, err := fetch(store, cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTasks(resp.Tasks)
		return nil
	}
}

func printTasks(tasks []*task.Task) {
	for _, t := range tasks {
		fmt.Printf("%-10s %-12s %-8s %s\n", t.ID, t.Status, t.Priority, t.Title)
	}
	if len(tasks) == 0 {
		fmt.Println("(none)")
	}
}
