package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brain/internal/control"
	"brain/internal/docker"
	"brain/internal/entrystore"
	"brain/internal/notify"
	"brain/internal/runnerloop"
	"brain/internal/scheduler"
	"brain/internal/supervisor"
	"brain/internal/task"
	"brain/internal/tui"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

func init() {
	startCmd.Flags().Bool("no-tui", false, "run headless, without the interactive board")
	startCmd.Flags().StringP("workdir", "w", "", "default working directory for tasks whose own worktree/workdir don't resolve")
	viper.BindPFlag("no_tui", startCmd.Flags().Lookup("no-tui"))
	viper.BindPFlag("default_workdir", startCmd.Flags().Lookup("workdir"))
	rootCmd.AddCommand(startCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the runner loop, polling every configured project and dispatching ready tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd.Context())
	},
}

func buildBackend() (supervisor.Backend, error) {
	switch viper.GetString("supervisor.backend") {
	case "docker":
		client, err := docker.NewClient("brain")
		if err != nil {
			return nil, fmt.Errorf("docker client: %w", err)
		}
		return supervisor.NewDockerBackend(client, viper.GetString("supervisor.image")), nil

	case "k8s":
		cfg, err := kubeConfig()
		if err != nil {
			return nil, fmt.Errorf("kube config: %w", err)
		}
		clientset, err := kubernetes.NewForConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("kube client: %w", err)
		}
		return supervisor.NewK8sBackend(clientset, viper.GetString("supervisor.namespace"), viper.GetString("supervisor.image"), corev1.PullIfNotPresent), nil

	default:
		return supervisor.NewLocalBackend(), nil
	}
}

func kubeConfig() (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		if home, err := os.UserHomeDir(); err == nil {
			kubeconfig = home + "/.kube/config"
		}
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

// agentArgs builds the argv passed to the configured agent CLI for a task;
// the agent binary itself is opaque, so this just hands it the task's
// resolved workdir and id.
func agentArgs(t *task.Resolved) []string {
	return []string{"--task-id", t.ID, "--workdir", t.ResolvedWorkdir}
}

func agentEnv(t *task.Resolved) []string {
	return append(os.Environ(),
		"BRAIN_TASK_ID="+t.ID,
		"BRAIN_PROJECT="+t.Project,
		"BRAIN_TASK_PATH="+t.Path,
	)
}

func runStart(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := writePID(); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer removePID()

	backend, err := buildBackend()
	if err != nil {
		return err
	}

	broadcaster := supervisor.NewLogBroadcaster(viper.GetInt("log_ring_size"), nil)
	cancelGrace := time.Duration(viper.GetInt("cancel_grace")) * time.Second
	taskTimeout := time.Duration(viper.GetInt("task_timeout")) * time.Second
	sup := supervisor.New(backend, broadcaster, cancelGrace, taskTimeout)

	store := entrystore.NewClient(viper.GetString("api_url"))

	agent := runnerloop.AgentSpec{
		Command: viper.GetString("supervisor.agent"),
		Args:    agentArgs,
		Env:     agentEnv,
	}

	limits := scheduler.Limits{
		GlobalCap:          viper.GetInt("max_parallel"),
		MemoryThresholdPct: viper.GetFloat64("memory_threshold_pct"),
		DefaultWorkdir:     viper.GetString("default_workdir"),
	}

	pollInterval := time.Duration(viper.GetInt("poll_interval")) * time.Second
	projects := viper.GetStringSlice("projects")

	loop := runnerloop.New(store, sup, agent, nil, projects, limits, pollInterval, cancelGrace)

	if webhook := viper.GetString("notifications.slack.webhook_url"); webhook != "" {
		loop.Notifier = notify.NewNotifier(webhook)
	}

	lines := broadcaster.Subscribe("start-cmd")
	go func() {
		for rec := range lines {
			loop.RecordLog(fmt.Sprintf("[%s/%s] %s", rec.ProjectID, rec.TaskID, rec.Message))
		}
	}()

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	if viper.GetBool("no_tui") {
		select {
		case <-ctx.Done():
			return nil
		case err := <-done:
			return err
		}
	}

	snapshots := make(chan control.Snapshot)
	go pollSnapshots(ctx, loop, snapshots)

	if err := tui.Run(ctx, snapshots, loop.Commands()); err != nil {
		return err
	}
	cancel()
	<-done
	return nil
}

// pollSnapshots feeds the TUI a fresh control.Snapshot on every tick,
// without waiting for a CmdRefresh round trip.
func pollSnapshots(ctx context.Context, loop *runnerloop.Loop, out chan<- control.Snapshot) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(out)
			return
		case <-ticker.C:
			select {
			case out <- loop.Snapshot():
			default:
			}
		}
	}
}
