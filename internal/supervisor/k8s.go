package supervisor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// k8sBackend runs each task as a Kubernetes Job, one per TaskID, in a fixed
// namespace and image. Cancellation deletes the Job; TTLSecondsAfterFinished
// reaps completed ones so the cluster doesn't accumulate stale Jobs.
type k8sBackend struct {
	client     kubernetes.Interface
	namespace  string
	image      string
	pullPolicy corev1.PullPolicy
}

// NewK8sBackend returns a Backend that dispatches one Job per task.
func NewK8sBackend(client kubernetes.Interface, namespace, image string, pullPolicy corev1.PullPolicy) Backend {
	if namespace == "" {
		namespace = "default"
	}
	return &k8sBackend{client: client, namespace: namespace, image: image, pullPolicy: pullPolicy}
}

func (b *k8sBackend) Start(ctx context.Context, spec Spec, onLine func(line string)) (Handle, error) {
	jobName := fmt.Sprintf("brain-task-%s", sanitizeK8sName(spec.TaskID))

	ttl := int32(3600)
	backoff := int32(0)

	var envVars []corev1.EnvVar
	for _, kv := range spec.Env {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		envVars = append(envVars, corev1.EnvVar{Name: parts[0], Value: parts[1]})
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: jobName},
		Spec: batchv1.JobSpec{
			TTLSecondsAfterFinished: &ttl,
			BackoffLimit:            &backoff,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{"app": "brain-agent", "task": spec.TaskID},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:            "agent",
							Image:           b.image,
							ImagePullPolicy: b.pullPolicy,
							Command:         append([]string{spec.Agent}, spec.Args...),
							Env:             envVars,
							WorkingDir:      "/workspace",
							VolumeMounts: []corev1.VolumeMount{
								{Name: "workspace", MountPath: "/workspace"},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name:         "workspace",
							VolumeSource: corev1.VolumeSource{HostPath: &corev1.HostPathVolumeSource{Path: spec.Workdir}},
						},
					},
				},
			},
		},
	}

	if _, err := b.client.BatchV1().Jobs(b.namespace).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return Handle{}, fmt.Errorf("create job: %w", err)
	}
	if onLine != nil {
		onLine(fmt.Sprintf("job %s created in namespace %s", jobName, b.namespace))
	}

	return Handle{ID: jobName}, nil
}

// Signal deletes the Job in the background, giving pods a grace period to
// terminate cleanly.
func (b *k8sBackend) Signal(ctx context.Context, h Handle) error {
	policy := metav1.DeletePropagationBackground
	return b.client.BatchV1().Jobs(b.namespace).Delete(ctx, h.ID, metav1.DeleteOptions{PropagationPolicy: &policy})
}

// Kill deletes the Job immediately, with its pods foreground-deleted too.
func (b *k8sBackend) Kill(ctx context.Context, h Handle) error {
	policy := metav1.DeletePropagationForeground
	grace := int64(0)
	return b.client.BatchV1().Jobs(b.namespace).Delete(ctx, h.ID, metav1.DeleteOptions{
		PropagationPolicy:  &policy,
		GracePeriodSeconds: &grace,
	})
}

func (b *k8sBackend) Wait(ctx context.Context, h Handle) Result {
	for {
		job, err := b.client.BatchV1().Jobs(b.namespace).Get(ctx, h.ID, metav1.GetOptions{})
		if err != nil {
			return Result{ExitCode: -1, Err: fmt.Errorf("get job %s: %w", h.ID, err)}
		}
		if job.Status.Succeeded > 0 {
			return Result{ExitCode: 0}
		}
		if job.Status.Failed > 0 {
			return Result{ExitCode: 1, Err: fmt.Errorf("job %s failed", h.ID)}
		}
		select {
		case <-ctx.Done():
			return Result{TimedOut: true, Err: ctx.Err()}
		case <-time.After(2 * time.Second):
		}
	}
}

var k8sNameSanitizerRegex = regexp.MustCompile("[^a-z0-9]+")

func sanitizeK8sName(name string) string {
	name = strings.ToLower(name)
	name = k8sNameSanitizerRegex.ReplaceAllString(name, "-")
	return strings.Trim(name, "-")
}
