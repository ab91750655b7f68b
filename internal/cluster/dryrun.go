package cluster

import (
	"context"
	"fmt"
	"io"
	"sync"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/yaml"

	"roboharbor/pkg/logging"
)

// DryRun prints manifests instead of submitting them. It never reports pods.
type DryRun struct {
	mu  sync.Mutex
	out io.Writer
}

var _ Client = (*DryRun)(nil)

// NewDryRun writes rendered manifests to out. A nil writer only logs them.
func NewDryRun(out io.Writer) *DryRun {
	return &DryRun{out: out}
}

// CreateJob implements Client.
func (d *DryRun) CreateJob(_ context.Context, job *batchv1.Job) error {
	job.APIVersion, job.Kind = "batch/v1", "Job"
	return d.emit("Job", job.Name, job)
}

// CreateDeployment implements Client.
func (d *DryRun) CreateDeployment(_ context.Context, deployment *appsv1.Deployment) error {
	deployment.APIVersion, deployment.Kind = "apps/v1", "Deployment"
	return d.emit("Deployment", deployment.Name, deployment)
}

// ListPods implements Client.
func (d *DryRun) ListPods(context.Context, string, map[string]string) ([]corev1.Pod, error) {
	return nil, nil
}

func (d *DryRun) emit(kind, name string, obj interface{}) error {
	data, err := yaml.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to render %s %s: %w", kind, name, err)
	}
	logging.Info(subsystem, "Dry run: not submitting %s %s", kind, name)
	logging.Debug(subsystem, "Dry run manifest:\n%s", data)

	if d.out == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err = fmt.Fprintf(d.out, "---\n%s", data)
	return err
}
