// Package cluster submits robot workloads to Kubernetes and lists the pods
// they run in.
package cluster

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"roboharbor/pkg/logging"
)

const subsystem = "Cluster"

// Client is the subset of the cluster API the harbor needs.
type Client interface {
	CreateJob(ctx context.Context, job *batchv1.Job) error
	CreateDeployment(ctx context.Context, deployment *appsv1.Deployment) error
	ListPods(ctx context.Context, namespace string, labels map[string]string) ([]corev1.Pod, error)
}

// Scheme returns a runtime scheme with the built-in Kubernetes types.
func Scheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	return scheme
}

// Kube talks to a real API server through controller-runtime.
type Kube struct {
	client client.Client
}

var _ Client = (*Kube)(nil)

// NewKube wraps an existing controller-runtime client.
func NewKube(c client.Client) *Kube {
	return &Kube{client: c}
}

// Connect builds a client from the in-cluster config or the local kubeconfig.
func Connect() (*Kube, error) {
	cfg, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load Kubernetes config: %w", err)
	}
	c, err := client.New(cfg, client.Options{Scheme: Scheme()})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	logging.Debug(subsystem, "Connected to Kubernetes API at %s", cfg.Host)
	return NewKube(c), nil
}

// CreateJob submits a Job.
func (k *Kube) CreateJob(ctx context.Context, job *batchv1.Job) error {
	return k.client.Create(ctx, job)
}

// CreateDeployment submits a Deployment.
func (k *Kube) CreateDeployment(ctx context.Context, deployment *appsv1.Deployment) error {
	return k.client.Create(ctx, deployment)
}

// ListPods returns the pods in namespace matching all labels.
func (k *Kube) ListPods(ctx context.Context, namespace string, labels map[string]string) ([]corev1.Pod, error) {
	var pods corev1.PodList
	opts := []client.ListOption{client.MatchingLabels(labels)}
	if namespace != "" {
		opts = append(opts, client.InNamespace(namespace))
	}
	if err := k.client.List(ctx, &pods, opts...); err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}
	return pods.Items, nil
}
