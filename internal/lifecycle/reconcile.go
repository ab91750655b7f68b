package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"

	"roboharbor/pkg/logging"
)

// ManagedWorkload is one pod the harbor is responsible for. Finished pods
// are included with their terminal phase.
type ManagedWorkload struct {
	Name      string          `json:"name"`
	Namespace string          `json:"namespace"`
	RobotID   string          `json:"robotId"`
	Phase     corev1.PodPhase `json:"phase"`
	Node      string          `json:"node,omitempty"`
	StartedAt time.Time       `json:"startedAt,omitempty"`
}

// Reconcile lists the pods of harbor-managed workloads in every namespace.
// It reads the cluster on every call and keeps no state between calls, so
// workloads submitted under an earlier namespace setting stay visible.
func (m *Manager) Reconcile(ctx context.Context) ([]ManagedWorkload, error) {
	pods, err := m.cluster.ListPods(ctx, "", ManagedSelector())
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	return FilterManaged(pods), nil
}

// FilterManaged keeps pods labelled controlledBy=roboharbor, sorted by
// namespace and name.
func FilterManaged(pods []corev1.Pod) []ManagedWorkload {
	out := make([]ManagedWorkload, 0, len(pods))
	for i := range pods {
		pod := &pods[i]
		if pod.Labels[LabelControlledBy] != ControllerName {
			continue
		}
		w := ManagedWorkload{
			Name:      pod.Name,
			Namespace: pod.Namespace,
			RobotID:   pod.Labels[LabelRobotID],
			Phase:     pod.Status.Phase,
			Node:      pod.Spec.NodeName,
		}
		if pod.Status.StartTime != nil {
			w.StartedAt = pod.Status.StartTime.Time
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Run scans once immediately and then on every reconcile interval until ctx
// is done. A tick that fires while a scan is still running is skipped.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.ReconcileInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	logging.Info(subsystem, "Reconciling managed workloads every %s", m.cfg.ReconcileInterval)
	m.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.scan(ctx)
			}()
		}
	}
}

// scan runs one reconciliation unless another is in progress. It reports
// whether a scan was performed.
func (m *Manager) scan(ctx context.Context) bool {
	if !m.scanning.CompareAndSwap(false, true) {
		logging.Debug(subsystem, "Previous reconcile scan still running, skipping tick")
		if m.metrics != nil {
			m.metrics.ReconcileScan(outcomeSkipped, 0, -1)
		}
		return false
	}
	defer m.scanning.Store(false)

	start := time.Now()
	workloads, err := m.Reconcile(ctx)
	elapsed := time.Since(start)

	if err != nil {
		logging.Error(subsystem, err, "Reconcile scan failed")
		if m.metrics != nil {
			m.metrics.ReconcileScan(outcomeFailure, elapsed, -1)
		}
		return true
	}

	logging.Debug(subsystem, "Reconcile scan found %d managed workloads in %s", len(workloads), elapsed)
	if m.metrics != nil {
		m.metrics.ReconcileScan(outcomeSuccess, elapsed, len(workloads))
	}
	return true
}
