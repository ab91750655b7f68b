// Package lifecycle turns robot descriptors into Kubernetes workloads and
// follows them until the robot process registers with the harbor.
//
// Ephemeral runs and validations become Jobs that never restart; persistent
// robots become single-replica Deployments. Every workload carries the
// controlledBy and robotId labels, which is all Reconcile needs to rebuild
// its view of the cluster after a restart.
package lifecycle
