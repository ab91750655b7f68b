package lifecycle

import (
	"fmt"
	"sort"
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/ptr"
)

// Labels put on every workload and pod the harbor creates.
const (
	LabelControlledBy = "controlledBy"
	LabelRobotID      = "robotId"
	ControllerName    = "roboharbor"
	ContainerName     = "robot"
)

// Environment variables handed to every robot container.
const (
	EnvRobotID = "ROBO_ID"
	EnvHarbor  = "ROBO_HARBOR"
	EnvSecret  = "ROBO_SECRET"
	EnvPodName = "POD_NAME"
)

// Kind selects the workload type for a robot.
type Kind string

const (
	KindJob        Kind = "job"
	KindDeployment Kind = "deployment"
)

// ParseKind accepts "job" or "deployment".
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindJob, KindDeployment:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown workload kind %q (expected job or deployment)", s)
	}
}

// ManifestOptions carries the cluster-wide settings baked into manifests.
type ManifestOptions struct {
	Namespace     string
	HarborAddress string
	Secret        string
	ExtraEnv      map[string]string
}

// ManagedSelector selects everything the harbor created.
func ManagedSelector() map[string]string {
	return map[string]string{LabelControlledBy: ControllerName}
}

// Labels returns the label set for robot's workload.
func Labels(robot Robot) map[string]string {
	return map[string]string{
		LabelControlledBy: ControllerName,
		LabelRobotID:      strconv.FormatInt(robot.ID, 10),
	}
}

// BuildJob renders the run-to-completion workload for robot.
func BuildJob(robot Robot, image string, opts ManifestOptions) *batchv1.Job {
	labels := Labels(robot)
	spec := podSpec(robot, image, opts)
	spec.RestartPolicy = corev1.RestartPolicyNever

	return &batchv1.Job{
		TypeMeta: metav1.TypeMeta{APIVersion: "batch/v1", Kind: "Job"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      robot.Identifier,
			Namespace: opts.Namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			Parallelism:  ptr.To[int32](1),
			Completions:  ptr.To[int32](1),
			BackoffLimit: ptr.To[int32](0),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: copyLabels(labels)},
				Spec:       spec,
			},
		},
	}
}

// BuildDeployment renders the self-healing workload for robot.
func BuildDeployment(robot Robot, image string, opts ManifestOptions) *appsv1.Deployment {
	labels := Labels(robot)
	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      robot.Identifier,
			Namespace: opts.Namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To[int32](1),
			Selector: &metav1.LabelSelector{MatchLabels: copyLabels(labels)},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: copyLabels(labels)},
				Spec:       podSpec(robot, image, opts),
			},
		},
	}
}

// BuildManifest renders the workload of the given kind.
func BuildManifest(kind Kind, robot Robot, image string, opts ManifestOptions) (runtime.Object, error) {
	switch kind {
	case KindJob:
		return BuildJob(robot, image, opts), nil
	case KindDeployment:
		return BuildDeployment(robot, image, opts), nil
	default:
		return nil, fmt.Errorf("unknown workload kind %q", kind)
	}
}

func podSpec(robot Robot, image string, opts ManifestOptions) corev1.PodSpec {
	return corev1.PodSpec{
		Containers: []corev1.Container{{
			Name:  ContainerName,
			Image: image,
			Env:   robotEnv(robot, opts),
		}},
	}
}

func robotEnv(robot Robot, opts ManifestOptions) []corev1.EnvVar {
	env := []corev1.EnvVar{
		{Name: EnvRobotID, Value: robot.Identifier},
		{Name: EnvHarbor, Value: opts.HarborAddress},
		{Name: EnvSecret, Value: opts.Secret},
		{Name: EnvPodName, ValueFrom: &corev1.EnvVarSource{
			FieldRef: &corev1.ObjectFieldSelector{FieldPath: "metadata.name"},
		}},
	}

	names := make([]string, 0, len(opts.ExtraEnv))
	for name := range opts.ExtraEnv {
		switch name {
		case EnvRobotID, EnvHarbor, EnvSecret, EnvPodName:
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		env = append(env, corev1.EnvVar{Name: name, Value: opts.ExtraEnv[name]})
	}
	return env
}

func copyLabels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
