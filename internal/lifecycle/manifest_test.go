package lifecycle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
)

var testOpts = ManifestOptions{
	Namespace:     "robots",
	HarborAddress: "roboharbor:5001",
	Secret:        "s3cret",
	ExtraEnv:      map[string]string{"ZONE": "eu", "API_URL": "http://api", "ROBO_ID": "ignored"},
}

func envNames(env []corev1.EnvVar) []string {
	names := make([]string, len(env))
	for i, e := range env {
		names[i] = e.Name
	}
	return names
}

func TestBuildJob(t *testing.T) {
	robot := Robot{ID: 42, Identifier: "bot-42", Image: Image{Name: "shell"}}
	job := BuildJob(robot, "reg/shell:1.0", testOpts)

	assert.Equal(t, "bot-42", job.Name)
	assert.Equal(t, "robots", job.Namespace)
	assert.Equal(t, map[string]string{"controlledBy": "roboharbor", "robotId": "42"}, job.Labels)
	assert.Equal(t, job.Labels, job.Spec.Template.Labels)

	assert.Equal(t, int32(1), *job.Spec.Parallelism)
	assert.Equal(t, int32(1), *job.Spec.Completions)
	assert.Equal(t, int32(0), *job.Spec.BackoffLimit)
	assert.Equal(t, corev1.RestartPolicyNever, job.Spec.Template.Spec.RestartPolicy)

	require.Len(t, job.Spec.Template.Spec.Containers, 1)
	c := job.Spec.Template.Spec.Containers[0]
	assert.Equal(t, "robot", c.Name)
	assert.Equal(t, "reg/shell:1.0", c.Image)
	assert.Equal(t, []string{"ROBO_ID", "ROBO_HARBOR", "ROBO_SECRET", "POD_NAME", "API_URL", "ZONE"}, envNames(c.Env))
	assert.Equal(t, "bot-42", c.Env[0].Value)
	assert.Equal(t, "metadata.name", c.Env[3].ValueFrom.FieldRef.FieldPath)
}

func TestBuildDeployment(t *testing.T) {
	robot := Robot{ID: 3, Identifier: "bot-3", Image: Image{Name: "node"}}
	d := BuildDeployment(robot, "reg/node:latest", testOpts)

	assert.Equal(t, "bot-3", d.Name)
	assert.Equal(t, int32(1), *d.Spec.Replicas)
	assert.Equal(t, d.Labels, d.Spec.Selector.MatchLabels)
	assert.Equal(t, d.Labels, d.Spec.Template.Labels)
	assert.Equal(t, "3", d.Labels[LabelRobotID])
	assert.Empty(t, d.Spec.Template.Spec.RestartPolicy)

	d.Spec.Selector.MatchLabels["extra"] = "x"
	assert.NotContains(t, d.Labels, "extra")
}

func TestBuildManifest(t *testing.T) {
	robot := Robot{ID: 1, Identifier: "bot-1", Image: Image{Name: "shell"}}

	obj, err := BuildManifest(KindJob, robot, "img", testOpts)
	require.NoError(t, err)
	assert.IsType(t, &batchv1.Job{}, obj)

	obj, err = BuildManifest(KindDeployment, robot, "img", testOpts)
	require.NoError(t, err)
	assert.IsType(t, &appsv1.Deployment{}, obj)

	_, err = BuildManifest("cronjob", robot, "img", testOpts)
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("deployment")
	require.NoError(t, err)
	assert.Equal(t, KindDeployment, k)

	_, err = ParseKind("pod")
	assert.Error(t, err)
}

func TestRobot_Validate(t *testing.T) {
	tests := []struct {
		name    string
		robot   Robot
		wantErr bool
	}{
		{"valid", Robot{ID: 1, Identifier: "bot-1", Image: Image{Name: "shell"}}, false},
		{"missing identifier", Robot{Image: Image{Name: "shell"}}, true},
		{"uppercase identifier", Robot{Identifier: "Bot", Image: Image{Name: "shell"}}, true},
		{"missing image", Robot{Identifier: "bot-1"}, true},
		{"negative id", Robot{ID: -1, Identifier: "bot-1", Image: Image{Name: "shell"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.robot.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRobot)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadRobot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
id: 12
identifier: weather-bot
image:
  name: python
  version: "3.1"
config:
  city: Berlin
  retries: 3
`), 0o600))

	robot, err := LoadRobot(path)
	require.NoError(t, err)
	assert.Equal(t, int64(12), robot.ID)
	assert.Equal(t, "weather-bot", robot.Identifier)
	assert.Equal(t, Image{Name: "python", Version: "3.1"}, robot.Image)
	assert.Equal(t, "Berlin", robot.Config["city"])
}

func TestLoadRobot_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id": 1, "identifier": "bot-1", "image": {"name": "node"}}`), 0o600))

	robot, err := LoadRobot(path)
	require.NoError(t, err)
	assert.Equal(t, "node", robot.Image.Name)
}
