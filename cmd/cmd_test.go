package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"

	"roboharbor/internal/broker"
	"roboharbor/internal/catalog"
	"roboharbor/internal/config"
	"roboharbor/internal/lifecycle"
)

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"generic", errors.New("boom"), ExitCodeError},
		{"config", fmt.Errorf("load: %w", config.NewConfigurationError("x", "parse", "bad")), ExitCodeConfig},
		{"registration timeout", fmt.Errorf("job: %w", broker.ErrRegistrationTimeout), ExitCodeTimeout},
		{"no response", lifecycle.ErrNoResponse, ExitCodeTimeout},
		{"rejected", &lifecycle.ValidationFailedError{RobotID: "bot-1", Reason: "missing config"}, ExitCodeRejected},
		{"submit", &lifecycle.ClusterSubmitError{Kind: "Job", Name: "bot-1", Err: errors.New("exists")}, ExitCodeSubmit},
		{"image", fmt.Errorf("%w: cobol", lifecycle.ErrImageNotFound), ExitCodeSubmit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}

func TestVersionCommand(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()
	rootCmd.Version = "1.2.3-test"

	c := newVersionCmd()
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.Run(c, nil)
	assert.Equal(t, "roboharbor version 1.2.3-test\n", buf.String())
}

func TestRunOptions_Check(t *testing.T) {
	assert.NoError(t, (&runOptions{}).check())
	assert.NoError(t, (&runOptions{persistent: true, noWait: true}).check())
	assert.Error(t, (&runOptions{noWait: true}).check())
	assert.Error(t, (&runOptions{validate: true, persistent: true}).check())
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, lifecycle.Result{WorkloadName: "bot-1", RobotID: "bot-1", PodID: "pod-123"})
	assert.Contains(t, buf.String(), "workload: bot-1")
	assert.Contains(t, buf.String(), "pod:      pod-123")

	buf.Reset()
	printResult(&buf, lifecycle.Result{WorkloadName: "bot-1", RobotID: "bot-1"})
	assert.NotContains(t, buf.String(), "pod:")
}

func TestRenderWorkloads(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	workloads := []lifecycle.ManagedWorkload{{
		Name:      "bot-1-abc",
		Namespace: "robots",
		RobotID:   "7",
		Phase:     corev1.PodRunning,
		Node:      "node-a",
		StartedAt: now.Add(-90 * time.Minute),
	}}

	var buf bytes.Buffer
	require.NoError(t, renderWorkloads(&buf, workloads, "table", now))
	out := buf.String()
	assert.Contains(t, out, "ROBOT ID")
	assert.Contains(t, out, "bot-1-abc")
	assert.Contains(t, out, "Running")
	assert.Contains(t, out, "90m")

	buf.Reset()
	require.NoError(t, renderWorkloads(&buf, workloads, "json", now))
	assert.Contains(t, buf.String(), `"robotId": "7"`)

	buf.Reset()
	require.NoError(t, renderWorkloads(&buf, nil, "table", now))
	assert.Contains(t, buf.String(), "No managed robots found")

	assert.Error(t, renderWorkloads(&buf, nil, "xml", now))
}

func TestManifestCommand(t *testing.T) {
	dir := t.TempDir()
	robotPath := filepath.Join(dir, "robot.yaml")
	require.NoError(t, os.WriteFile(robotPath, []byte("id: 5\nidentifier: bot-5\nimage:\n  name: node\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("namespace: robots\n"), 0o600))

	originalPath := configPath
	defer func() { configPath = originalPath }()
	configPath = dir

	c := newManifestCmd()
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetContext(context.Background())
	require.NoError(t, c.Flags().Set("kind", "deployment"))
	require.NoError(t, c.RunE(c, []string{robotPath}))

	out := buf.String()
	assert.Contains(t, out, "kind: Deployment")
	assert.Contains(t, out, "name: bot-5")
	assert.Contains(t, out, "namespace: robots")
	assert.Contains(t, out, "controlledBy: roboharbor")
	assert.Contains(t, out, "image: roboharbor/runner-node:1.0.5")
}

func TestImagesCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
catalog:
  images:
    - name: ruby
      containerReference: example/runner-ruby
      version: "3.3"
`), 0o600))

	originalPath := configPath
	defer func() { configPath = originalPath }()
	configPath = dir

	c := newImagesCmd()
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetContext(context.Background())
	require.NoError(t, c.Flags().Set("output", "json"))
	require.NoError(t, c.RunE(c, nil))

	var images []catalog.Image
	require.NoError(t, json.Unmarshal(buf.Bytes(), &images))
	names := make([]string, 0, len(images))
	for _, img := range images {
		names = append(names, img.Name)
	}
	assert.Equal(t, []string{"node", "python", "ruby", "shell", "validate-robot"}, names)
	assert.Equal(t, "example/runner-ruby:3.3", images[2].Reference())
}

func TestRenderImages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderImages(&buf, catalog.DefaultImages(), "table"))
	assert.Contains(t, buf.String(), "roboharbor/runner-shell:1.0.9")

	buf.Reset()
	require.NoError(t, renderImages(&buf, nil, "table"))
	assert.Contains(t, buf.String(), "No images found")

	assert.Error(t, renderImages(&buf, nil, "xml"))
}

func TestManifestCommand_UnknownKind(t *testing.T) {
	c := newManifestCmd()
	require.NoError(t, c.Flags().Set("kind", "cronjob"))
	assert.Error(t, c.RunE(c, []string{"robot.yaml"}))
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "run", "list", "manifest", "images", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
