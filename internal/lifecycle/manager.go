package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"k8s.io/apimachinery/pkg/runtime"

	"roboharbor/internal/broker"
	"roboharbor/internal/catalog"
	"roboharbor/internal/cluster"
	"roboharbor/internal/protocol"
	"roboharbor/pkg/logging"
)

const subsystem = "Lifecycle"

// Defaults applied by NewManager when the corresponding Config field is zero.
const (
	DefaultValidationImage   = "validate-robot"
	DefaultReconcileInterval = 20 * time.Second
)

// Orchestration kinds reported to the metrics recorder.
const (
	metricKindJob        = "job"
	metricKindDeployment = "deployment"
	metricKindValidation = "validation"
)

// Outcome labels, matching those exported by the metrics package.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeTimeout = "timeout"
	outcomeSkipped = "skipped"
)

// Recorder receives orchestration and reconciliation metrics.
// *metrics.Recorder satisfies it.
type Recorder interface {
	Orchestration(kind, outcome string)
	ReconcileScan(outcome string, duration time.Duration, managed int)
}

// Config holds the settings a Manager needs.
type Config struct {
	Namespace           string
	HarborAddress       string
	Secret              string
	RobotEnv            map[string]string
	ValidationImage     string
	RegistrationTimeout time.Duration
	ResponseTimeout     time.Duration
	ReconcileInterval   time.Duration
}

// Manager starts robot workloads and waits for the robots to check in.
type Manager struct {
	cluster cluster.Client
	images  catalog.Finder
	broker  *broker.Broker
	cfg     Config
	metrics Recorder

	scanning atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics reports orchestration outcomes and scans to rec.
func WithMetrics(rec Recorder) Option {
	return func(m *Manager) {
		m.metrics = rec
	}
}

// NewManager creates a manager. Zero timeouts fall back to the broker defaults.
func NewManager(c cluster.Client, images catalog.Finder, b *broker.Broker, cfg Config, opts ...Option) *Manager {
	if cfg.ValidationImage == "" {
		cfg.ValidationImage = DefaultValidationImage
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = DefaultReconcileInterval
	}
	if cfg.RegistrationTimeout <= 0 {
		cfg.RegistrationTimeout = broker.DefaultRegistrationTimeout
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = broker.DefaultResponseTimeout
	}
	m := &Manager{cluster: c, images: images, broker: b, cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartEphemeral runs robot as a Job and waits for it to register. On a
// registration timeout the Job stays on the cluster.
func (m *Manager) StartEphemeral(ctx context.Context, robot Robot) (Result, error) {
	res, err := m.startEphemeral(ctx, robot)
	m.recordOrchestration(metricKindJob, err)
	return res, err
}

func (m *Manager) startEphemeral(ctx context.Context, robot Robot) (Result, error) {
	if err := robot.Validate(); err != nil {
		return Result{}, err
	}
	image, err := m.resolveImage(ctx, robot.Image)
	if err != nil {
		return Result{}, err
	}
	job := BuildJob(robot, image, m.manifestOptions())

	wait, err := m.broker.ExpectRegistration(robot.Identifier)
	if err != nil {
		return Result{}, err
	}
	if err := m.cluster.CreateJob(ctx, job); err != nil {
		wait.Cancel()
		return Result{}, &ClusterSubmitError{Kind: "Job", Name: job.Name, Err: err}
	}
	logging.Info(subsystem, "Submitted job %s with image %s", job.Name, image)

	return m.awaitRegistration(ctx, wait, job.Name, robot)
}

// StartPersistent runs robot as a Deployment. Without waitForRegistration it
// returns as soon as the cluster accepted the Deployment.
func (m *Manager) StartPersistent(ctx context.Context, robot Robot, waitForRegistration bool) (Result, error) {
	res, err := m.startPersistent(ctx, robot, waitForRegistration)
	m.recordOrchestration(metricKindDeployment, err)
	return res, err
}

func (m *Manager) startPersistent(ctx context.Context, robot Robot, waitForRegistration bool) (Result, error) {
	if err := robot.Validate(); err != nil {
		return Result{}, err
	}
	image, err := m.resolveImage(ctx, robot.Image)
	if err != nil {
		return Result{}, err
	}
	deployment := BuildDeployment(robot, image, m.manifestOptions())

	var wait *broker.RegistrationWait
	if waitForRegistration {
		wait, err = m.broker.ExpectRegistration(robot.Identifier)
		if err != nil {
			return Result{}, err
		}
	}
	if err := m.cluster.CreateDeployment(ctx, deployment); err != nil {
		if wait != nil {
			wait.Cancel()
		}
		return Result{}, &ClusterSubmitError{Kind: "Deployment", Name: deployment.Name, Err: err}
	}
	logging.Info(subsystem, "Submitted deployment %s with image %s", deployment.Name, image)

	if wait == nil {
		return Result{WorkloadName: deployment.Name, RobotID: robot.Identifier}, nil
	}
	return m.awaitRegistration(ctx, wait, deployment.Name, robot)
}

func (m *Manager) awaitRegistration(ctx context.Context, wait *broker.RegistrationWait, workload string, robot Robot) (Result, error) {
	res := Result{WorkloadName: workload, RobotID: robot.Identifier}
	reg, err := wait.Wait(ctx, m.cfg.RegistrationTimeout)
	if err != nil {
		return res, fmt.Errorf("workload %s: %w", workload, err)
	}
	res.PodID = reg.PodID
	logging.Info(subsystem, "Robot %s registered from pod %s", robot.Identifier, reg.PodID)
	return res, nil
}

// Validate runs robot with the validation image and asks it to check its
// configuration. A robot-reported rejection is a result, not an error; a
// reply without a success flag counts as accepted.
func (m *Manager) Validate(ctx context.Context, robot Robot) (ValidationResult, error) {
	res, err := m.validate(ctx, robot)
	m.recordOrchestration(metricKindValidation, err)
	return res, err
}

func (m *Manager) validate(ctx context.Context, robot Robot) (ValidationResult, error) {
	probe := robot
	probe.Image = Image{Name: m.cfg.ValidationImage}

	if _, err := m.startEphemeral(ctx, probe); err != nil {
		return ValidationResult{}, err
	}

	req, err := protocol.NewValidateRequest(robot.Config)
	if err != nil {
		return ValidationResult{}, err
	}
	reply, err := m.broker.SendAndAwait(ctx, robot.Identifier, req, m.cfg.ResponseTimeout)
	if err != nil {
		if errors.Is(err, broker.ErrResponseTimeout) {
			return ValidationResult{}, fmt.Errorf("%w to validation of %s: %w", ErrNoResponse, robot.Identifier, err)
		}
		return ValidationResult{}, err
	}

	// Only an explicit success=false is a rejection.
	result := ValidationResult{Accepted: true, robotID: robot.Identifier}
	if reply.Success != nil && !*reply.Success {
		result.Accepted = false
		result.Error = reply.Error
		logging.Info(subsystem, "Robot %s rejected its configuration: %s", robot.Identifier, reply.Error)
	}
	return result, nil
}

// RenderManifest builds the manifest StartEphemeral or StartPersistent would
// submit, without touching the cluster.
func (m *Manager) RenderManifest(ctx context.Context, robot Robot, kind Kind) (runtime.Object, error) {
	if err := robot.Validate(); err != nil {
		return nil, err
	}
	image, err := m.resolveImage(ctx, robot.Image)
	if err != nil {
		return nil, err
	}
	return BuildManifest(kind, robot, image, m.manifestOptions())
}

// resolveImage maps a declared image to a full reference. A version on the
// robot takes precedence over the catalog's.
func (m *Manager) resolveImage(ctx context.Context, declared Image) (string, error) {
	img, err := m.images.FindImage(ctx, declared.Name)
	if err != nil {
		return "", err
	}
	if v := strings.TrimSpace(declared.Version); v != "" {
		img.Version = v
	}
	return img.Reference(), nil
}

func (m *Manager) manifestOptions() ManifestOptions {
	return ManifestOptions{
		Namespace:     m.cfg.Namespace,
		HarborAddress: m.cfg.HarborAddress,
		Secret:        m.cfg.Secret,
		ExtraEnv:      m.cfg.RobotEnv,
	}
}

func (m *Manager) recordOrchestration(kind string, err error) {
	if m.metrics == nil {
		return
	}
	outcome := outcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, broker.ErrRegistrationTimeout), errors.Is(err, ErrNoResponse):
		outcome = outcomeTimeout
	default:
		outcome = outcomeFailure
	}
	m.metrics.Orchestration(kind, outcome)
}
