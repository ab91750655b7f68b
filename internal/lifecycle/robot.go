package lifecycle

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation"
)

// Image is the runtime a robot declares.
type Image struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

// Robot describes one robot to run.
type Robot struct {
	ID         int64                  `yaml:"id" json:"id"`
	Identifier string                 `yaml:"identifier" json:"identifier"`
	Image      Image                  `yaml:"image" json:"image"`
	Config     map[string]interface{} `yaml:"config,omitempty" json:"config,omitempty"`
}

// Validate checks that the robot can be turned into a workload.
func (r Robot) Validate() error {
	if r.Identifier == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidRobot)
	}
	if errs := validation.IsDNS1123Subdomain(r.Identifier); len(errs) > 0 {
		return fmt.Errorf("%w: identifier %q: %s", ErrInvalidRobot, r.Identifier, strings.Join(errs, "; "))
	}
	if strings.TrimSpace(r.Image.Name) == "" {
		return fmt.Errorf("%w: image name is required", ErrInvalidRobot)
	}
	if r.ID < 0 {
		return fmt.Errorf("%w: id must not be negative", ErrInvalidRobot)
	}
	return nil
}

// LoadRobot reads a robot descriptor from a YAML or JSON file.
func LoadRobot(path string) (Robot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Robot{}, fmt.Errorf("failed to read robot %s: %w", path, err)
	}
	var robot Robot
	if err := yaml.Unmarshal(data, &robot); err != nil {
		return Robot{}, fmt.Errorf("failed to parse robot %s: %w", path, err)
	}
	if err := robot.Validate(); err != nil {
		return Robot{}, err
	}
	return robot, nil
}

// Result describes a started workload. PodID is only set once the robot has
// registered.
type Result struct {
	WorkloadName string `json:"workloadName"`
	RobotID      string `json:"robotId"`
	PodID        string `json:"podId,omitempty"`
}

// ValidationResult is the robot's verdict on its own configuration.
type ValidationResult struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`

	robotID string
}

// Err returns a *ValidationFailedError for rejected configurations and nil
// otherwise.
func (v ValidationResult) Err() error {
	if v.Accepted {
		return nil
	}
	return &ValidationFailedError{RobotID: v.robotID, Reason: v.Error}
}
