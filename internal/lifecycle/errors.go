package lifecycle

import (
	"errors"
	"fmt"

	"roboharbor/internal/catalog"
)

var (
	// ErrImageNotFound is returned when a robot declares an image the catalog does not know.
	ErrImageNotFound = catalog.ErrImageNotFound
	// ErrNoResponse is returned when a validation exchange gets no usable reply.
	ErrNoResponse = errors.New("robot did not respond")
	// ErrInvalidRobot is returned for descriptors that cannot become a workload.
	ErrInvalidRobot = errors.New("invalid robot")
)

// ClusterSubmitError reports a workload the cluster API refused.
type ClusterSubmitError struct {
	Kind string
	Name string
	Err  error
}

func (e *ClusterSubmitError) Error() string {
	return fmt.Sprintf("failed to submit %s %s: %v", e.Kind, e.Name, e.Err)
}

func (e *ClusterSubmitError) Unwrap() error {
	return e.Err
}

// ValidationFailedError is a robot-reported validation failure.
type ValidationFailedError struct {
	RobotID string
	Reason  string
}

func (e *ValidationFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("robot %s failed validation", e.RobotID)
	}
	return fmt.Sprintf("robot %s failed validation: %s", e.RobotID, e.Reason)
}
