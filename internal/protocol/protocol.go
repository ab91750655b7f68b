package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies the purpose of an Envelope.
type MessageType string

const (
	// TypeRegister is the handshake a robot sends as its first frame.
	TypeRegister MessageType = "register"
	// TypeRegistered acknowledges an accepted handshake.
	TypeRegistered MessageType = "registered"
	// TypeValidate asks a robot to validate its configuration.
	TypeValidate MessageType = "validate"
	// TypeResponse carries a robot's reply to a request.
	TypeResponse MessageType = "response"
	// TypeError is sent by the harbor before closing a rejected connection.
	TypeError MessageType = "error"
)

var (
	// ErrMalformed is returned when a frame cannot be decoded.
	ErrMalformed = errors.New("malformed message")
	// ErrInvalidHandshake is returned when the first frame is not a usable registration.
	ErrInvalidHandshake = errors.New("invalid handshake")
)

// Envelope is the single JSON frame exchanged between harbor and robots.
//
// CorrelationID is generated by the harbor for every request and must be echoed
// in the robot's response. Older robots that omit it are still served as long as
// they only ever have one request in flight.
type Envelope struct {
	Type          MessageType     `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	RobotID       string          `json:"robotId,omitempty"`
	PodID         string          `json:"podId,omitempty"`
	Secret        string          `json:"secret,omitempty"`
	Success       *bool           `json:"success,omitempty"`
	Error         string          `json:"error,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Hello is the decoded handshake of a connecting robot.
type Hello struct {
	RobotID string
	PodID   string
	Secret  string
}

// Reply is the interpreted result of a robot response.
type Reply struct {
	Success bool
	Error   string
	PodID   string
}

// Encode serialises an envelope to its wire form.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", env.Type, err)
	}
	return data, nil
}

// Decode parses a wire frame.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// DecodeHello parses and checks a handshake frame.
func DecodeHello(data []byte) (Hello, error) {
	env, err := Decode(data)
	if err != nil {
		return Hello{}, err
	}
	if env.Type != TypeRegister {
		return Hello{}, fmt.Errorf("%w: expected %q, got %q", ErrInvalidHandshake, TypeRegister, env.Type)
	}
	robotID := strings.TrimSpace(env.RobotID)
	if robotID == "" {
		return Hello{}, fmt.Errorf("%w: robotId is required", ErrInvalidHandshake)
	}
	return Hello{RobotID: robotID, PodID: env.PodID, Secret: env.Secret}, nil
}

// NewValidateRequest builds the validation request for a robot configuration.
func NewValidateRequest(config map[string]interface{}) (Envelope, error) {
	payload, err := json.Marshal(config)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode robot config: %w", err)
	}
	return Envelope{Type: TypeValidate, Payload: payload}, nil
}

// NewRegistered builds the handshake acknowledgement.
func NewRegistered(robotID string) Envelope {
	return Envelope{Type: TypeRegistered, RobotID: robotID}
}

// NewError builds an error frame.
func NewError(msg string) Envelope {
	return Envelope{Type: TypeError, Error: msg}
}

// IsReply reports whether the envelope can answer a pending request.
// Handshake frames are never replies.
func (e Envelope) IsReply() bool {
	switch e.Type {
	case TypeRegister, TypeRegistered:
		return false
	default:
		return true
	}
}

// Reply interprets the envelope as a response. A missing success flag is read as
// a failure so that a robot cannot accidentally report success by omission.
func (e Envelope) Reply() Reply {
	return Reply{
		Success: e.Success != nil && *e.Success,
		Error:   e.Error,
		PodID:   e.PodID,
	}
}

// Bool returns a pointer to b, for building envelopes.
func Bool(b bool) *bool {
	return &b
}
