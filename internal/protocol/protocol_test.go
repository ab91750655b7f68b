package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHello(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    Hello
		wantErr error
	}{
		{
			name:  "valid handshake",
			frame: `{"type":"register","robotId":" bot-1 ","podId":"pod-123","secret":"s3"}`,
			want:  Hello{RobotID: "bot-1", PodID: "pod-123", Secret: "s3"},
		},
		{
			name:    "wrong type",
			frame:   `{"type":"response","robotId":"bot-1"}`,
			wantErr: ErrInvalidHandshake,
		},
		{
			name:    "missing robot id",
			frame:   `{"type":"register","podId":"pod-1"}`,
			wantErr: ErrInvalidHandshake,
		},
		{
			name:    "not json",
			frame:   `hello`,
			wantErr: ErrMalformed,
		},
		{
			name:    "missing type",
			frame:   `{"robotId":"bot-1"}`,
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeHello([]byte(tt.frame))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewValidateRequest(t *testing.T) {
	env, err := NewValidateRequest(map[string]interface{}{"command": "echo hi"})
	require.NoError(t, err)
	assert.Equal(t, TypeValidate, env.Type)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "echo hi", payload["command"])
}

func TestEnvelope_Reply(t *testing.T) {
	env, err := Decode([]byte(`{"type":"response","success":false,"error":"missing config"}`))
	require.NoError(t, err)
	assert.Equal(t, Reply{Success: false, Error: "missing config"}, env.Reply())

	env, err = Decode([]byte(`{"type":"response","success":true}`))
	require.NoError(t, err)
	assert.True(t, env.Reply().Success)

	// An absent success flag never counts as success.
	env, err = Decode([]byte(`{"type":"response"}`))
	require.NoError(t, err)
	assert.False(t, env.Reply().Success)
}

func TestEnvelope_IsReply(t *testing.T) {
	assert.False(t, Envelope{Type: TypeRegister}.IsReply())
	assert.False(t, Envelope{Type: TypeRegistered}.IsReply())
	assert.True(t, Envelope{Type: TypeResponse}.IsReply())
}

func TestEncodeOmitsEmptyFields(t *testing.T) {
	data, err := Encode(NewRegistered("bot-1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"registered","robotId":"bot-1"}`, string(data))
}
