package proto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInboundJoinSession(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"event":"join-session","data":{"userName":"Alice"}}`), Limits{})
	require.NoError(t, err)

	req, ok := in.(JoinSessionRequest)
	require.True(t, ok)
	assert.Equal(t, "Alice", req.UserName)
}

func TestDecodeInboundWithoutData(t *testing.T) {
	for _, raw := range []string{
		`{"event":"request-users-list"}`,
		`{"event":"leave-session","data":null}`,
		`{"event":"stop-video-stream"}`,
	} {
		_, err := DecodeInbound([]byte(raw), Limits{})
		assert.NoError(t, err, raw)
	}
}

func TestDecodeInboundRejectsMalformed(t *testing.T) {
	_, err := DecodeInbound([]byte(`not json`), Limits{})
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = DecodeInbound([]byte(`{"data":{}}`), Limits{})
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = DecodeInbound([]byte(`{"event":"teleport"}`), Limits{})
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodeInbound([]byte(`{"event":"detection","data":"person"}`), Limits{})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodeInboundDetectionValidation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"class only", `{"objectClass":"person"}`, false},
		{"full", `{"objectClass":"person","confidence":0.91,"bbox":[1,2,3,4]}`, false},
		{"blank class", `{"objectClass":"   "}`, true},
		{"confidence above one", `{"objectClass":"person","confidence":1.5}`, true},
		{"negative confidence", `{"objectClass":"person","confidence":-0.1}`, true},
		{"short bbox", `{"objectClass":"person","bbox":[1,2,3]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"event":"detection","data":` + tt.raw + `}`
			in, err := DecodeInbound([]byte(raw), Limits{})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "person", in.(DetectionRequest).ObjectClass)
		})
	}
}

func TestDecodeInboundVideoFrameLimits(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"event":"video-frame","data":{"frameData":""}}`), Limits{})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = DecodeInbound([]byte(`{"event":"video-frame","data":{"frameData":"0123456789"}}`), Limits{MaxFrameSize: 4})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	in, err := DecodeInbound([]byte(`{"event":"video-frame","data":{"frameData":"abc","lastUpdate":"2024-01-01T00:00:00Z"}}`), Limits{MaxFrameSize: 4})
	require.NoError(t, err)
	msg := in.(VideoFrameMessage)
	assert.Equal(t, "abc", msg.FrameData)
	assert.Nil(t, msg.LastUpdate, "client supplied lastUpdate must be dropped")
}

func TestDecodeInboundToggleRequiresEnabled(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"event":"toggle-discord-notifications","data":{}}`), Limits{})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	in, err := DecodeInbound([]byte(`{"event":"toggle-discord-notifications","data":{"enabled":false}}`), Limits{})
	require.NoError(t, err)
	assert.False(t, *in.(ToggleNotificationsRequest).Enabled)
}

func TestEncodeEnvelope(t *testing.T) {
	raw, err := Encode(EventSessionJoined, SessionJoined{UserID: "u1", UserName: "Alice", ConnectedUsers: 2})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EventSessionJoined, env.Event)
	assert.JSONEq(t, `{"userId":"u1","userName":"Alice","connectedUsers":2}`, string(env.Data))

	raw, err = Encode(EventRequestUsersList, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"request-users-list"}`, string(raw))
}
