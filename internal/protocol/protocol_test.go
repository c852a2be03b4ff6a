package protocol

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, false},
		{"false", false, false},
		{"true", true, true},
		{"empty string", "", false},
		{"string", "x", true},
		{"zero float", float64(0), false},
		{"nan", math.NaN(), false},
		{"float", 1.5, true},
		{"zero uint", uint64(0), false},
		{"int", -1, true},
		{"object", map[string]any{"errorCode": 1}, true},
		{"empty object", map[string]any{}, true},
		{"empty slice", []any{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truthy(tt.in))
		})
	}
}

func TestDecodeArg_PassThrough(t *testing.T) {
	got, err := DecodeArg[string]("payload")
	require.NoError(t, err)
	assert.Equal(t, "payload", got)

	zero, err := DecodeArg[string](nil)
	require.NoError(t, err)
	assert.Equal(t, "", zero)
}

func TestDecodeArg_StructFromJSONValue(t *testing.T) {
	type location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Accuracy  int     `json:"accuracy"`
	}

	var raw any
	require.NoError(t, json.Unmarshal([]byte(`{"latitude":1.5,"longitude":-2,"accuracy":10}`), &raw))

	got, err := DecodeArg[location](raw)
	require.NoError(t, err)
	assert.Equal(t, location{Latitude: 1.5, Longitude: -2, Accuracy: 10}, got)
}

func TestAsSdkError(t *testing.T) {
	sdkErr, ok := AsSdkError(map[string]any{"errorCode": float64(500), "message": "boom"})
	require.True(t, ok)
	assert.Equal(t, ErrorCodeInternalError, sdkErr.ErrorCode)
	assert.Equal(t, "boom", sdkErr.Message)
	assert.Equal(t, "sdk error 500: boom", sdkErr.Error())

	_, ok = AsSdkError(map[string]any{"message": "no code"})
	assert.False(t, ok)

	_, ok = AsSdkError(true)
	assert.False(t, ok)
}

func TestNewRequest(t *testing.T) {
	req := NewRequest(7, APIVersionTag(APIVersion2, "app.initialize"), "initialize", nil)

	require.NotNil(t, req.ID)
	assert.Equal(t, MessageID(7), *req.ID)
	assert.Equal(t, "v2_app.initialize", req.APIVersionTag)
	assert.NotEmpty(t, req.UUID)
	assert.NotNil(t, req.Args, "args must serialize as an empty list, not null")
	assert.NotZero(t, req.Timestamp)

	other := NewRequest(8, "", "x", nil)
	assert.NotEqual(t, req.UUID, other.UUID)
}

func TestNewEvent_HasNoID(t *testing.T) {
	ev := NewEvent("themeChange", []any{"dark"})

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"func":"themeChange","args":["dark"]}`, string(data))
}

func TestMessage_Accessors(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"id":0,"args":[true]}`), &msg))
	assert.True(t, msg.HasID())
	assert.False(t, msg.HasFunc())
	assert.Equal(t, "", msg.FuncName())
	assert.Equal(t, "0", IDString(msg.ID))
	assert.Equal(t, "none", IDString(nil))
}
