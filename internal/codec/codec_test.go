package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HsiangNianian/framelink/internal/protocol"
)

func TestByName(t *testing.T) {
	c, err := ByName("")
	require.NoError(t, err)
	assert.Equal(t, NameJSON, c.Name())
	assert.False(t, c.Binary())

	c, err = ByName("cbor")
	require.NoError(t, err)
	assert.Equal(t, NameCBOR, c.Name())
	assert.True(t, c.Binary())

	_, err = ByName("msgpack")
	assert.Error(t, err)
}

func TestCodecs_RequestToMessage(t *testing.T) {
	for _, c := range []Codec{JSON, CBOR} {
		t.Run(c.Name(), func(t *testing.T) {
			req := protocol.NewRequest(3, "v1_test", "getLocation", []any{map[string]any{"allowChooseLocation": true}})

			data, err := c.Marshal(req)
			require.NoError(t, err)

			var msg protocol.Message
			require.NoError(t, c.Unmarshal(data, &msg))

			require.True(t, msg.HasID())
			assert.Equal(t, protocol.MessageID(3), *msg.ID)
			assert.Equal(t, "getLocation", msg.FuncName())
			assert.Equal(t, req.UUID, msg.UUID)
			require.Len(t, msg.Args, 1)

			arg, ok := msg.Args[0].(map[string]any)
			require.True(t, ok, "object args decode as string keyed maps, got %T", msg.Args[0])
			assert.Equal(t, true, arg["allowChooseLocation"])
		})
	}
}

func TestCodecs_EventHasNoID(t *testing.T) {
	for _, c := range []Codec{JSON, CBOR} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(protocol.NewEvent("themeChange", []any{"dark"}))
			require.NoError(t, err)

			var msg protocol.Message
			require.NoError(t, c.Unmarshal(data, &msg))
			assert.False(t, msg.HasID())
			assert.Equal(t, "themeChange", msg.FuncName())
		})
	}
}
