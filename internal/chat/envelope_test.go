package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{"not json", `"a string"`, "[1,2,3]", "42", "null", ""} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedFrame, "raw=%q", raw)
	}
}

func TestDecodeDefaultsToMessage(t *testing.T) {
	env, err := Decode([]byte(`{"content":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeMessage, env.Type)
	assert.Equal(t, "hello", env.Content)
}

func TestDecodeLegacyTextField(t *testing.T) {
	env, err := Decode([]byte(`{"type":"message","text":"old client"}`))
	require.NoError(t, err)
	assert.Equal(t, "old client", env.Text)
	assert.Empty(t, env.Content)
}

func TestDecodeFileFrame(t *testing.T) {
	env, err := Decode([]byte(`{"type":"file","file":"aGVsbG8=","filename":"notes.pdf","filesize":1024}`))
	require.NoError(t, err)
	assert.Equal(t, TypeFile, env.Type)
	assert.Equal(t, "notes.pdf", env.Filename)
	assert.Equal(t, int64(1024), env.Filesize)
	assert.Equal(t, json.RawMessage(`"aGVsbG8="`), env.File)
}

func TestEncodeOmitsUnusedFields(t *testing.T) {
	raw, err := Encode(&Envelope{Type: TypePong})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(raw))

	raw, err = Encode(errorEnvelope("Message cannot be empty"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"Message cannot be empty"}`, string(raw))
}
