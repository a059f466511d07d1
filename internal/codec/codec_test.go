package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yn-academia/mcp-proxy/internal/codec"
)

func TestParseRequest(t *testing.T) {
	frame, err := codec.Parse([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	assert.NoError(t, err)
	assert.Equal(t, codec.KindRequest, frame.Kind)
	assert.Equal(t, "ping", frame.Method)
	assert.True(t, frame.HasId)
}

func TestParseNotification(t *testing.T) {
	frame, err := codec.Parse([]byte(`{"jsonrpc":"2.0","method":"log","params":{"m":"hi"}}`))
	assert.NoError(t, err)
	assert.Equal(t, codec.KindNotification, frame.Kind)
	assert.False(t, frame.HasId)
}

func TestParseResponse(t *testing.T) {
	frame, err := codec.Parse([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	assert.NoError(t, err)
	assert.Equal(t, codec.KindResponse, frame.Kind)
}

func TestParseAmbiguousResultAndError(t *testing.T) {
	_, err := codec.Parse([]byte(`{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":-1,"message":"x"}}`))
	assert.Error(t, err)
	var violation *codec.SchemaViolationError
	assert.ErrorAs(t, err, &violation)
}

func TestParseDisallowedIdType(t *testing.T) {
	_, err := codec.Parse([]byte(`{"jsonrpc":"2.0","id":{"a":1},"method":"ping"}`))
	assert.Error(t, err)
	var violation *codec.SchemaViolationError
	assert.ErrorAs(t, err, &violation)

	_, err = codec.Parse([]byte(`{"jsonrpc":"2.0","id":[1],"result":{}}`))
	assert.Error(t, err)
	assert.ErrorAs(t, err, &violation)
}

func TestParseWrongVersion(t *testing.T) {
	_, err := codec.Parse([]byte(`{"jsonrpc":"1.0","id":1,"result":{}}`))
	assert.Error(t, err)
}

func TestParseMalformed(t *testing.T) {
	_, err := codec.Parse([]byte(`{not json`))
	assert.Error(t, err)
	var malformed *codec.MalformedFrameError
	assert.ErrorAs(t, err, &malformed)
}

func TestParsePreservesRawBytes(t *testing.T) {
	raw := []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"b":1,"a":2}}`)
	frame, err := codec.Parse(raw)
	assert.NoError(t, err)
	assert.Equal(t, raw, []byte(frame.Raw))
}
