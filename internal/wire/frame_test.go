package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame_ProducesTwoElementArray(t *testing.T) {
	data, err := EncodeFrame(KindHello, HelloPayload{Protocol: ProtocolVersion})
	require.NoError(t, err)
	assert.Equal(t, `["HELLO",{"protocol":"cgp/0.1"}]`, string(data))
}

func TestDecodeFrame_RoundTripsKindAndPayload(t *testing.T) {
	data, err := EncodeFrame(KindUnsub, UnsubPayload{SubID: "s1"})
	require.NoError(t, err)

	kind, payload, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, KindUnsub, kind)

	var decoded UnsubPayload
	require.NoError(t, unmarshalPayload(payload, &decoded))
	assert.Equal(t, "s1", decoded.SubID)
}

func TestDecodeFrame_RejectsNonArrayFrame(t *testing.T) {
	_, _, err := DecodeFrame([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}

func TestDecodeFrame_RejectsNonStringKind(t *testing.T) {
	_, _, err := DecodeFrame([]byte(`[123,{}]`))
	assert.Error(t, err)
}

func TestErrorFrame_EncodesCodeAndMessage(t *testing.T) {
	data, err := ErrorFrame(ErrCodeValidationFailed, "permission denied")
	require.NoError(t, err)

	kind, payload, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, KindError, kind)

	var decoded ErrorPayload
	require.NoError(t, unmarshalPayload(payload, &decoded))
	assert.Equal(t, ErrCodeValidationFailed, decoded.Code)
	assert.Equal(t, "permission denied", decoded.Message)
}
