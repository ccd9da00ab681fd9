package qr

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"chargebook/backend/services/booking-gateway/internal/apperr"
)

func signedCodec(t *testing.T, key string) *Codec {
	t.Helper()
	c, err := NewCodec(ModeSigned, []byte(key))
	require.NoError(t, err)
	return c
}

func TestSignedRoundTripIsDeterministic(t *testing.T) {
	c := signedCodec(t, "0123456789abcdef0123456789abcdef")

	a, err := c.Mint("65f1c0de-42")
	require.NoError(t, err)
	b, err := c.Mint("65f1c0de-42")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.True(t, strings.HasPrefix(a, "EVR1."))

	id, err := c.Decode(a)
	require.NoError(t, err)
	require.Equal(t, "65f1c0de-42", id)
}

func TestDecodeRejectsForeignPayloads(t *testing.T) {
	c := signedCodec(t, "0123456789abcdef0123456789abcdef")
	other := signedCodec(t, "fedcba9876543210fedcba9876543210")

	forged, err := other.Mint("r-1")
	require.NoError(t, err)

	cases := []string{
		"garbage-payload",
		"",
		"EVR1.ci0x",
		"EVR1.!!!.abc",
		"EVR2.ci0x.abc",
		forged,
		"r-1",
		strings.Repeat("a", maxPayloadLen+1),
	}
	for _, payload := range cases {
		_, err := c.Decode(payload)
		require.ErrorIs(t, err, apperr.MalformedPayload, "payload %q", payload)
	}
}

func TestRawMode(t *testing.T) {
	c, err := NewCodec(ModeRaw, nil)
	require.NoError(t, err)

	p, err := c.Mint("abc123")
	require.NoError(t, err)
	require.Equal(t, "abc123", p)

	id, err := c.Decode(" abc123 ")
	require.NoError(t, err)
	require.Equal(t, "abc123", id)

	_, err = c.Decode("not a code!")
	require.ErrorIs(t, err, apperr.MalformedPayload)
}

func TestNewCodecValidation(t *testing.T) {
	_, err := NewCodec(ModeSigned, nil)
	require.ErrorIs(t, err, ErrEmptyKey)

	_, err = NewCodec("rot13", []byte("k"))
	require.ErrorIs(t, err, ErrUnknownMode)

	c := signedCodec(t, "k")
	_, err = c.Mint("has space")
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestRenderProducesPNG(t *testing.T) {
	png, err := Render("EVR1.abc.def", 0)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = Render("", 128)
	require.ErrorIs(t, err, apperr.MalformedPayload)
}
