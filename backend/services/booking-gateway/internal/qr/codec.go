// Package qr mints and decodes the arrival tokens shown to owners and scanned by operators.
package qr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/skip2/go-qrcode"

	"chargebook/backend/services/booking-gateway/internal/apperr"
)

// Mode selects the payload format.
type Mode string

const (
	ModeSigned Mode = "signed"
	ModeRaw    Mode = "raw"
)

const (
	signedPrefix   = "EVR1"
	maxPayloadLen  = 512
	defaultPNGSize = 256
)

var (
	ErrEmptyKey     = errors.New("qr: signing key is empty")
	ErrUnknownMode  = errors.New("qr: unknown mode")
	ErrInvalidID    = errors.New("qr: reservation id is not encodable")
	errBadSignature = errors.New("signature mismatch")

	idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)
	b64       = base64.RawURLEncoding
)

// Codec is immutable after construction and safe for concurrent use.
type Codec struct {
	mode Mode
	key  []byte
}

// NewCodec builds a codec. Signed mode requires a key.
func NewCodec(mode Mode, key []byte) (*Codec, error) {
	switch mode {
	case "", ModeSigned:
		if len(key) == 0 {
			return nil, ErrEmptyKey
		}
		k := make([]byte, len(key))
		copy(k, key)
		return &Codec{mode: ModeSigned, key: k}, nil
	case ModeRaw:
		return &Codec{mode: ModeRaw}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// Mode reports the payload format in use.
func (c *Codec) Mode() Mode { return c.mode }

// Mint deterministically encodes reservationID.
func (c *Codec) Mint(reservationID string) (string, error) {
	if !idPattern.MatchString(reservationID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, reservationID)
	}
	if c.mode == ModeRaw {
		return reservationID, nil
	}
	return signedPrefix + "." + b64.EncodeToString([]byte(reservationID)) + "." + b64.EncodeToString(c.sign(reservationID)), nil
}

// Decode recovers the reservation id. Any failure is MalformedPayload.
func (c *Codec) Decode(payload string) (string, error) {
	const op = "qr.decode"
	payload = strings.TrimSpace(payload)
	if payload == "" || len(payload) > maxPayloadLen {
		return "", apperr.New(apperr.MalformedPayload, op, "QR code is not a reservation code")
	}

	if c.mode == ModeRaw {
		if !idPattern.MatchString(payload) {
			return "", apperr.New(apperr.MalformedPayload, op, "QR code is not a reservation code")
		}
		return payload, nil
	}

	parts := strings.Split(payload, ".")
	if len(parts) != 3 || parts[0] != signedPrefix {
		return "", apperr.New(apperr.MalformedPayload, op, "QR code is not a reservation code")
	}
	rawID, err := b64.DecodeString(parts[1])
	if err != nil {
		return "", apperr.Wrap(apperr.MalformedPayload, op, err)
	}
	sig, err := b64.DecodeString(parts[2])
	if err != nil {
		return "", apperr.Wrap(apperr.MalformedPayload, op, err)
	}

	id := string(rawID)
	if !idPattern.MatchString(id) {
		return "", apperr.New(apperr.MalformedPayload, op, "QR code is not a reservation code")
	}
	if !hmac.Equal(sig, c.sign(id)) {
		return "", apperr.Wrap(apperr.MalformedPayload, op, errBadSignature)
	}
	return id, nil
}

// Render draws payload as a PNG QR code. size <= 0 uses the default.
func Render(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, apperr.New(apperr.MalformedPayload, "qr.render", "empty payload")
	}
	if size <= 0 {
		size = defaultPNGSize
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qr: render: %w", err)
	}
	return png, nil
}

func (c *Codec) sign(id string) []byte {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(signedPrefix + "." + id))
	return mac.Sum(nil)
}
