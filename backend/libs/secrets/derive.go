package secrets

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// MinMasterLength is the shortest master secret accepted for key derivation.
const MinMasterLength = 16

// ErrWeakMaster is returned when the configured master secret is too short.
var ErrWeakMaster = errors.New("secrets: master secret too short")

// Derive expands the master secret into a purpose-bound key of size bytes using HKDF-SHA256.
// Different purposes yield independent keys from the same master.
func Derive(master, purpose string, size int) ([]byte, error) {
	if len(strings.TrimSpace(master)) < MinMasterLength {
		return nil, ErrWeakMaster
	}
	if purpose == "" {
		return nil, errors.New("secrets: purpose is required")
	}
	if size <= 0 {
		return nil, errors.New("secrets: key size must be positive")
	}

	reader := hkdf.New(sha256.New, []byte(master), nil, []byte(purpose))
	key := make([]byte, size)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("secrets: derive %s: %w", purpose, err)
	}
	return key, nil
}
