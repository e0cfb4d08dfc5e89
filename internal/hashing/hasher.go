package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"cash-settlement-service/internal/config"
)

const Algorithm = "argon2id-v1"

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible hash algorithm")
	ErrUnknownPepper       = errors.New("pepper version not found")
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher hashes confirmation codes with argon2id and a versioned pepper.
// The previous pepper stays accepted for verification after a rotation.
type Hasher struct {
	params  Argon2Params
	current int
	peppers map[int]string
}

type HashResult struct {
	Hash          string `json:"hash"`
	Salt          string `json:"salt"`
	PepperVersion int    `json:"pepper_version"`
	Algorithm     string `json:"algorithm"`
}

func NewHasher(cfg *config.Config) *Hasher {
	hc := cfg.Hashing
	params := Argon2Params{
		Memory:      uint32(max(hc.Argon2MemoryCost, 1024)),
		Iterations:  uint32(max(hc.Argon2TimeCost, 1)),
		Parallelism: uint8(max(hc.Argon2Parallelism, 1)),
		SaltLength:  16,
		KeyLength:   32,
	}

	h := &Hasher{
		params:  params,
		current: hc.PepperVersion,
		peppers: map[int]string{hc.PepperVersion: hc.Pepper},
	}
	if hc.PreviousPepper != "" && hc.PreviousPepperVersion != hc.PepperVersion {
		h.peppers[hc.PreviousPepperVersion] = hc.PreviousPepper
	}
	return h
}

// HashCode hashes code for purpose. The purpose is mixed in so a rider code
// hash can never verify as a driver code.
func (h *Hasher) HashCode(code, purpose string) (*HashResult, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := h.derive(code, h.peppers[h.current], purpose, salt, h.params.KeyLength)

	return &HashResult{
		Hash:          base64.RawURLEncoding.EncodeToString(hash),
		Salt:          base64.RawURLEncoding.EncodeToString(salt),
		PepperVersion: h.current,
		Algorithm:     Algorithm,
	}, nil
}

// VerifyCode compares in constant time.
func (h *Hasher) VerifyCode(code, purpose string, stored *HashResult) (bool, error) {
	if stored == nil || stored.Algorithm != Algorithm {
		return false, ErrIncompatibleVersion
	}

	pepper, ok := h.peppers[stored.PepperVersion]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownPepper, stored.PepperVersion)
	}

	salt, err := base64.RawURLEncoding.DecodeString(stored.Salt)
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawURLEncoding.DecodeString(stored.Hash)
	if err != nil || len(expected) == 0 {
		return false, ErrInvalidHash
	}

	computed := h.derive(code, pepper, purpose, salt, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func (h *Hasher) derive(code, pepper, purpose string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey(
		[]byte(code+pepper+purpose),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		keyLen,
	)
}
