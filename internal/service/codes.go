package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"cash-settlement-service/internal/encryption"
	"cash-settlement-service/internal/hashing"
	"cash-settlement-service/internal/models"
)

const codeDigits = 6

var codeSpace = big.NewInt(1_000_000)

type codeHasher interface {
	HashCode(code, purpose string) (*hashing.HashResult, error)
	VerifyCode(code, purpose string, stored *hashing.HashResult) (bool, error)
}

type codeEncryptor interface {
	EncryptField(ctx context.Context, plaintext, aad string) (*encryption.EncryptedData, error)
	DecryptField(ctx context.Context, data *encryption.EncryptedData, aad string) (string, error)
}

// CodeVault generates confirmation codes and seals them for storage. The hash
// answers "is this the code", the envelope lets the owner see it again.
type CodeVault struct {
	hasher    codeHasher
	encryptor codeEncryptor
}

func NewCodeVault(hasher codeHasher, encryptor codeEncryptor) *CodeVault {
	return &CodeVault{hasher: hasher, encryptor: encryptor}
}

// GenerateCode returns a uniformly random zero-padded 6 digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func codeContext(transactionID string, role models.PartyRole) string {
	return transactionID + ":" + string(role)
}

func (v *CodeVault) Seal(ctx context.Context, transactionID string, role models.PartyRole, code string) (models.SealedCode, error) {
	purpose := codeContext(transactionID, role)

	hash, err := v.hasher.HashCode(code, purpose)
	if err != nil {
		return models.SealedCode{}, err
	}
	enc, err := v.encryptor.EncryptField(ctx, code, purpose)
	if err != nil {
		return models.SealedCode{}, err
	}

	return models.SealedCode{
		Hash:          hash.Hash,
		Salt:          hash.Salt,
		PepperVersion: hash.PepperVersion,
		Algorithm:     hash.Algorithm,
		Ciphertext:    enc.EncryptedValue,
		EncryptedDEK:  enc.EncryptedDEK,
		KeyID:         enc.KeyID,
	}, nil
}

// Verify never distinguishes a near miss from a wrong code.
func (v *CodeVault) Verify(transactionID string, role models.PartyRole, code string, sealed models.SealedCode) (bool, error) {
	if len(code) != codeDigits {
		return false, nil
	}
	return v.hasher.VerifyCode(code, codeContext(transactionID, role), &hashing.HashResult{
		Hash:          sealed.Hash,
		Salt:          sealed.Salt,
		PepperVersion: sealed.PepperVersion,
		Algorithm:     sealed.Algorithm,
	})
}

func (v *CodeVault) Reveal(ctx context.Context, transactionID string, role models.PartyRole, sealed models.SealedCode) (string, error) {
	return v.encryptor.DecryptField(ctx, &encryption.EncryptedData{
		EncryptedValue: sealed.Ciphertext,
		EncryptedDEK:   sealed.EncryptedDEK,
		KeyID:          sealed.KeyID,
	}, codeContext(transactionID, role))
}
