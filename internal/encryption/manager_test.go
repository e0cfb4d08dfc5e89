package encryption

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"cash-settlement-service/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRoundTrip(t *testing.T) {
	em := NewEncryptionManager(&config.Config{}, nil)
	ctx := context.Background()

	sealed, err := em.EncryptField(ctx, "483921", "tx1:rider")
	require.NoError(t, err)
	assert.Equal(t, localKeyID, sealed.KeyID)
	assert.NotContains(t, sealed.EncryptedValue, "483921")

	em.ClearCache()
	got, err := em.DecryptField(ctx, sealed, "tx1:rider")
	require.NoError(t, err)
	assert.Equal(t, "483921", got)

	_, err = em.DecryptField(ctx, sealed, "tx1:driver")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

// fakeKMS wraps data keys by xoring with a fixed pad.
type fakeKMS struct {
	pad      []byte
	decrypts int
	fail     bool
}

func (f *fakeKMS) wrap(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ f.pad[i%len(f.pad)]
	}
	return out
}

func (f *fakeKMS) GenerateDataKey(_ context.Context, in *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	if f.fail {
		return nil, errors.New("kms unavailable")
	}
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	return &kms.GenerateDataKeyOutput{Plaintext: key, CiphertextBlob: f.wrap(key), KeyId: in.KeyId}, nil
}

func (f *fakeKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	f.decrypts++
	return &kms.DecryptOutput{Plaintext: f.wrap(in.CiphertextBlob), KeyId: aws.String("k")}, nil
}

func TestKMSRoundTripUsesCache(t *testing.T) {
	fake := &fakeKMS{pad: []byte("0123456789abcdef")}
	cfg := &config.Config{KMS: config.KMSConfig{Enabled: true, KeyID: "alias/cash-codes"}}
	em := NewEncryptionManager(cfg, fake)
	ctx := context.Background()

	sealed, err := em.EncryptField(ctx, "123456", "tx9:driver")
	require.NoError(t, err)
	assert.Equal(t, "alias/cash-codes", sealed.KeyID)

	got, err := em.DecryptField(ctx, sealed, "tx9:driver")
	require.NoError(t, err)
	assert.Equal(t, "123456", got)
	assert.Zero(t, fake.decrypts)

	em.ClearCache()
	got, err = em.DecryptField(ctx, sealed, "tx9:driver")
	require.NoError(t, err)
	assert.Equal(t, "123456", got)
	assert.Equal(t, 1, fake.decrypts)
}

func TestLocalKeyRejectedWhenKMSEnabled(t *testing.T) {
	local := NewEncryptionManager(&config.Config{}, nil)
	sealed, err := local.EncryptField(context.Background(), "123456", "a")
	require.NoError(t, err)

	cfg := &config.Config{KMS: config.KMSConfig{Enabled: true, KeyID: "k"}}
	em := NewEncryptionManager(cfg, &fakeKMS{pad: []byte("x")})
	_, err = em.DecryptField(context.Background(), sealed, "a")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	failing := NewEncryptionManager(cfg, &fakeKMS{pad: []byte("x"), fail: true})
	_, err = failing.EncryptField(context.Background(), "1", "a")
	assert.Error(t, err)
}
