package relayer_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthvault/internal/crypto"
	"healthvault/internal/domain"
	"healthvault/internal/relayer"
)

func TestClearValue_SealOpen(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	box, err := relayer.SealClearValue(kp.Public, 8, 2)
	require.NoError(t, err)
	v, err := relayer.OpenClearValue(&kp.Private, kp.Public, box)
	require.NoError(t, err)
	require.NotNil(t, v.Int)
	assert.Nil(t, v.Bool)
	assert.Equal(t, int64(2), v.Int.Int64())

	box, err = relayer.SealClearBool(kp.Public, true)
	require.NoError(t, err)
	v, err = relayer.OpenClearValue(&kp.Private, kp.Public, box)
	require.NoError(t, err)
	require.NotNil(t, v.Bool)
	assert.True(t, *v.Bool)
	assert.Nil(t, v.Int)

	other, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, err = relayer.OpenClearValue(&other.Private, other.Public, box)
	assert.Error(t, err)
}

func TestPlaintext_SealOpen(t *testing.T) {
	priv, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)

	sv, err := relayer.SealPlaintext(pub, domain.EncryptValue{Bits: 64, Value: 17500})
	require.NoError(t, err)
	got, err := relayer.OpenPlaintext(&priv, pub, sv)
	require.NoError(t, err)
	assert.Equal(t, domain.EncryptValue{Bits: 64, Value: 17500}, got)
}

func TestUserDecryptRequest_OmitsPrivateKey(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	req := domain.DecryptRequest{
		PrivateKey:   kp.Private,
		PublicKey:    kp.Public,
		Signature:    "ab",
		Start:        1_700_000_000,
		DurationDays: 10,
	}

	wire := relayer.NewUserDecryptRequest(req)
	b, err := json.Marshal(wire)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "private")

	back, err := wire.DecryptRequest()
	require.NoError(t, err)
	assert.Equal(t, kp.Public, back.PublicKey)
	assert.Equal(t, domain.X25519Private{}, back.PrivateKey)

	wire.PublicKey = wire.PublicKey[:4]
	_, err = wire.DecryptRequest()
	assert.Error(t, err)
}
