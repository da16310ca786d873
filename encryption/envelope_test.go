package encryption

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) *[KeySize]byte {
	var key [KeySize]byte
	for i := range key {
		key[i] = b
	}
	return &key
}

func TestSecretBoxRoundTrip(t *testing.T) {
	key := testKey(1)
	payload := map[string]any{"path": "/home/user/project", "seq": float64(7)}

	bundle, err := EncryptSecretBox(payload, key)
	require.NoError(t, err)
	require.Greater(t, len(bundle), NonceSize)

	raw, ok := DecryptSecretBox(bundle, key)
	require.True(t, ok)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestSecretBoxWrongKey(t *testing.T) {
	bundle, err := EncryptSecretBox("hello", testKey(1))
	require.NoError(t, err)

	raw, ok := DecryptSecretBox(bundle, testKey(2))
	assert.False(t, ok)
	assert.Nil(t, raw)
}

func TestSecretBoxTamperedCiphertext(t *testing.T) {
	key := testKey(1)
	bundle, err := EncryptSecretBox("hello", key)
	require.NoError(t, err)

	bundle[len(bundle)-1] ^= 0xff
	_, ok := DecryptSecretBox(bundle, key)
	assert.False(t, ok)
}

func TestSecretBoxTruncatedBundle(t *testing.T) {
	key := testKey(1)
	_, ok := DecryptSecretBox(nil, key)
	assert.False(t, ok)

	_, ok = DecryptSecretBox(make([]byte, NonceSize-1), key)
	assert.False(t, ok)

	_, ok = DecryptSecretBox(make([]byte, NonceSize), key)
	assert.False(t, ok)
}

func TestSecretBoxFreshNonces(t *testing.T) {
	key := testKey(1)
	a, err := EncryptSecretBox("same payload", key)
	require.NoError(t, err)
	b, err := EncryptSecretBox("same payload", key)
	require.NoError(t, err)

	// Random nonces make identical plaintexts encrypt differently
	assert.NotEqual(t, a, b)
}

func TestBoxRoundTrip(t *testing.T) {
	publicKey, privateKey, err := NewBoxKeyPair()
	require.NoError(t, err)

	bundle, err := EncryptBox(map[string]string{"secret": "s3cret"}, publicKey)
	require.NoError(t, err)

	raw, ok := DecryptBox(bundle, privateKey)
	require.True(t, ok)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "s3cret", decoded["secret"])
}

func TestBoxWrongPrivateKey(t *testing.T) {
	publicKey, _, err := NewBoxKeyPair()
	require.NoError(t, err)
	_, otherPrivate, err := NewBoxKeyPair()
	require.NoError(t, err)

	bundle, err := EncryptBox("hello", publicKey)
	require.NoError(t, err)

	_, ok := DecryptBox(bundle, otherPrivate)
	assert.False(t, ok)
}

func TestBoxTruncatedBundle(t *testing.T) {
	_, privateKey, err := NewBoxKeyPair()
	require.NoError(t, err)

	_, ok := DecryptBox(make([]byte, KeySize+NonceSize-1), privateKey)
	assert.False(t, ok)
}
