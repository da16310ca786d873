package encryption

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// NonceSize is the secretbox/box nonce length in bytes
	NonceSize = 24
	// KeySize is the symmetric key and Curve25519 key length in bytes
	KeySize = 32
)

// EncryptSecretBox serializes v to JSON and symmetric-encrypts it with a
// freshly generated random nonce. The returned bundle is nonce || ciphertext.
func EncryptSecretBox(v any, key *[KeySize]byte) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// DecryptSecretBox opens a nonce || ciphertext bundle. It is a total
// function: any failure (truncated bundle, wrong key, tampered tag,
// invalid JSON) yields ok == false, never an error or panic, so callers
// can treat undecryptable items as routine droppable data.
func DecryptSecretBox(bundle []byte, key *[KeySize]byte) (json.RawMessage, bool) {
	if len(bundle) < NonceSize {
		return nil, false
	}

	var nonce [NonceSize]byte
	copy(nonce[:], bundle[:NonceSize])

	plaintext, ok := secretbox.Open(nil, bundle[NonceSize:], &nonce, key)
	if !ok {
		return nil, false
	}
	if !json.Valid(plaintext) {
		return nil, false
	}
	return json.RawMessage(plaintext), true
}

// EncryptBox serializes v to JSON and encrypts it to the recipient's
// public key using a fresh ephemeral keypair, so the sender's long-term
// identity never appears in the envelope. The returned bundle is
// ephemeralPublicKey || nonce || ciphertext.
func EncryptBox(v any, recipientPublicKey *[KeySize]byte) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	ephemeralPublic, ephemeralPrivate, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral keypair: %w", err)
	}

	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, KeySize+NonceSize+len(plaintext)+box.Overhead)
	out = append(out, ephemeralPublic[:]...)
	out = append(out, nonce[:]...)
	return box.Seal(out, plaintext, &nonce, recipientPublicKey, ephemeralPrivate), nil
}

// DecryptBox opens an ephemeralPublicKey || nonce || ciphertext bundle
// with the recipient's private key. Total function, same contract as
// DecryptSecretBox.
func DecryptBox(bundle []byte, recipientPrivateKey *[KeySize]byte) (json.RawMessage, bool) {
	if len(bundle) < KeySize+NonceSize {
		return nil, false
	}

	var ephemeralPublic [KeySize]byte
	copy(ephemeralPublic[:], bundle[:KeySize])

	var nonce [NonceSize]byte
	copy(nonce[:], bundle[KeySize:KeySize+NonceSize])

	plaintext, ok := box.Open(nil, bundle[KeySize+NonceSize:], &nonce, &ephemeralPublic, recipientPrivateKey)
	if !ok {
		return nil, false
	}
	if !json.Valid(plaintext) {
		return nil, false
	}
	return json.RawMessage(plaintext), true
}

// NewBoxKeyPair generates a Curve25519 keypair for box envelopes
func NewBoxKeyPair() (publicKey, privateKey *[KeySize]byte, err error) {
	publicKey, privateKey, err = box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return publicKey, privateKey, nil
}
