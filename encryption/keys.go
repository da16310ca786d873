package encryption

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"happy/domain"
)

// Key derivation labels. Each derived key gets its own purpose label so
// compromising one derived key never exposes another.
const (
	labelContent = "happy content key"
	labelSigning = "happy auth signing"
	labelMachine = "happy machine key"
)

// SecretSize is the required root secret length in bytes
const SecretSize = 32

// DeriveKey derives a 32-byte subkey from the root secret for the given
// purpose label using HKDF-SHA256
func DeriveKey(secret []byte, label string) (*[KeySize]byte, error) {
	if len(secret) != SecretSize {
		return nil, domain.NewCredentialError(fmt.Sprintf("secret must be %d bytes, got %d", SecretSize, len(secret)))
	}

	reader := hkdf.New(sha256.New, secret, nil, []byte(label))
	var key [KeySize]byte
	if _, err := io.ReadFull(reader, key[:]); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return &key, nil
}

// ContentKey derives the symmetric key used for session metadata,
// messages and agent state
func ContentKey(secret []byte) (*[KeySize]byte, error) {
	return DeriveKey(secret, labelContent)
}

// MachineKey derives the symmetric key used for machine metadata
func MachineKey(secret []byte) (*[KeySize]byte, error) {
	return DeriveKey(secret, labelMachine)
}

// SigningKey derives the ed25519 keypair that proves possession of the
// root secret during challenge/response auth
func SigningKey(secret []byte) (ed25519.PrivateKey, error) {
	seedKey, err := DeriveKey(secret, labelSigning)
	if err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(seedKey[:]), nil
}

// ChallengeResponse carries a signed auth challenge. The server verifies
// the signature against the public key and mints a bearer token, binding
// possession of the secret to token issuance without transmitting the
// secret itself.
type ChallengeResponse struct {
	Challenge []byte
	Signature []byte
	PublicKey ed25519.PublicKey
}

// SignChallenge generates a fresh random challenge and signs it with the
// keypair derived from the root secret
func SignChallenge(secret []byte) (*ChallengeResponse, error) {
	privateKey, err := SigningKey(secret)
	if err != nil {
		return nil, err
	}

	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return nil, fmt.Errorf("failed to generate challenge: %w", err)
	}

	return &ChallengeResponse{
		Challenge: challenge,
		Signature: ed25519.Sign(privateKey, challenge),
		PublicKey: privateKey.Public().(ed25519.PublicKey),
	}, nil
}

// NewSecret generates a fresh 32-byte root secret
func NewSecret() ([]byte, error) {
	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	return secret, nil
}

// EncodeKey renders key material as URL-safe base64 for transport
func EncodeKey(key []byte) string {
	return base64.URLEncoding.EncodeToString(key)
}

// DecodeKey parses URL-safe base64 key material, accepting the standard
// alphabet as a fallback for keys shared by older clients
func DecodeKey(s string) ([]byte, error) {
	if decoded, err := base64.URLEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	return decoded, nil
}
