// Package credentials persists the login token and root key material.
// The secret is the root from which all content encryption keys are
// derived, so the file is written 0600 under an exclusive lock.
package credentials

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"happy/domain"
	"happy/encryption"
)

// Credentials holds the bearer token and the root secret
type Credentials struct {
	Token  string `json:"token"`
	Secret []byte `json:"-"`
}

// credentialsFile is the on-disk representation (secret base64-encoded)
type credentialsFile struct {
	Token  string `json:"token"`
	Secret string `json:"secret"`
}

// pathFunc returns the path to the credentials file.
// Can be overridden in tests.
var pathFunc = getDefaultPath

func getDefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".happy", "credentials.json"), nil
}

// Validate checks the invariants a credential object must satisfy before
// it can be stored or used for login. Violations are typed errors meant
// to surface to the user at the call site.
func (c *Credentials) Validate() error {
	if c.Token == "" {
		return domain.NewCredentialError("missing token")
	}
	if len(c.Secret) != encryption.SecretSize {
		return domain.NewCredentialError(fmt.Sprintf("secret must be %d bytes, got %d", encryption.SecretSize, len(c.Secret)))
	}
	return nil
}

// Get reads the stored credentials. Returns nil without error when no
// credentials are stored.
func Get() (*Credentials, error) {
	path, err := pathFunc()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var stored credentialsFile
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("invalid credentials file: %w", err)
	}

	secret, err := base64.StdEncoding.DecodeString(stored.Secret)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials file: %w", err)
	}

	creds := &Credentials{Token: stored.Token, Secret: secret}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

// Set persists credentials atomically under an exclusive lock
func Set(creds *Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	path, err := pathFunc()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("failed to open credentials file: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer unlockFile(file)

	data, err := json.MarshalIndent(credentialsFile{
		Token:  creds.Token,
		Secret: base64.StdEncoding.EncodeToString(creds.Secret),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate credentials file: %w", err)
	}
	if _, err := file.WriteAt(data, 0); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return file.Sync()
}

// Remove deletes the stored credentials. Used at logout; the caller is
// expected to tear down all in-memory key material as well.
func Remove() error {
	path, err := pathFunc()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}
	return nil
}
