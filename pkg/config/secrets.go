package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/scrypt"
)

// At-rest encryption parameters for the credentials file.
const (
	credentialsFileName = "credentials.enc"
	saltSize             = 16
	nonceSize            = 12
	scryptN              = 32768 // 2^15
	scryptR              = 8
	scryptP              = 1
	keySize              = 32 // AES-256
)

// SaveEncryptedCredentials encrypts the given provider API keys with a
// passphrase-derived key and writes them to <dir>/credentials.enc, so a
// long-running graphcore deployment doesn't need the keys in its process
// environment on every restart.
func SaveEncryptedCredentials(dir, passphrase string, creds map[Provider]string) error {
	plain := make(map[string]string, len(creds))
	for p, v := range creds {
		plain[string(p)] = v
	}
	plaintext, err := json.Marshal(plain)
	if err != nil {
		return fmt.Errorf("config: marshal credentials: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("config: generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return fmt.Errorf("config: derive key: %w", err)
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("config: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("config: new gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("config: generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, credentialsFileName)
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// LoadEncryptedCredentials decrypts <dir>/credentials.enc and populates the
// in-memory credential cache that Credential() consults before the
// environment. A missing file is not an error: env vars remain the source
// of truth when no credentials store exists.
func LoadEncryptedCredentials(dir, passphrase string) error {
	path := filepath.Join(dir, credentialsFileName)
	data, err := os.ReadFile(path) //nolint:gosec // operator-controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	minSize := saltSize + nonceSize + 16 // 16 = GCM tag size
	if len(data) < minSize {
		return fmt.Errorf("config: credentials file %s is corrupted", path)
	}
	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]
	ciphertext := data[saltSize+nonceSize:]

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return fmt.Errorf("config: derive key: %w", err)
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("config: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("config: new gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("config: decrypt %s: wrong passphrase or corrupted file", path)
	}

	var plain map[string]string
	if err := json.Unmarshal(plaintext, &plain); err != nil {
		return fmt.Errorf("config: parse decrypted credentials: %w", err)
	}
	for k, v := range plain {
		setCredential(Provider(k), v)
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
