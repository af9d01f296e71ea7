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

// Secrets file layout: [salt][nonce][ciphertext+tag], AES-256-GCM with a
// scrypt-derived key.
const (
	secretsFileName = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	scryptN         = 32768 // 2^15
	scryptR         = 8
	scryptP         = 1
	keySize         = 32 // AES-256
)

// Secrets holds decrypted secret values for a run. Lookup precedence is
// the decrypted file first, then environment variables. A nil *Secrets
// is usable and falls straight through to the environment.
type Secrets struct {
	values map[string]string
}

// NewSecrets wraps an already-decrypted secret map.
func NewSecrets(values map[string]string) *Secrets {
	return &Secrets{values: values}
}

// Get returns a secret by name, or an error naming both sources checked.
func (s *Secrets) Get(name string) (string, error) {
	if s != nil {
		if value, ok := s.values[name]; ok && value != "" {
			return value, nil
		}
	}
	if value := os.Getenv(name); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// APIKeyForProvider resolves the API key for a provider, returning empty
// for providers that need none.
func (s *Secrets) APIKeyForProvider(provider string) (string, error) {
	env := APIKeyEnvForProvider(provider)
	if env == "" {
		return "", nil
	}
	return s.Get(env)
}

func secretsPath(projectRoot string) string {
	return filepath.Join(projectRoot, ProjectDirName, secretsFileName)
}

// SecretsFileExists reports whether an encrypted secrets file is present.
func SecretsFileExists(projectRoot string) bool {
	_, err := os.Stat(secretsPath(projectRoot))
	return err == nil
}

func deriveKey(password string, salt []byte) ([]byte, error) {
	passwordBytes := []byte(password)
	defer func() {
		for i := range passwordBytes {
			passwordBytes[i] = 0
		}
	}()
	return scrypt.Key(passwordBytes, salt, scryptN, scryptR, scryptP, keySize)
}

// EncryptSecretsFile encrypts and writes secrets under the project dot
// directory with 0600 permissions.
func EncryptSecretsFile(projectRoot, password string, secrets map[string]string) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}

	key, err := deriveKey(password, salt)
	if err != nil {
		return fmt.Errorf("deriving encryption key: %w", err)
	}
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshaling secrets: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	fileData := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	fileData = append(fileData, salt...)
	fileData = append(fileData, nonce...)
	fileData = append(fileData, ciphertext...)

	dir := filepath.Join(projectRoot, ProjectDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s directory: %w", ProjectDirName, err)
	}
	if err := os.WriteFile(secretsPath(projectRoot), fileData, 0o600); err != nil {
		return fmt.Errorf("writing secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile reads and decrypts the project's secrets file.
func DecryptSecretsFile(projectRoot, password string) (*Secrets, error) {
	path := secretsPath(projectRoot)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	// Tighten loose permissions rather than refusing to read.
	if info.Mode().Perm() != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return nil, fmt.Errorf("fixing secrets file permissions: %w", err)
		}
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	if len(fileData) < saltSize+nonceSize {
		return nil, fmt.Errorf("secrets file is truncated")
	}

	salt := fileData[:saltSize]
	nonce := fileData[saltSize : saltSize+nonceSize]
	ciphertext := fileData[saltSize+nonceSize:]

	key, err := deriveKey(password, salt)
	if err != nil {
		return nil, fmt.Errorf("deriving decryption key: %w", err)
	}
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting secrets (wrong password?): %w", err)
	}

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("parsing decrypted secrets: %w", err)
	}
	return NewSecrets(values), nil
}
