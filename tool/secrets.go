package tool

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
)

// SecretKeyEnv overrides the machine-derived key used for encrypted
// credentials. Processes sharing a store on different hosts must set it.
const SecretKeyEnv = "TOOLCTL_SECRET_KEY"

const encryptedCredentialPrefix = "enc:v1:"

var errSealedTooShort = errors.New("tool: encrypted credential is too short")

// EncryptCredential seals a literal token so it can be stored as a
// credential reference. Empty values, env references and already sealed
// values are returned unchanged.
func EncryptCredential(value string) (string, error) {
	clean := strings.TrimSpace(value)
	if clean == "" || strings.HasPrefix(clean, "env:") || IsEncryptedCredential(clean) {
		return clean, nil
	}
	aead, err := credentialAEAD()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("tool: credential nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(clean), nil)
	return encryptedCredentialPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// IsEncryptedCredential reports whether ref was produced by EncryptCredential.
func IsEncryptedCredential(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), encryptedCredentialPrefix)
}

func decryptCredential(ref string) (string, error) {
	aead, err := credentialAEAD()
	if err != nil {
		return "", err
	}
	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(strings.TrimSpace(ref), encryptedCredentialPrefix))
	if err != nil {
		return "", fmt.Errorf("tool: decode encrypted credential: %w", err)
	}
	size := aead.NonceSize()
	if len(payload) < size {
		return "", errSealedTooShort
	}
	plain, err := aead.Open(nil, payload[:size], payload[size:], nil)
	if err != nil {
		return "", fmt.Errorf("tool: open encrypted credential (wrong %s?): %w", SecretKeyEnv, err)
	}
	return string(plain), nil
}

func credentialAEAD() (cipher.AEAD, error) {
	block, err := aes.NewCipher(credentialKey())
	if err != nil {
		return nil, fmt.Errorf("tool: credential cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func credentialKey() []byte {
	if env := strings.TrimSpace(os.Getenv(SecretKeyEnv)); env != "" {
		if decoded, err := base64.StdEncoding.DecodeString(env); err == nil && len(decoded) > 0 {
			sum := sha256.Sum256(decoded)
			return sum[:]
		}
		sum := sha256.Sum256([]byte(env))
		return sum[:]
	}

	username := "unknown"
	if current, err := user.Current(); err == nil && current != nil {
		username = current.Username
	}
	hostname, _ := os.Hostname()
	sum := sha256.Sum256([]byte("toolctl:" + username + ":" + hostname))
	return sum[:]
}
