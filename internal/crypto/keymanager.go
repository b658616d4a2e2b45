// Package crypto keeps the exchange API key sealed at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	sealFormat = "crudebot-sealed-key/v1"
	kdfName    = "pbkdf2-sha256"

	// sealIterations is used for new files; files with fewer than
	// minIterations are refused.
	sealIterations = 480_000
	minIterations  = 100_000

	saltSize = 16
	keySize  = 32
)

// sealedKey is the JSON file written by cmd/keyseal. Byte fields are base64.
type sealedKey struct {
	Format     string    `json:"format"`
	KDF        kdfParams `json:"kdf"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
}

type kdfParams struct {
	Name       string `json:"name"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`
}

// KeyConfig lists the places the exchange key may come from.
type KeyConfig struct {
	APIKey           string // wins when set
	EncryptedKeyPath string
	KeyPassword      string
}

// SealAPIKey encrypts apiKey under password with AES-256-GCM, deriving the
// key with PBKDF2-SHA256. The format tag is bound as additional data.
func SealAPIKey(apiKey, password string) ([]byte, error) {
	apiKey = strings.TrimSpace(apiKey)
	switch {
	case password == "":
		return nil, errors.New("crypto: password must not be empty")
	case apiKey == "":
		return nil, errors.New("crypto: api key must not be empty")
	}

	params := kdfParams{Name: kdfName, Iterations: sealIterations, Salt: make([]byte, saltSize)}
	if _, err := rand.Read(params.Salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	aead, err := params.aead(password)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	return json.MarshalIndent(sealedKey{
		Format:     sealFormat,
		KDF:        params,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, []byte(apiKey), []byte(sealFormat)),
	}, "", "  ")
}

// OpenAPIKey decrypts a file produced by SealAPIKey.
func OpenAPIKey(blob []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}
	var sk sealedKey
	if err := json.Unmarshal(blob, &sk); err != nil {
		return "", fmt.Errorf("crypto: parse sealed key: %w", err)
	}
	switch {
	case sk.Format != sealFormat:
		return "", fmt.Errorf("crypto: unsupported format %q", sk.Format)
	case sk.KDF.Name != kdfName:
		return "", fmt.Errorf("crypto: unsupported kdf %q", sk.KDF.Name)
	case sk.KDF.Iterations < minIterations:
		return "", fmt.Errorf("crypto: kdf iterations %d below %d", sk.KDF.Iterations, minIterations)
	}

	aead, err := sk.KDF.aead(password)
	if err != nil {
		return "", err
	}
	if len(sk.Nonce) != aead.NonceSize() {
		return "", fmt.Errorf("crypto: nonce is %d bytes, want %d", len(sk.Nonce), aead.NonceSize())
	}
	plain, err := aead.Open(nil, sk.Nonce, sk.Ciphertext, []byte(sealFormat))
	if err != nil {
		return "", errors.New("crypto: wrong password or corrupted key file")
	}
	return string(plain), nil
}

// LoadAPIKey returns cfg.APIKey when set, otherwise opens the sealed file.
func LoadAPIKey(cfg KeyConfig) (string, error) {
	if k := strings.TrimSpace(cfg.APIKey); k != "" {
		return k, nil
	}
	if cfg.EncryptedKeyPath == "" {
		return "", errors.New("crypto: set exchange.api_key or exchange.encrypted_key_path")
	}
	blob, err := os.ReadFile(cfg.EncryptedKeyPath)
	if err != nil {
		return "", fmt.Errorf("crypto: read sealed key: %w", err)
	}
	return OpenAPIKey(blob, cfg.KeyPassword)
}

func (p kdfParams) aead(password string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), p.Salt, p.Iterations, keySize, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
