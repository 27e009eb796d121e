package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"github.com/rcourtman/workbench-core/internal/wkerr"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100_000
	keyLength        = 32
	saltLength       = 16
)

// EncryptAPIKey derives an AES-256 key from passphrase via PBKDF2-SHA256
// and seals plaintext with AES-GCM. The output is base64(salt || nonce ||
// ciphertext). Store never calls this helper; it persists api_key values
// exactly as they are given to it.
func EncryptAPIKey(plaintext, passphrase string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", wkerr.Config("router.config.encrypt.salt", err)
	}

	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", wkerr.Config("router.config.encrypt.cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", wkerr.Config("router.config.encrypt.gcm", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", wkerr.Config("router.config.encrypt.nonce", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptAPIKey reverses EncryptAPIKey.
func DecryptAPIKey(encoded, passphrase string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", wkerr.Config("router.config.decrypt.base64", err)
	}
	if len(raw) < saltLength {
		return "", wkerr.Config("router.config.decrypt.truncated", errors.New("ciphertext too short"))
	}

	salt := raw[:saltLength]
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", wkerr.Config("router.config.decrypt.cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", wkerr.Config("router.config.decrypt.gcm", err)
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < saltLength+nonceSize {
		return "", wkerr.Config("router.config.decrypt.truncated", errors.New("ciphertext too short"))
	}
	nonce := raw[saltLength : saltLength+nonceSize]
	ciphertext := raw[saltLength+nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", wkerr.Config("router.config.decrypt.open", err)
	}
	return string(plaintext), nil
}
