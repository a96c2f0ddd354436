// Package crypto seals credentials at rest with XChaCha20-Poly1305.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/example/court-scheduler/internal/internaltypes"
)

const sealedPrefix = "xc1:"

type AEAD struct{ aead cipher.AEAD }

func New(key []byte) (*AEAD, error) {
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, internaltypes.Configf("CRED_ENC_KEY", "", "need %d bytes: %v", chacha20poly1305.KeySize, err)
	}
	return &AEAD{aead: a}, nil
}

// ParseKey decodes a base64 key as printed by GenerateKey.
func ParseKey(b64 string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, internaltypes.Configf("CRED_ENC_KEY", "", "invalid base64: %v", err)
	}
	return key, nil
}

func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// EncryptToString returns "xc1:" + base64(nonce || ciphertext).
func (a *AEAD) EncryptToString(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, a.aead.NonceSize(), a.aead.NonceSize()+len(plaintext)+a.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	buf := a.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(buf), nil
}

// DecryptString reverses EncryptToString. Values without the sealed prefix
// are returned unchanged so a store written before a key was configured
// stays readable.
func (a *AEAD) DecryptString(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return sealed, nil
	}
	buf, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", internaltypes.Wrap(err, "decode sealed value")
	}
	ns := a.aead.NonceSize()
	if len(buf) < ns {
		return "", internaltypes.New("ciphertext too short")
	}
	pt, err := a.aead.Open(nil, buf[:ns], buf[ns:], nil)
	if err != nil {
		return "", internaltypes.Wrap(err, "open sealed value")
	}
	return string(pt), nil
}
