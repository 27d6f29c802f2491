package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize = 32

	// hkdfInfo separates the token key from any other key derived from the same secret.
	hkdfInfo = "invoice-reminder/crm-tokens/v1"
)

var (
	ErrEmptySecret      = errors.New("encryption secret is empty")
	ErrInvalidEnvelope  = errors.New("invalid token envelope")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Envelope is the stored form of an encrypted value. All fields are hex encoded.
type Envelope struct {
	Encrypted string `json:"encrypted" firestore:"encrypted" bson:"encrypted"`
	IV        string `json:"iv" firestore:"iv" bson:"iv"`
	AuthTag   string `json:"authTag" firestore:"authTag" bson:"authTag"`
}

// Cipher encrypts short secrets (OAuth tokens) with AES-256-GCM.
// The key is derived from the configured secret with HKDF-SHA256, the random IV
// is used as the GCM nonce.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the AES key from secret and returns a ready Cipher.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Cipher{aead: gcm}, nil
}

// Encrypt seals plaintext and splits the result into ciphertext and authentication tag.
func (c *Cipher) Encrypt(plaintext string) (Envelope, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Envelope{}, err
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - c.aead.Overhead()

	return Envelope{
		Encrypted: hex.EncodeToString(sealed[:tagStart]),
		IV:        hex.EncodeToString(nonce),
		AuthTag:   hex.EncodeToString(sealed[tagStart:]),
	}, nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(env Envelope) (string, error) {
	ciphertext, err := hex.DecodeString(env.Encrypted)
	if err != nil {
		return "", errors.Join(ErrInvalidEnvelope, err)
	}

	nonce, err := hex.DecodeString(env.IV)
	if err != nil {
		return "", errors.Join(ErrInvalidEnvelope, err)
	}

	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil {
		return "", errors.Join(ErrInvalidEnvelope, err)
	}

	if len(nonce) != c.aead.NonceSize() || len(tag) != c.aead.Overhead() {
		return "", ErrInvalidEnvelope
	}

	plaintext, err := c.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", errors.Join(ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}
