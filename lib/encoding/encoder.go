// Package encoding holds the msgpack codecs used by snapoff: tamper-proof
// tokens for values that travel to the browser (session cookies) and state
// snapshots for values that stay on the server.
package encoding

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Errors returned by Encoder.Decode.
var (
	ErrInvalidFormat    = errors.New("encoding: invalid token format")
	ErrSignatureInvalid = errors.New("encoding: signature verification failed")
	ErrDecryptFailed    = errors.New("encoding: decryption failed")
)

// Encoder turns values into URL and cookie safe tokens.
// It supports two modes:
//   - Signed (default): base64 msgpack + HMAC signature, visible but tamper-proof
//   - Encrypted: AES-256-GCM, fully opaque
type Encoder struct {
	key []byte
	gcm cipher.AEAD
}

// NewEncoder creates a new encoder with the given secret.
// Secrets shorter than 32 bytes are stretched with SHA-256.
func NewEncoder(key []byte) (*Encoder, error) {
	if len(key) < 32 {
		h := sha256.Sum256(key)
		key = h[:]
	}

	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Encoder{
		key: key,
		gcm: gcm,
	}, nil
}

// Encode serializes v and returns a token.
// If sensitive is true, the data is encrypted; otherwise it's signed.
func (e *Encoder) Encode(v any, sensitive bool) (string, error) {
	packed, err := msgpack.Marshal(v)
	if err != nil {
		return "", err
	}

	if sensitive {
		return e.encrypt(packed)
	}
	return e.sign(packed), nil
}

// Decode verifies (or decrypts) a token produced by Encode and unpacks it into v.
func (e *Encoder) Decode(encoded string, sensitive bool, v any) error {
	var packed []byte
	var err error

	if sensitive {
		packed, err = e.decrypt(encoded)
	} else {
		packed, err = e.verify(encoded)
	}
	if err != nil {
		return err
	}

	if err := msgpack.Unmarshal(packed, v); err != nil {
		return ErrInvalidFormat
	}
	return nil
}

// sign creates a signed (but visible) encoding: base64.signature
func (e *Encoder) sign(data []byte) string {
	b64 := base64.RawURLEncoding.EncodeToString(data)
	mac := hmac.New(sha256.New, e.key)
	mac.Write(data)
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil)[:16]) // 16 bytes = 128 bits
	return b64 + "." + sig
}

// verify verifies and decodes a signed string
func (e *Encoder) verify(encoded string) ([]byte, error) {
	parts := strings.SplitN(encoded, ".", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidFormat
	}

	data, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidFormat
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, e.key)
	mac.Write(data)
	expected := mac.Sum(nil)[:16]

	if !hmac.Equal(sig, expected) {
		return nil, ErrSignatureInvalid
	}

	return data, nil
}

// encrypt creates an encrypted encoding using AES-256-GCM
func (e *Encoder) encrypt(data []byte) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := e.gcm.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// decrypt decodes and decrypts an encrypted string
func (e *Encoder) decrypt(encoded string) ([]byte, error) {
	ciphertext, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidFormat
	}

	if len(ciphertext) < e.gcm.NonceSize() {
		return nil, ErrInvalidFormat
	}

	nonce := ciphertext[:e.gcm.NonceSize()]
	ciphertext = ciphertext[e.gcm.NonceSize():]

	plain, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}
