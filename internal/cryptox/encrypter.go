// Package cryptox implements the symmetric envelope used for user dumps.
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

var (
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")
	ErrInvalidPayload = errors.New("the payload is invalid")
	ErrInvalidMAC     = errors.New("the MAC is invalid")
)

// envelope is the JSON document carried inside the base64 payload.
type envelope struct {
	IV    string `json:"iv"`
	Value string `json:"value"`
	MAC   string `json:"mac"`
}

// Encrypter seals data with AES-256-CBC and authenticates it with
// HMAC-SHA256 in an encrypt-then-MAC envelope:
//
//	base64(JSON{"iv": base64(iv), "value": base64(ciphertext), "mac": hex(hmac(iv+value))})
//
// The format is interchangeable with the one produced by the remote service.
type Encrypter struct {
	key []byte
}

// NewEncrypter validates the key size and copies the key.
func NewEncrypter(key []byte) (*Encrypter, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Encrypter{key: k}, nil
}

// Encrypt produces a self-contained envelope for plaintext.
func (e *Encrypter) Encrypt(plaintext []byte) ([]byte, error) {
	iv, err := RandomBytes(aes.BlockSize)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	env := envelope{
		IV:    base64.StdEncoding.EncodeToString(iv),
		Value: base64.StdEncoding.EncodeToString(ciphertext),
	}
	env.MAC = e.mac(env.IV, env.Value)

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}

	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// Decrypt verifies the MAC before touching the ciphertext. A wrong key
// surfaces as ErrInvalidMAC.
func (e *Encrypter) Decrypt(payload []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(payload)))
	if err != nil {
		return nil, ErrInvalidPayload
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrInvalidPayload
	}
	if env.IV == "" || env.Value == "" || env.MAC == "" {
		return nil, ErrInvalidPayload
	}

	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, ErrInvalidPayload
	}

	if !hmac.Equal([]byte(e.mac(env.IV, env.Value)), []byte(env.MAC)) {
		return nil, ErrInvalidMAC
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Value)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidPayload
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	return pkcs7Unpad(plain, aes.BlockSize)
}

func (e *Encrypter) mac(iv, value string) string {
	h := hmac.New(sha256.New, e.key)
	h.Write([]byte(iv + value))
	return hex.EncodeToString(h.Sum(nil))
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, ErrInvalidPayload
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrInvalidPayload
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrInvalidPayload
		}
	}
	return b[:len(b)-n], nil
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Wipe overwrites b with zeros. Nil slices are ignored.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
