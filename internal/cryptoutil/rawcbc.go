package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// RawCBC is a directly-keyed AES-256-CBC cipher, grounded on cbc.py's
// AESCipher (which takes a raw key, not an ECDH-derived one) rather than the
// ECDH-based NIP04Encrypter. It backs the inbound websocket's private-mode
// gate: the server derives a fixed key from AppConfig.AdminToken and uses it
// to decrypt the {ws_id} path segment (base64url(iv || ciphertext)).
type RawCBC struct {
	key [32]byte
}

// NewRawCBC derives a 32-byte AES key from secret via sha256, matching the
// "compatible with crypto.createCipheriv('aes-256-cbc')" contract cbc.py
// documents for its own key parameter.
func NewRawCBC(secret string) RawCBC {
	return RawCBC{key: sha256.Sum256([]byte(secret))}
}

// Decrypt reverses Encrypt's base64url(iv || ciphertext) wire format.
func (c RawCBC) Decrypt(wireValue string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(wireValue)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: decode raw cbc payload: %w", err)
	}
	if len(raw) <= aesBlockSize || (len(raw)-aesBlockSize)%aesBlockSize != 0 {
		return "", fmt.Errorf("cryptoutil: invalid raw cbc payload length")
	}
	iv, ciphertext := raw[:aesBlockSize], raw[aesBlockSize:]

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", fmt.Errorf("cryptoutil: new cipher: %w", err)
	}
	plainPadded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plainPadded, ciphertext)
	plain, err := pkcs7Unpad(plainPadded)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Encrypt produces the base64url(iv || ciphertext) wire format Decrypt
// expects. Exposed for tests and for any future admin tooling that needs to
// mint private-mode ws_id values.
func (c RawCBC) Encrypt(plaintext string, iv [16]byte) (string, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", fmt.Errorf("cryptoutil: new cipher: %w", err)
	}
	padded := pkcs7Pad([]byte(plaintext))
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(ciphertext, padded)

	out := append(append([]byte{}, iv[:]...), ciphertext...)
	return base64.URLEncoding.EncodeToString(out), nil
}
