package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

const aesBlockSize = aes.BlockSize

// NIP04Encrypter implements nostrmodel.Encrypter: an ECDH shared secret
// (the x-coordinate of privKey * pubKey, per NIP-04) used as an AES-256-CBC
// key, wire-formatted as "<base64 ciphertext>?iv=<base64 iv>" the same shape
// the original service's AESCipher produces (PKCS7 padding, random IV per
// call).
type NIP04Encrypter struct{}

func sharedSecret(privKeyHex, pubKeyHex string) ([]byte, error) {
	privBytes, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: decode private key: %w", err)
	}
	pubBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: decode public key: %w", err)
	}
	// NIP-04 public keys are x-only (32 bytes); ECDH needs the full point,
	// so assume the even-y candidate as the reference clients do.
	if len(pubBytes) == 32 {
		pubBytes = append([]byte{0x02}, pubBytes...)
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: parse public key: %w", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(privBytes)

	var point btcec.JacobianPoint
	pub.AsJacobian(&point)
	var result btcec.JacobianPoint
	btcec.ScalarMultNonConst(&priv.Key, &point, &result)
	result.ToAffine()
	x := result.X.Bytes()
	return x[:], nil
}

func pkcs7Pad(data []byte) []byte {
	padLen := aesBlockSize - (len(data) % aesBlockSize)
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cryptoutil: empty ciphertext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("cryptoutil: invalid padding")
	}
	return data[:len(data)-padLen], nil
}

// Encrypt returns "<base64 ciphertext>?iv=<base64 iv>".
func (NIP04Encrypter) Encrypt(plaintext, privKeyHex, pubKeyHex string) (string, error) {
	key, err := sharedSecret(privKeyHex, pubKeyHex)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: new cipher: %w", err)
	}
	iv := make([]byte, aesBlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("cryptoutil: read iv: %w", err)
	}
	padded := pkcs7Pad([]byte(plaintext))
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return fmt.Sprintf("%s?iv=%s",
		base64.StdEncoding.EncodeToString(ciphertext),
		base64.StdEncoding.EncodeToString(iv)), nil
}

// Decrypt reverses Encrypt's wire format.
func (NIP04Encrypter) Decrypt(ciphertextWire, privKeyHex, pubKeyHex string) (string, error) {
	parts := strings.SplitN(ciphertextWire, "?iv=", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("cryptoutil: malformed nip-04 payload")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("cryptoutil: decode ciphertext: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("cryptoutil: decode iv: %w", err)
	}
	if len(iv) != aesBlockSize || len(ciphertext)%aesBlockSize != 0 || len(ciphertext) == 0 {
		return "", fmt.Errorf("cryptoutil: invalid ciphertext/iv length")
	}

	key, err := sharedSecret(privKeyHex, pubKeyHex)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
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
