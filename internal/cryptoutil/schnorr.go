// Package cryptoutil supplies the concrete cryptographic adapters behind
// nostrmodel's Verifier/Signer/Encrypter interfaces: schnorr-over-secp256k1
// for event signatures, NIP-04 (ECDH + AES-256-CBC) for the admin test
// endpoint, and a directly-keyed AES-256-CBC cipher (RawCBC) for the inbound
// websocket's private-mode gate.
package cryptoutil

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// RandomPrivKeyHex generates a fresh secp256k1 private key, used by the
// admin test endpoint when the caller doesn't supply one.
func RandomPrivKeyHex() (string, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", fmt.Errorf("cryptoutil: generate private key: %w", err)
	}
	defer priv.Zero()
	return hex.EncodeToString(priv.Serialize()), nil
}

// SchnorrVerifier implements nostrmodel.Verifier, grounded on the teacher's
// validateEventSignature.
type SchnorrVerifier struct{}

// Verify parses idHex/pubKeyHex/sigHex as hex and checks a schnorr signature
// of id under the x-only pubkey. Malformed hex or wrong-length fields are
// treated as verification failures, not errors — callers only need a bool.
func (SchnorrVerifier) Verify(idHex, pubKeyHex, sigHex string) bool {
	if len(sigHex) != 128 || len(pubKeyHex) != 64 {
		return false
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	pubKeyBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false
	}
	idBytes, err := hex.DecodeString(idHex)
	if err != nil {
		return false
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}
	return sig.Verify(idBytes, pubKey)
}

// SchnorrSigner implements nostrmodel.Signer for the admin test endpoint,
// which needs to construct a signed event from a private key supplied (or
// generated) at request time.
type SchnorrSigner struct{}

// Sign produces a schnorr signature of idHex under privKeyHex.
func (SchnorrSigner) Sign(idHex, privKeyHex string) (string, error) {
	privBytes, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: decode private key: %w", err)
	}
	idBytes, err := hex.DecodeString(idHex)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: decode event id: %w", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(privBytes)
	sig, err := schnorr.Sign(priv, idBytes)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: sign: %w", err)
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// PubKeyFor derives the x-only public key hex for a private key.
func (SchnorrSigner) PubKeyFor(privKeyHex string) (string, error) {
	privBytes, err := hex.DecodeString(privKeyHex)
	if err != nil {
		return "", fmt.Errorf("cryptoutil: decode private key: %w", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(privBytes)
	pub, err := schnorr.ParsePubKey(schnorr.SerializePubKey(priv.PubKey()))
	if err != nil {
		return "", fmt.Errorf("cryptoutil: derive public key: %w", err)
	}
	return hex.EncodeToString(schnorr.SerializePubKey(pub)), nil
}
