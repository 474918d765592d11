package nostrmodel

// Signer produces a schnorr signature over an event id for a given private
// key. Used by the HTTP admin API's /relay/test endpoint to construct a
// signed, encrypted test event without the model package knowing anything
// about key encoding.
type Signer interface {
	Sign(idHex, privKeyHex string) (sigHex string, err error)
	PubKeyFor(privKeyHex string) (pubKeyHex string, err error)
}

// Encrypter implements the NIP-04 symmetric scheme used by the /relay/test
// admin endpoint: an ECDH shared secret between a local private key and a
// remote public key, then AES-CBC over that secret. The inbound websocket's
// private-mode gate does not use it (see cryptoutil.RawCBC).
type Encrypter interface {
	Encrypt(plaintext, privKeyHex, pubKeyHex string) (ciphertext string, err error)
	Decrypt(ciphertext, privKeyHex, pubKeyHex string) (plaintext string, err error)
}
