package peering

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/curve25519"

	"github.com/autopeerd/autopeerd/pkg/errors"
)

// GenerateKeyPair produces a fresh tunnel keypair the same way the
// external tunnel tool does: a random Curve25519 scalar, clamped per
// RFC 7748, with its corresponding public point, both base64-encoded.
func GenerateKeyPair() (KeyPair, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return KeyPair{}, errors.NewInternalError("generating tunnel private key", err)
	}
	// Clamp per RFC 7748 so the scalar is a valid X25519 private key.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, errors.NewInternalError("deriving tunnel public key", err)
	}

	return KeyPair{
		PrivateKey: base64.StdEncoding.EncodeToString(priv[:]),
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
	}, nil
}
