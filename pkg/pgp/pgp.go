// Package pgp decodes an RFC 4880 cleartext-signed message, checks it
// against a candidate armored public key, and returns the recovered
// plaintext and the signer's fingerprint. It trusts only the candidate
// keys it is handed; no keyring on the host is ever consulted.
package pgp

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"

	"github.com/autopeerd/autopeerd/pkg/errors"
)

// Result is what a successful Verify call recovers.
type Result struct {
	// Plaintext is the cleartext-signature-canonical body of the
	// message: the bytes the signature actually covers, after
	// dash-unescaping and line-ending normalization.
	Plaintext string
	// SignerFingerprint is the verifying key's fingerprint, uppercase
	// hex, no separators — the same form the registry's key-cert
	// fingerprints are compared against.
	SignerFingerprint string
}

// Verify decodes signedMessage as an RFC 4880 cleartext-signed message
// and checks it against candidateArmoredKey. It fails with a BadRequest
// error if signedMessage isn't valid cleartext-signature framing, and
// with an Unauthorized error if candidateArmoredKey can't be parsed or
// contains no keys, or if the signature doesn't verify against it.
func Verify(signedMessage, candidateArmoredKey string) (Result, error) {
	block, _ := clearsign.Decode([]byte(signedMessage))
	if block == nil {
		return Result{}, errors.NewBadRequestError("malformed cleartext-signed message", nil)
	}
	if block.ArmoredSignature == nil {
		return Result{}, errors.NewBadRequestError("cleartext message carries no signature", nil)
	}

	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(candidateArmoredKey))
	if err != nil {
		return Result{}, errors.NewUnauthorizedError("candidate public key could not be parsed", err)
	}
	if len(keyring) == 0 {
		return Result{}, errors.NewUnauthorizedError("candidate public key contains no keys", nil)
	}

	signer, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, nil)
	if err != nil {
		return Result{}, errors.NewUnauthorizedError("signature verification failed", err)
	}
	if signer == nil || signer.PrimaryKey == nil {
		return Result{}, errors.NewUnauthorizedError("signature verified against an unknown key", nil)
	}

	return Result{
		Plaintext:         normalize(block.Plaintext),
		SignerFingerprint: fingerprintHex(signer.PrimaryKey.Fingerprint),
	}, nil
}

// Fingerprint parses a standalone armored public key and returns its
// fingerprint, so a submitted key can be compared against the
// registry-bound fingerprint without performing a full verification.
func Fingerprint(armoredKey string) (string, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armoredKey))
	if err != nil {
		return "", errors.NewBadRequestError("public key could not be parsed", err)
	}
	if len(keyring) == 0 || keyring[0].PrimaryKey == nil {
		return "", errors.NewBadRequestError("public key contains no keys", nil)
	}
	return fingerprintHex(keyring[0].PrimaryKey.Fingerprint), nil
}

// normalize collapses CRLF line endings to LF so plaintext comparisons
// (e.g. against a stored challenge) don't depend on which line ending
// the client's signing tool happened to emit.
func normalize(plaintext []byte) string {
	s := strings.ReplaceAll(string(plaintext), "\r\n", "\n")
	return strings.TrimSpace(s)
}

func fingerprintHex(fp []byte) string {
	return strings.ToUpper(hex.EncodeToString(fp))
}
