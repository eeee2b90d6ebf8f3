package pgp

import (
	"bytes"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"

	"github.com/autopeerd/autopeerd/pkg/errors"
)

func generateTestKey(t *testing.T) (*openpgp.Entity, string) {
	t.Helper()
	entity, err := openpgp.NewEntity("Test Peer", "", "peer@example.net", nil)
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatalf("armor.Encode: %v", err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close armor writer: %v", err)
	}
	return entity, buf.String()
}

func signMessage(t *testing.T, entity *openpgp.Entity, plaintext string) string {
	t.Helper()
	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, entity.PrivateKey, nil)
	if err != nil {
		t.Fatalf("clearsign.Encode: %v", err)
	}
	if _, err := w.Write([]byte(plaintext)); err != nil {
		t.Fatalf("write plaintext: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close clearsign writer: %v", err)
	}
	return buf.String()
}

func TestVerify_HappyPath(t *testing.T) {
	entity, armoredKey := generateTestKey(t)
	signed := signMessage(t, entity, "AUTOPEER-4242421234-deadbeef")

	result, err := Verify(signed, armoredKey)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Plaintext != "AUTOPEER-4242421234-deadbeef" {
		t.Errorf("Plaintext = %q, want AUTOPEER-4242421234-deadbeef", result.Plaintext)
	}

	wantFP, err := Fingerprint(armoredKey)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if result.SignerFingerprint != wantFP {
		t.Errorf("SignerFingerprint = %q, want %q", result.SignerFingerprint, wantFP)
	}
}

func TestVerify_WrongKey(t *testing.T) {
	entity, _ := generateTestKey(t)
	_, otherArmoredKey := generateTestKey(t)
	signed := signMessage(t, entity, "AUTOPEER-4242421234-deadbeef")

	if _, err := Verify(signed, otherArmoredKey); !errors.IsUnauthorized(err) {
		t.Fatalf("Verify with wrong key error = %v, want unauthorized", err)
	}
}

func TestVerify_MalformedMessage(t *testing.T) {
	_, armoredKey := generateTestKey(t)
	if _, err := Verify("not a cleartext signed message", armoredKey); !errors.IsBadRequest(err) {
		t.Fatalf("Verify of garbage error = %v, want bad request", err)
	}
}

func TestVerify_MalformedCandidateKey(t *testing.T) {
	entity, _ := generateTestKey(t)
	signed := signMessage(t, entity, "AUTOPEER-4242421234-deadbeef")

	if _, err := Verify(signed, "not a key"); !errors.IsUnauthorized(err) {
		t.Fatalf("Verify with malformed candidate key error = %v, want unauthorized", err)
	}
}

func TestFingerprint(t *testing.T) {
	_, armoredKey := generateTestKey(t)
	fp, err := Fingerprint(armoredKey)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if len(fp) != 40 {
		t.Errorf("Fingerprint length = %d, want 40 (v4 fingerprint)", len(fp))
	}
}
