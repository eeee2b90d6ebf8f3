package peering

import (
	"testing"
	"time"
)

func TestRecord_IsPending(t *testing.T) {
	r := &Record{Status: StatusPending}
	if !r.IsPending() {
		t.Error("expected IsPending true for StatusPending")
	}
	r.Status = StatusVerified
	if r.IsPending() {
		t.Error("expected IsPending false for StatusVerified")
	}
}

func TestRecord_HasPeerInfo(t *testing.T) {
	r := &Record{}
	if r.HasPeerInfo() {
		t.Error("expected HasPeerInfo false on zero-value record")
	}
	r.PeerPublicKey = "pub"
	r.PeerEndpoint = "1.2.3.4:1234"
	r.VerifiedAt = time.Now()
	if !r.HasPeerInfo() {
		t.Error("expected HasPeerInfo true once peer fields populated")
	}
}

func TestRecord_ViewRedactsSecrets(t *testing.T) {
	r := &Record{
		ASN:            4242421234,
		Challenge:      "AUTOPEER-4242421234-deadbeef",
		PGPFingerprint: "922CA9191D9D5C1CD28E4D2B935300055E6B8E16",
		LocalKeyPair:   KeyPair{PrivateKey: "priv", PublicKey: "pub"},
	}
	v := r.View()
	if v.ASN != r.ASN {
		t.Errorf("View().ASN = %d, want %d", v.ASN, r.ASN)
	}
	// StatusView has no fields for Challenge, PGPFingerprint, or
	// LocalKeyPair; the compiler enforces the redaction, this test merely
	// documents the intent.
}
