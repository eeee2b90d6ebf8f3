package peering

import (
	"encoding/base64"
	"testing"
)

func TestGenerateKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	priv, err := base64.StdEncoding.DecodeString(kp.PrivateKey)
	if err != nil {
		t.Fatalf("PrivateKey is not valid base64: %v", err)
	}
	if len(priv) != 32 {
		t.Errorf("PrivateKey length = %d, want 32", len(priv))
	}

	pub, err := base64.StdEncoding.DecodeString(kp.PublicKey)
	if err != nil {
		t.Fatalf("PublicKey is not valid base64: %v", err)
	}
	if len(pub) != 32 {
		t.Errorf("PublicKey length = %d, want 32", len(pub))
	}
}

func TestGenerateKeyPair_ProducesDistinctKeys(t *testing.T) {
	a, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	b, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if a.PrivateKey == b.PrivateKey {
		t.Error("expected two independent calls to produce distinct private keys")
	}
}
