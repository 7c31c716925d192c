package security

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/angelmondragon/ledgercore-backend/pkg/config"
)

func testSealer(t *testing.T) *CredentialSealer {
	t.Helper()
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	sealer, err := NewCredentialSealer(config.CredentialsConfig{Key: key})
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	return sealer
}

func TestSealOpenRoundTrip(t *testing.T) {
	sealer := testSealer(t)

	sealed, err := sealer.Seal("sk_test_abc123")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("sealed value not recognized: %q", sealed)
	}
	if strings.Contains(sealed, "sk_test_abc123") {
		t.Fatal("plaintext leaked into sealed value")
	}

	opened, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "sk_test_abc123" {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestSealProducesUniqueCiphertexts(t *testing.T) {
	sealer := testSealer(t)
	a, err := sealer.Seal("same-secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, err := sealer.Seal("same-secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if a == b {
		t.Fatal("expected random nonces to produce distinct ciphertexts")
	}
}

func TestOpenRejectsTamperedValues(t *testing.T) {
	sealer := testSealer(t)
	sealed, err := sealer.Seal("sk_test_abc123")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	tampered := sealed[:len(sealed)-2] + "zz"
	if _, err := sealer.Open(tampered); err == nil {
		t.Fatal("expected tampered ciphertext to fail")
	}
	if _, err := sealer.Open("not-sealed-at-all"); err != ErrInvalidCiphertext {
		t.Fatalf("expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestNewCredentialSealerValidatesKey(t *testing.T) {
	if _, err := NewCredentialSealer(config.CredentialsConfig{}); err == nil {
		t.Fatal("expected error for missing key")
	}
	short := base64.StdEncoding.EncodeToString([]byte("too-short"))
	if _, err := NewCredentialSealer(config.CredentialsConfig{Key: short}); err == nil {
		t.Fatal("expected error for short key")
	}
}
