package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/quatton/expodist/pkg/export"
)

func writeKey(t *testing.T, curve elliptic.Curve) (string, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "private.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path, key
}

func TestSignAndVerify(t *testing.T) {
	path, key := writeKey(t, elliptic.P256())

	signer, err := NewSigner(FileKeyProvider{Path: path})
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	payload := []byte("EK Export v1    payload")
	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if !Verify(&key.PublicKey, payload, sig) {
		t.Error("Expected signature to verify with the generated key")
	}
	if Verify(&key.PublicKey, []byte("tampered"), sig) {
		t.Error("Expected signature not to verify for a different payload")
	}
}

func TestLoadKey_RejectsOtherCurves(t *testing.T) {
	path, _ := writeKey(t, elliptic.P384())
	if _, err := LoadKey(path); !errors.Is(err, ErrUnsupportedCurve) {
		t.Errorf("Expected ErrUnsupportedCurve, got %v", err)
	}
}

func TestLoadKey_Errors(t *testing.T) {
	if _, err := LoadKey(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("Expected error for missing key file")
	}

	path := filepath.Join(t.TempDir(), "garbage.pem")
	os.WriteFile(path, []byte("not a key"), 0600)
	if _, err := LoadKey(path); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}

	if _, err := NewSigner(StaticKeyProvider{}); !errors.Is(err, ErrNoKey) {
		t.Errorf("Expected ErrNoKey, got %v", err)
	}
}

func TestSignatureListEncoder(t *testing.T) {
	info := export.SignatureInfo{VerificationKeyVersion: "v1", VerificationKeyID: "262", SignatureAlgorithm: Algorithm}
	encoded, err := SignatureListEncoder(info)([]byte{1, 2, 3})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	list, err := export.UnmarshalSignatureList(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(list.Signatures) != 1 {
		t.Fatalf("Expected 1 signature, got %d", len(list.Signatures))
	}
	if list.Signatures[0].SignatureInfo != info {
		t.Errorf("Expected info %+v, got %+v", info, list.Signatures[0].SignatureInfo)
	}
}
