// Package signing signs export payloads with ECDSA P-256 over SHA-256.
package signing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quatton/expodist/pkg/export"
)

// Algorithm is the OID of ECDSA with SHA-256, as advertised in SignatureInfo.
const Algorithm = "1.2.840.10045.4.3.2"

// KeyProvider supplies the private key used for signing.
type KeyProvider interface {
	PrivateKey() (*ecdsa.PrivateKey, error)
}

// FileKeyProvider reads a PEM encoded key from Path on every call.
type FileKeyProvider struct {
	Path string
}

func (p FileKeyProvider) PrivateKey() (*ecdsa.PrivateKey, error) {
	return LoadKey(p.Path)
}

// StaticKeyProvider returns a key held in memory.
type StaticKeyProvider struct {
	Key *ecdsa.PrivateKey
}

func (p StaticKeyProvider) PrivateKey() (*ecdsa.PrivateKey, error) {
	if p.Key == nil {
		return nil, ErrNoKey
	}
	return p.Key, nil
}

// LoadKey reads a PEM encoded EC private key (SEC1 or PKCS#8) from path.
func LoadKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return ParseKey(data)
}

// ParseKey parses a PEM encoded EC private key and checks that it is on P-256.
func ParseKey(data []byte) (*ecdsa.PrivateKey, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, key.Curve.Params().Name)
	}
	return key, nil
}

// Signer produces DER encoded ECDSA signatures.
type Signer struct {
	key *ecdsa.PrivateKey
}

func NewSigner(provider KeyProvider) (*Signer, error) {
	key, err := provider.PrivateKey()
	if err != nil {
		return nil, err
	}
	if key.Curve != elliptic.P256() {
		return nil, ErrUnsupportedCurve
	}
	return &Signer{key: key}, nil
}

func (s *Signer) Sign(payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	return ecdsa.SignASN1(rand.Reader, s.key, digest[:])
}

func (s *Signer) PublicKey() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

// Verify checks a signature produced by Sign.
func Verify(pub *ecdsa.PublicKey, payload, signature []byte) bool {
	digest := sha256.Sum256(payload)
	return ecdsa.VerifyASN1(pub, digest[:], signature)
}

// SignatureListEncoder wraps a raw signature into a single-entry
// TEKSignatureList carrying info.
func SignatureListEncoder(info export.SignatureInfo) func([]byte) ([]byte, error) {
	return func(signature []byte) ([]byte, error) {
		return export.MarshalSignatureList(export.TEKSignatureList{
			Signatures: []export.TEKSignature{{
				SignatureInfo: info,
				BatchNum:      1,
				BatchSize:     1,
				Signature:     signature,
			}},
		}), nil
	}
}
