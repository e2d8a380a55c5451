package assembly

import (
	"fmt"
)

const (
	DefaultPayloadName   = "export.bin"
	DefaultSignatureName = "export.sig"
)

// Signer produces a signature over a payload.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
}

// SignatureEncoder wraps a raw signature into the bytes stored in the archive.
type SignatureEncoder func(signature []byte) ([]byte, error)

// SigningDecorator signs the payload entry of an archive and stores the
// encoded signature next to it.
type SigningDecorator struct {
	*Archive
	signer Signer
	encode SignatureEncoder

	PayloadName   string
	SignatureName string
}

func NewSigningDecorator(a *Archive, signer Signer, encode SignatureEncoder) *SigningDecorator {
	return &SigningDecorator{
		Archive:       a,
		signer:        signer,
		encode:        encode,
		PayloadName:   DefaultPayloadName,
		SignatureName: DefaultSignatureName,
	}
}

func (s *SigningDecorator) Prepare(stack IndexStack) error {
	if err := s.Archive.Prepare(stack); err != nil {
		return wrapPrepare(s, err)
	}

	payload, ok := s.Entry(s.PayloadName)
	if !ok {
		return wrapPrepare(s, fmt.Errorf("%w: missing %s", ErrEmptyArchive, s.PayloadName))
	}

	signature, err := s.signer.Sign(payload.Bytes())
	if err != nil {
		return wrapPrepare(s, fmt.Errorf("sign %s: %w", s.PayloadName, err))
	}

	content := signature
	if s.encode != nil {
		content, err = s.encode(signature)
		if err != nil {
			return wrapPrepare(s, fmt.Errorf("encode signature: %w", err))
		}
	}

	s.PutFile(NewFile(s.SignatureName, content))
	return nil
}

var _ Writable = (*SigningDecorator)(nil)
