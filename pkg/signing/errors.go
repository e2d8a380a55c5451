package signing

import "errors"

var (
	ErrNoKey            = errors.New("signing: no private key configured")
	ErrInvalidKey       = errors.New("signing: invalid private key")
	ErrUnsupportedCurve = errors.New("signing: private key must use P-256")
)
