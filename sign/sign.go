// Package sign defines the chunk-signing contract and the documented
// fallback used when no hardware signer is present.
//
// A hardware signer binds signatures to a device-resident key; the fallback
// is a deterministic byte pattern over the chunk contents so integration code
// can exercise the contract end to end. Fallback signatures carry no
// attestation and must not be relied on for audit.
package sign

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"

	"github.com/swordworks/dsv4l2/types"
)

// ErrBadSignature is returned by Verify when a signature does not match the
// event byte image it accompanies.
var ErrBadSignature = errors.New("bad chunk signature")

// Signer produces a fixed-width signature over an event byte image.
//
// Hardware implementations satisfy this contract with a device-resident key
// (for example a persistent TPM signing key); Sign must be deterministic for
// a given image and key.
type Signer interface {
	// Sign computes the signature over image, the exact concatenation of
	// event wire records.
	Sign(image []byte) ([types.SignatureSize]byte, error)

	// Verify checks a signature previously produced over image. Returns
	// ErrBadSignature on mismatch.
	Verify(image []byte, sig [types.SignatureSize]byte) error

	// Hardware reports whether signatures are bound to a hardware key.
	// Callers relying on signatures for audit must require true.
	Hardware() bool
}

// fallbackFill pads the fallback signature beyond the content digest.
const fallbackFill = 0x5A

// Fallback is the software stand-in signer: the first 32 bytes are the
// SHA-256 of the image, the remainder is a fixed 0x5A fill. Content-bound
// and deterministic, but carries no key material.
type Fallback struct{}

// Sign implements Signer.
func (Fallback) Sign(image []byte) ([types.SignatureSize]byte, error) {
	var sig [types.SignatureSize]byte
	digest := sha256.Sum256(image)
	copy(sig[:], digest[:])
	for i := len(digest); i < len(sig); i++ {
		sig[i] = fallbackFill
	}
	return sig, nil
}

// Verify implements Signer.
func (f Fallback) Verify(image []byte, sig [types.SignatureSize]byte) error {
	want, _ := f.Sign(image)
	if subtle.ConstantTimeCompare(want[:], sig[:]) != 1 {
		return ErrBadSignature
	}
	return nil
}

// Hardware implements Signer.
func (Fallback) Hardware() bool { return false }

var _ Signer = Fallback{}
