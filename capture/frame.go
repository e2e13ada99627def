// Package capture implements the frame acquisition pipeline. Every entry
// point consumes a policy.Grant, so a frame cannot be produced without a
// prior policy consultation, and frames carry a capability tag in their
// static type: Frame[Generic] and Frame[Biometric] are distinct types, and
// free-form sinks accept only the former.
package capture

import "fmt"

// Class is the sealed capability tag of a frame. Generic and Biometric are
// the only implementations.
type Class interface {
	class()
}

// Generic tags frames that may flow to free-form sinks.
type Generic struct{}

func (Generic) class() {}

// Biometric tags frames whose payload is a secret capability: barred from
// textual, network, and file sinks, and from secret-dependent control flow.
type Biometric struct{}

func (Biometric) class() {}

// Frame is a captured frame. The payload aliases the device's mapped buffer
// and is valid only until that buffer is refilled by a later capture on the
// same device.
type Frame[C Class] struct {
	data     []byte
	tsNs     uint64
	sequence uint32
}

// Len returns the payload length in bytes.
func (f Frame[C]) Len() int { return len(f.data) }

// TsNs returns the acquisition timestamp.
func (f Frame[C]) TsNs() uint64 { return f.tsNs }

// Sequence returns the driver sequence number.
func (f Frame[C]) Sequence() uint32 { return f.sequence }

// String renders frame identity only; payload bytes never appear.
func (f Frame[C]) String() string {
	return fmt.Sprintf("frame{seq=%d len=%d ts=%dns}", f.sequence, len(f.data), f.tsNs)
}

// Data exposes the payload of a generic frame. There is deliberately no
// counterpart for Frame[Biometric]; biometric payloads leave the package
// only through Export.
func Data(f Frame[Generic]) []byte { return f.data }

// Encryptor is the at-rest protection hook for biometric payloads.
type Encryptor interface {
	// Seal encrypts plaintext and returns the protected form.
	Seal(plaintext []byte) ([]byte, error)
}

// Export surrenders a biometric payload through an encryption hook. This is
// the only path by which biometric bytes leave the capture plane.
func Export(f Frame[Biometric], enc Encryptor) ([]byte, error) {
	if enc == nil {
		return nil, fmt.Errorf("%w: nil encryptor", ErrInvalidArgument)
	}
	return enc.Seal(f.data)
}

// FreeSink consumes generic frames. Textual, network, and file destinations
// implement this; the type system keeps biometric frames out.
type FreeSink interface {
	Consume(Frame[Generic]) error
}

// BiometricSink consumes biometric frames. Implementations must keep the
// payload out of logs, free-form storage, and secret-dependent control flow.
type BiometricSink interface {
	ConsumeBiometric(Frame[Biometric]) error
}
