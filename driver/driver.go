// Package driver defines the kernel capture contract the core consumes.
//
// The real binding to a kernel video subsystem lives outside this module;
// everything here is the contract it must satisfy: capability query, format
// negotiation, mapped-buffer streaming, and control access. The sim
// subpackage provides a deterministic in-memory implementation for tests and
// demonstration.
package driver

import "errors"

// Sentinel errors surfaced by implementations.
var (
	// ErrWouldBlock is returned by Dequeue on a non-blocking descriptor
	// when no buffer is ready.
	ErrWouldBlock = errors.New("resource temporarily unavailable")

	// ErrNoControl is returned by control access when the device does not
	// expose the requested control id.
	ErrNoControl = errors.New("no such control")

	// ErrNotCapture is returned by Open when the target exists but is not
	// a capture-class device.
	ErrNotCapture = errors.New("not a capture device")

	// ErrBusy is returned when a buffer operation conflicts with the
	// current streaming state.
	ErrBusy = errors.New("device busy")
)

// CapFlag is a device capability bitmask.
type CapFlag uint32

const (
	CapVideoCapture CapFlag = 1 << 0
	CapMetaCapture  CapFlag = 1 << 1
	CapStreaming    CapFlag = 1 << 2
)

// Capability describes a device as reported by the capability query.
type Capability struct {
	Driver  string
	Card    string
	BusInfo string
	Caps    CapFlag
}

// BufType selects which buffer queue an operation targets. The metadata
// pathway mirrors the video pathway against its own queue.
type BufType int

const (
	BufVideo BufType = iota
	BufMeta
)

// FourCC is a four-character pixel/metadata format code.
type FourCC uint32

// MakeFourCC builds a FourCC from a four-character string such as "YUYV".
func MakeFourCC(s string) FourCC {
	var b [4]byte
	copy(b[:], s)
	return FourCC(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

// String renders the code back to its four characters.
func (f FourCC) String() string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// Format is a negotiated frame format.
type Format struct {
	PixelFormat FourCC
	Width       uint32
	Height      uint32
}

// FrameSize is one discrete frame size supported by a format.
type FrameSize struct {
	Width  uint32
	Height uint32
}

// Fract is a rational frame interval (frames per second = Denominator/Numerator
// for frame intervals; implementations document their convention).
type Fract struct {
	Numerator   uint32
	Denominator uint32
}

// BufferInfo describes one kernel buffer available for mapping.
type BufferInfo struct {
	Index  uint32
	Length uint32
	Offset uint32
}

// DoneBuffer is a dequeued buffer carrying acquisition metadata.
type DoneBuffer struct {
	Index     uint32
	BytesUsed uint32
	TsNs      uint64
	Sequence  uint32
}

// Device is the per-descriptor capture contract.
//
// Implementations are expected to behave like a non-blocking descriptor:
// Dequeue returns ErrWouldBlock rather than suspending when nothing is ready,
// unless the implementation documents otherwise.
type Device interface {
	// QueryCap reports device identity and capabilities.
	QueryCap() (Capability, error)

	// GetFormat and SetFormat negotiate the frame format for a queue.
	// SetFormat returns the format actually applied, which the device may
	// have adjusted.
	GetFormat(t BufType) (Format, error)
	SetFormat(t BufType, f Format) (Format, error)

	// EnumFrameSizes lists the discrete frame sizes for a pixel format.
	EnumFrameSizes(pix FourCC) ([]FrameSize, error)

	// GetFrameRate and SetFrameRate access the frame interval.
	GetFrameRate() (Fract, error)
	SetFrameRate(fr Fract) (Fract, error)

	// RequestBuffers allocates count mapped-memory buffers on a queue and
	// returns the number actually granted.
	RequestBuffers(t BufType, count uint32) (uint32, error)

	// QueryBuffer describes an allocated buffer for mapping.
	QueryBuffer(t BufType, index uint32) (BufferInfo, error)

	// Mmap maps a buffer read/write shared. The returned slice aliases
	// device memory and remains valid until Munmap.
	Mmap(info BufferInfo) ([]byte, error)
	Munmap(b []byte) error

	// Queue hands a buffer to the device; Dequeue claims a filled one.
	Queue(t BufType, index uint32) error
	Dequeue(t BufType) (DoneBuffer, error)

	// StreamOn and StreamOff toggle streaming on a queue.
	StreamOn(t BufType) error
	StreamOff(t BufType) error

	// GetControl and SetControl access a device control by id.
	GetControl(id uint32) (int32, error)
	SetControl(id uint32, value int32) error

	// Close releases the descriptor.
	Close() error
}

// Opener opens capture devices by path.
type Opener interface {
	Open(path string) (Device, error)
}

// Enumerator is an optional Opener extension listing the device paths the
// opener can serve. Device discovery prefers it over directory scanning.
type Enumerator interface {
	Paths() ([]string, error)
}
