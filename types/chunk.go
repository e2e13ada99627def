package types

import "encoding/binary"

// SignatureSize is the fixed width of a chunk signature.
const SignatureSize = 256

// ChunkHeaderSize is the encoded size of a ChunkHeader.
const ChunkHeaderSize = 8 + 8 + 8 + SignatureSize

// ChunkHeader binds a batch of event records to a signature. The signature
// covers the concatenated event records only, never the header itself.
type ChunkHeader struct {
	// ChunkID is strictly monotonic across the process lifetime.
	ChunkID uint64
	// AnchorTsNs is the timestamp of the first event in the chunk.
	AnchorTsNs uint64
	// Count is the number of event records that follow the header.
	Count uint64
	// Signature is the 256-byte signature over the event byte image.
	Signature [SignatureSize]byte
}

// PutWire encodes the header into b, which must hold ChunkHeaderSize bytes.
func (h *ChunkHeader) PutWire(b []byte) error {
	if len(b) < ChunkHeaderSize {
		return ErrShortRecord
	}
	binary.LittleEndian.PutUint64(b[0:8], h.ChunkID)
	binary.LittleEndian.PutUint64(b[8:16], h.AnchorTsNs)
	binary.LittleEndian.PutUint64(b[16:24], h.Count)
	copy(b[24:ChunkHeaderSize], h.Signature[:])
	return nil
}

// AppendWire appends the encoded header to dst and returns the extended slice.
func (h *ChunkHeader) AppendWire(dst []byte) []byte {
	var rec [ChunkHeaderSize]byte
	_ = h.PutWire(rec[:])
	return append(dst, rec[:]...)
}

// DecodeChunkHeader decodes a header from the front of b.
func DecodeChunkHeader(b []byte) (ChunkHeader, error) {
	var h ChunkHeader
	if len(b) < ChunkHeaderSize {
		return h, ErrShortRecord
	}
	h.ChunkID = binary.LittleEndian.Uint64(b[0:8])
	h.AnchorTsNs = binary.LittleEndian.Uint64(b[8:16])
	h.Count = binary.LittleEndian.Uint64(b[16:24])
	copy(h.Signature[:], b[24:ChunkHeaderSize])
	return h, nil
}
