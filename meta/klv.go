// Package meta implements the metadata plane: KLV decoding over borrowed
// buffers, IR radiometric conversion, geodetic telemetry, timing tokens, and
// frame/metadata timestamp fusion.
package meta

import (
	"bytes"
	"errors"
	"fmt"
)

// KeySize is the width of a KLV universal label.
const KeySize = 16

// Key is a 16-byte universal label.
type Key [KeySize]byte

// Well-known MISB universal labels.
var (
	// KeyUASDatalinkLS is the UAS Datalink Local Set label.
	KeyUASDatalinkLS = Key{0x06, 0x0E, 0x2B, 0x34, 0x02, 0x0B, 0x01, 0x01,
		0x0E, 0x01, 0x03, 0x01, 0x01, 0x00, 0x00, 0x00}
	// KeySensorLatitude is the sensor latitude label.
	KeySensorLatitude = Key{0x06, 0x0E, 0x2B, 0x34, 0x01, 0x01, 0x01, 0x03,
		0x07, 0x01, 0x02, 0x01, 0x02, 0x04, 0x02, 0x00}
	// KeySensorLongitude is the sensor longitude label.
	KeySensorLongitude = Key{0x06, 0x0E, 0x2B, 0x34, 0x01, 0x01, 0x01, 0x03,
		0x07, 0x01, 0x02, 0x01, 0x02, 0x04, 0x04, 0x00}
	// KeySensorAltitude is the sensor altitude label.
	KeySensorAltitude = Key{0x06, 0x0E, 0x2B, 0x34, 0x01, 0x01, 0x01, 0x03,
		0x07, 0x01, 0x02, 0x01, 0x02, 0x06, 0x02, 0x00}
)

// Sentinel errors.
var (
	// ErrInvalidArgument rejects nil inputs and malformed length fields.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrOverflow is returned when a length field overruns its buffer.
	ErrOverflow = errors.New("length overruns buffer")
	// ErrUnsupported is returned for unknown metadata formats.
	ErrUnsupported = errors.New("unsupported metadata format")
)

// Item is one parsed KLV triplet. Value borrows from the input buffer: its
// lifetime is strictly bounded by the buffer it was parsed from, and the
// parser never copies value data.
type Item struct {
	Key    Key
	Length uint32
	Value  []byte

	// rawLength is the length field exactly as it appeared in the input,
	// kept so re-serialisation is byte-identical even for non-minimal BER.
	rawLength []byte
}

// ParseKLV decodes a contiguous item list from an unframed byte sequence.
// Length fields use BER encoding: a clear high bit carries the length in the
// low seven bits; a set high bit carries the count (at most 4) of big-endian
// length bytes that follow. Trailing bytes too short to hold a key and a
// length byte are ignored.
//
// Only the item list is allocated; values alias buf.
func ParseKLV(buf []byte) ([]Item, error) {
	items := make([]Item, 0, 16)

	pos := 0
	for pos+KeySize+1 <= len(buf) {
		var item Item
		copy(item.Key[:], buf[pos:pos+KeySize])
		pos += KeySize

		lengthStart := pos
		lengthByte := buf[pos]
		pos++

		var length uint32
		if lengthByte&0x80 != 0 {
			numBytes := int(lengthByte & 0x7F)
			if numBytes > 4 {
				return nil, fmt.Errorf("%w: BER length uses %d bytes", ErrInvalidArgument, numBytes)
			}
			if pos+numBytes > len(buf) {
				return nil, fmt.Errorf("BER length field: %w", ErrOverflow)
			}
			for i := 0; i < numBytes; i++ {
				length = length<<8 | uint32(buf[pos])
				pos++
			}
		} else {
			length = uint32(lengthByte)
		}

		if pos+int(length) > len(buf) {
			return nil, fmt.Errorf("value of %d bytes: %w", length, ErrOverflow)
		}

		item.Length = length
		item.rawLength = buf[lengthStart:pos:pos]
		item.Value = buf[pos : pos+int(length) : pos+int(length)]
		pos += int(length)

		items = append(items, item)
	}

	return items, nil
}

// FindItem returns the first item whose key equals target, or nil. Input
// ordering is preserved by ParseKLV, so "first" is stream order.
func FindItem(items []Item, target Key) *Item {
	for i := range items {
		if bytes.Equal(items[i].Key[:], target[:]) {
			return &items[i]
		}
	}
	return nil
}

// AppendBER appends the BER encoding of length to dst. Lengths up to 127 use
// the short form; larger ones the minimal long form.
func AppendBER(dst []byte, length uint32) []byte {
	if length < 0x80 {
		return append(dst, byte(length))
	}
	var tmp [4]byte
	n := 0
	for v := length; v > 0; v >>= 8 {
		n++
	}
	for i := 0; i < n; i++ {
		tmp[n-1-i] = byte(length >> (8 * i))
	}
	dst = append(dst, 0x80|byte(n))
	return append(dst, tmp[:n]...)
}

// AppendItem re-serialises an item (key, BER length, value) onto dst.
// Items produced by ParseKLV carry their original length encoding, so
// round-tripping over the input buffer is byte-identical; hand-built items
// fall back to the minimal encoding.
func AppendItem(dst []byte, item Item) []byte {
	dst = append(dst, item.Key[:]...)
	if item.rawLength != nil {
		dst = append(dst, item.rawLength...)
	} else {
		dst = AppendBER(dst, item.Length)
	}
	return append(dst, item.Value...)
}
