package types

import (
	"encoding/binary"
	"errors"
)

// EventWireSize is the size of one encoded event record.
// Layout (little-endian, no framing):
//
//	ts_ns u64 | dev_id u32 | event_type u16 | severity u16 |
//	aux u32 | layer u32 | role [16]byte | mission [32]byte
const EventWireSize = 8 + 4 + 2 + 2 + 4 + 4 + RoleLen + MissionLen

// ErrShortRecord is returned when a buffer cannot hold a full event record.
var ErrShortRecord = errors.New("short event record")

// PutWire encodes the event into b, which must be at least EventWireSize long.
func (e *Event) PutWire(b []byte) error {
	if len(b) < EventWireSize {
		return ErrShortRecord
	}
	binary.LittleEndian.PutUint64(b[0:8], e.TsNs)
	binary.LittleEndian.PutUint32(b[8:12], e.DevID)
	binary.LittleEndian.PutUint16(b[12:14], uint16(e.Type))
	binary.LittleEndian.PutUint16(b[14:16], uint16(e.Severity))
	binary.LittleEndian.PutUint32(b[16:20], e.Aux)
	binary.LittleEndian.PutUint32(b[20:24], e.Layer)
	copy(b[24:24+RoleLen], e.Role[:])
	copy(b[24+RoleLen:EventWireSize], e.Mission[:])
	return nil
}

// AppendWire appends the encoded event to dst and returns the extended slice.
func (e *Event) AppendWire(dst []byte) []byte {
	var rec [EventWireSize]byte
	_ = e.PutWire(rec[:])
	return append(dst, rec[:]...)
}

// DecodeEvent decodes one event record from the front of b.
func DecodeEvent(b []byte) (Event, error) {
	var e Event
	if len(b) < EventWireSize {
		return e, ErrShortRecord
	}
	e.TsNs = binary.LittleEndian.Uint64(b[0:8])
	e.DevID = binary.LittleEndian.Uint32(b[8:12])
	e.Type = EventType(binary.LittleEndian.Uint16(b[12:14]))
	e.Severity = Severity(binary.LittleEndian.Uint16(b[14:16]))
	e.Aux = binary.LittleEndian.Uint32(b[16:20])
	e.Layer = binary.LittleEndian.Uint32(b[20:24])
	copy(e.Role[:], b[24:24+RoleLen])
	copy(e.Mission[:], b[24+RoleLen:EventWireSize])
	return e, nil
}

// EncodeEvents concatenates the wire images of events. The result is the
// byte image that chunk signatures are computed over.
func EncodeEvents(events []Event) []byte {
	out := make([]byte, 0, len(events)*EventWireSize)
	for i := range events {
		out = events[i].AppendWire(out)
	}
	return out
}

// DecodeEvents splits a concatenation of event records. The input length must
// be a multiple of EventWireSize.
func DecodeEvents(b []byte) ([]Event, error) {
	if len(b)%EventWireSize != 0 {
		return nil, ErrShortRecord
	}
	events := make([]Event, 0, len(b)/EventWireSize)
	for off := 0; off < len(b); off += EventWireSize {
		e, err := DecodeEvent(b[off:])
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
