package meta

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format discriminates metadata payloads.
type Format int

const (
	FormatUnknown   Format = 0
	FormatKLV       Format = 1
	FormatIRTemp    Format = 2
	FormatTelemetry Format = 3
	FormatTiming    Format = 4
)

func (f Format) String() string {
	switch f {
	case FormatKLV:
		return "KLV"
	case FormatIRTemp:
		return "IR_TEMP"
	case FormatTelemetry:
		return "TELEMETRY"
	case FormatTiming:
		return "TIMING"
	default:
		return "UNKNOWN"
	}
}

// Telemetry is a geodetic platform fix.
type Telemetry struct {
	// Latitude and Longitude are WGS84 degrees.
	Latitude  float64
	Longitude float64
	// Altitude is meters above MSL.
	Altitude float32
	// Heading is degrees true north.
	Heading float32
	Pitch   float32
	Roll    float32
	// Velocity is m/s along x, y, z.
	Velocity [3]float32
	TsNs     uint64
}

// Timing carries a frame timestamp synchronisation token.
type Timing struct {
	FrameTsNs uint64
	SyncToken uint64
}

// Packet is one captured metadata buffer with its format-discriminated
// payload. Exactly one of KLV, IR, Telemetry, Timing is populated.
type Packet struct {
	Format   Format
	TsNs     uint64
	Sequence uint32

	// KLV is the raw KLV byte stream, copied out of the device buffer so
	// the packet outlives the requeue.
	KLV []byte
	// IR is the decoded radiometric map.
	IR *IRRadiometric
	// Telemetry is the decoded platform fix.
	Telemetry *Telemetry
	// Timing is the decoded sync token.
	Timing *Timing
}

// Payload wire sizes for the fixed-layout formats.
const (
	irHeaderSize      = 4 + 4 + 4 + 4
	telemetryWireSize = 8 + 8 + 4 + 4 + 4 + 4 + 3*4
	timingWireSize    = 8 + 8
)

// decodePayload interprets a raw metadata payload under format. KLV bytes
// are copied; fixed-layout formats are decoded little-endian.
func decodePayload(format Format, payload []byte, tsNs uint64, sequence uint32) (Packet, error) {
	pkt := Packet{Format: format, TsNs: tsNs, Sequence: sequence}

	switch format {
	case FormatKLV:
		pkt.KLV = append([]byte(nil), payload...)

	case FormatIRTemp:
		if len(payload) < irHeaderSize {
			return Packet{}, fmt.Errorf("%w: short IR payload", ErrInvalidArgument)
		}
		width := binary.LittleEndian.Uint32(payload[0:4])
		height := binary.LittleEndian.Uint32(payload[4:8])
		calibration := [2]float32{
			math.Float32frombits(binary.LittleEndian.Uint32(payload[8:12])),
			math.Float32frombits(binary.LittleEndian.Uint32(payload[12:16])),
		}
		pixels := payload[irHeaderSize:]
		if uint32(len(pixels)) < width*height*2 {
			return Packet{}, fmt.Errorf("IR pixel data: %w", ErrOverflow)
		}
		raw := make([]uint16, width*height)
		for i := range raw {
			raw[i] = binary.LittleEndian.Uint16(pixels[i*2:])
		}
		ir, err := DecodeIRRadiometric(raw, width, height, calibration)
		if err != nil {
			return Packet{}, err
		}
		ir.TsNs = tsNs
		pkt.IR = ir

	case FormatTelemetry:
		if len(payload) < telemetryWireSize {
			return Packet{}, fmt.Errorf("%w: short telemetry payload", ErrInvalidArgument)
		}
		t := &Telemetry{
			Latitude:  math.Float64frombits(binary.LittleEndian.Uint64(payload[0:8])),
			Longitude: math.Float64frombits(binary.LittleEndian.Uint64(payload[8:16])),
			Altitude:  math.Float32frombits(binary.LittleEndian.Uint32(payload[16:20])),
			Heading:   math.Float32frombits(binary.LittleEndian.Uint32(payload[20:24])),
			Pitch:     math.Float32frombits(binary.LittleEndian.Uint32(payload[24:28])),
			Roll:      math.Float32frombits(binary.LittleEndian.Uint32(payload[28:32])),
			TsNs:      tsNs,
		}
		for i := 0; i < 3; i++ {
			t.Velocity[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[32+i*4:]))
		}
		pkt.Telemetry = t

	case FormatTiming:
		if len(payload) < timingWireSize {
			return Packet{}, fmt.Errorf("%w: short timing payload", ErrInvalidArgument)
		}
		pkt.Timing = &Timing{
			FrameTsNs: binary.LittleEndian.Uint64(payload[0:8]),
			SyncToken: binary.LittleEndian.Uint64(payload[8:16]),
		}

	default:
		return Packet{}, fmt.Errorf("%w: %d", ErrUnsupported, format)
	}

	return pkt, nil
}
