package capture

import (
	"fmt"

	"github.com/swordworks/dsv4l2/device"
	"github.com/swordworks/dsv4l2/meta"
	"github.com/swordworks/dsv4l2/policy"
	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/types"
)

// offloadCandidate is the auxiliary flag on FusedCapture events marking the
// composition as a candidate for accelerator offload. External planners
// rediscover the tag from the telemetry stream; the core composes inline.
const offloadCandidate = 1

// FusedResult is a frame with its timestamp-correlated metadata packet.
type FusedResult struct {
	Frame  Frame[Generic]
	Packet meta.Packet
	// PacketIndex is the index of the matched packet within the polled
	// metadata batch.
	PacketIndex int
}

// FusedCapture acquires a generic frame and independently reads metadata
// from the stream, correlating the two by the device's fusion window. Fails
// with meta.ErrNoMatch when no packet lies within the window.
func FusedCapture(dev *device.Device, g *policy.Grant, stream *meta.Stream) (FusedResult, error) {
	if dev == nil || stream == nil {
		return FusedResult{}, fmt.Errorf("%w: nil device or stream", ErrInvalidArgument)
	}

	rt.EmitSimple(dev.DeviceID(), types.EventFusedCapture, types.SevMedium, offloadCandidate)

	frame, err := Next(dev, g)
	if err != nil {
		return FusedResult{}, err
	}

	packets, err := stream.Poll(0)
	if err != nil {
		return FusedResult{}, err
	}

	idx, err := meta.SyncTimestamps(frame.TsNs(), packets, dev.FusionWindow())
	if err != nil {
		return FusedResult{}, err
	}

	return FusedResult{Frame: frame, Packet: packets[idx], PacketIndex: idx}, nil
}
