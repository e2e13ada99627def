package capture

import (
	"errors"
	"fmt"

	"github.com/swordworks/dsv4l2/device"
	"github.com/swordworks/dsv4l2/driver"
	"github.com/swordworks/dsv4l2/policy"
	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/tempest"
	"github.com/swordworks/dsv4l2/types"
)

// ErrInvalidArgument rejects nil devices, streams, and encryptors. Nil,
// mismatched, and reused grants fail with policy.ErrInvalidArgument instead.
var ErrInvalidArgument = errors.New("invalid argument")

// errAux maps a dequeue failure to the auxiliary code carried by the
// FrameDropped event.
func errAux(err error) uint32 {
	if errors.Is(err, driver.ErrWouldBlock) {
		return 11 // EAGAIN
	}
	return 5 // EIO
}

// acquire runs the ordered capture contract shared by both entry points:
// consume the grant, ensure streaming, dequeue, resolve the mapped payload,
// and record the policy consultation. The dequeued buffer is returned to the
// caller, which requeues it; acquire requeues only when payload resolution
// fails.
func acquire(dev *device.Device, g *policy.Grant) (data []byte, done driver.DoneBuffer, err error) {
	if dev == nil {
		return nil, done, fmt.Errorf("%w: nil device", ErrInvalidArgument)
	}
	if err := g.Consume(dev.DeviceID()); err != nil {
		return nil, done, err
	}

	if err := dev.EnsureStreaming(); err != nil {
		return nil, done, err
	}

	done, err = dev.DequeueBuffer()
	if err != nil {
		rt.EmitSimple(dev.DeviceID(), types.EventFrameDropped, types.SevMedium, errAux(err))
		return nil, done, err
	}

	buf, err := dev.BufferBytes(done.Index)
	if err != nil {
		_ = dev.QueueBuffer(done.Index)
		return nil, done, err
	}
	if int(done.BytesUsed) < len(buf) {
		buf = buf[:done.BytesUsed]
	}

	// The consultation that minted the grant, recorded in the device's
	// audit stream ahead of the frame's own event.
	rt.EmitSimple(dev.DeviceID(), types.EventPolicyCheck, types.SevInfo, uint32(g.State()))

	return buf, done, nil
}

// Next acquires one generic frame. The grant carries the TEMPEST state
// consulted at authorization; consuming it here guarantees the policy gate
// ran before any buffer is surrendered.
func Next(dev *device.Device, g *policy.Grant) (Frame[Generic], error) {
	data, done, err := acquire(dev, g)
	if err != nil {
		return Frame[Generic]{}, err
	}

	frame := Frame[Generic]{data: data, tsNs: done.TsNs, sequence: done.Sequence}
	rt.EmitSimple(dev.DeviceID(), types.EventFrameAcquired, types.SevInfo, done.BytesUsed)

	if err := dev.QueueBuffer(done.Index); err != nil {
		return Frame[Generic]{}, err
	}
	return frame, nil
}

// NextBiometric acquires one biometric frame. On top of the generic
// contract it independently rejects LOCKDOWN with its own cache-refreshing
// read, emitting TempestLockdown. The payload is tagged Biometric and never
// branches, indexes, or sinks on its own bytes inside this package.
func NextBiometric(dev *device.Device, g *policy.Grant) (Frame[Biometric], error) {
	if dev == nil {
		return Frame[Biometric]{}, fmt.Errorf("%w: nil device", ErrInvalidArgument)
	}

	rt.EmitSimple(dev.DeviceID(), types.EventIrisCapture, types.SevHigh, 0)

	if state := dev.Tempest().State(); state == tempest.Lockdown {
		rt.EmitSimple(dev.DeviceID(), types.EventTempestLockdown, types.SevCritical, uint32(state))
		return Frame[Biometric]{}, fmt.Errorf("biometric capture: %w: tempest lockdown", policy.ErrDenied)
	}

	data, done, err := acquire(dev, g)
	if err != nil {
		return Frame[Biometric]{}, err
	}

	frame := Frame[Biometric]{data: data, tsNs: done.TsNs, sequence: done.Sequence}
	rt.EmitSimple(dev.DeviceID(), types.EventFrameAcquired, types.SevHigh, done.BytesUsed)

	if err := dev.QueueBuffer(done.Index); err != nil {
		return Frame[Biometric]{}, err
	}
	return frame, nil
}
