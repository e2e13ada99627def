package device

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/swordworks/dsv4l2/driver"
	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/types"
)

// RequestBuffers allocates and maps count kernel buffers on the video queue,
// then queues all of them. Previously mapped buffers are released first.
func (d *Device) RequestBuffers(count uint32) error {
	if count == 0 {
		return fmt.Errorf("%w: zero buffer count", ErrInvalidArgument)
	}
	if err := d.ReleaseBuffers(); err != nil {
		return err
	}

	granted, err := d.drv.RequestBuffers(driver.BufVideo, count)
	if err != nil {
		return &IOError{Op: "request buffers", Err: err}
	}

	buffers := make([]mappedBuffer, 0, int(granted))
	for i := uint32(0); i < granted; i++ {
		info, err := d.drv.QueryBuffer(driver.BufVideo, i)
		if err != nil {
			d.unmapAll(buffers)
			return &IOError{Op: fmt.Sprintf("query buffer %d", i), Err: err}
		}
		data, err := d.drv.Mmap(info)
		if err != nil {
			d.unmapAll(buffers)
			return &IOError{Op: fmt.Sprintf("mmap buffer %d", i), Err: err}
		}
		buffers = append(buffers, mappedBuffer{data: data, info: info})
	}

	for i := range buffers {
		if err := d.drv.Queue(driver.BufVideo, buffers[i].info.Index); err != nil {
			d.unmapAll(buffers)
			return &IOError{Op: fmt.Sprintf("queue buffer %d", i), Err: err}
		}
	}

	d.buffers = buffers
	return nil
}

func (d *Device) unmapAll(buffers []mappedBuffer) {
	for i := range buffers {
		_ = d.drv.Munmap(buffers[i].data)
	}
}

// ReleaseBuffers unmaps every mapped buffer. Frames resolved from these
// buffers are invalid afterwards.
func (d *Device) ReleaseBuffers() error {
	var err error
	for i := range d.buffers {
		err = multierr.Append(err, d.drv.Munmap(d.buffers[i].data))
	}
	d.buffers = nil
	return err
}

// BufferCount returns the number of mapped buffers.
func (d *Device) BufferCount() int { return len(d.buffers) }

// BufferBytes resolves the mapped region of buffer index.
func (d *Device) BufferBytes(index uint32) ([]byte, error) {
	if int(index) >= len(d.buffers) {
		return nil, fmt.Errorf("%w: buffer index %d", ErrInvalidArgument, index)
	}
	return d.buffers[index].data, nil
}

// QueueBuffer hands buffer index back to the device.
func (d *Device) QueueBuffer(index uint32) error {
	if int(index) >= len(d.buffers) {
		return fmt.Errorf("%w: buffer index %d", ErrInvalidArgument, index)
	}
	if err := d.drv.Queue(driver.BufVideo, index); err != nil {
		return &IOError{Op: fmt.Sprintf("queue buffer %d", index), Err: err}
	}
	return nil
}

// DequeueBuffer claims the next filled buffer. On a non-blocking descriptor
// with nothing ready the driver's ErrWouldBlock is surfaced unchanged.
func (d *Device) DequeueBuffer() (driver.DoneBuffer, error) {
	done, err := d.drv.Dequeue(driver.BufVideo)
	if err != nil {
		if errors.Is(err, driver.ErrWouldBlock) {
			return driver.DoneBuffer{}, err
		}
		return driver.DoneBuffer{}, &IOError{Op: "dequeue buffer", Err: err}
	}
	return done, nil
}

// EnsureStreaming starts the video stream if it is not already running,
// emitting CaptureStart on the transition.
func (d *Device) EnsureStreaming() error {
	if d.streaming {
		return nil
	}
	if err := d.drv.StreamOn(driver.BufVideo); err != nil {
		return &IOError{Op: "stream on", Err: err}
	}
	d.streaming = true
	rt.EmitSimple(d.devID, types.EventCaptureStart, types.SevInfo, 0)
	return nil
}

// StopStreaming stops the video stream, emitting CaptureStop on the
// transition. A no-op when not streaming.
func (d *Device) StopStreaming() error {
	if !d.streaming {
		return nil
	}
	if err := d.drv.StreamOff(driver.BufVideo); err != nil {
		return &IOError{Op: "stream off", Err: err}
	}
	d.streaming = false
	rt.EmitSimple(d.devID, types.EventCaptureStop, types.SevInfo, 0)
	return nil
}
