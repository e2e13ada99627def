package meta

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/swordworks/dsv4l2/driver"
	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/types"
)

// DefaultBufferCount is the metadata buffer pool size.
const DefaultBufferCount = 4

// Stream is the metadata capture pathway. It mirrors the frame plane against
// the driver's metadata queue and hands out packets whose payloads are
// copied out of the mapped buffers.
type Stream struct {
	drv     driver.Device
	devID   uint32
	format  Format
	buffers [][]byte
	open    bool
}

// StreamConfig configures OpenStream.
type StreamConfig struct {
	// Format is the expected payload format. Required.
	Format Format
	// BufferCount overrides the pool size (default 4).
	BufferCount uint32
}

// OpenStream prepares the metadata queue: request, map, and queue buffers,
// then start streaming.
func OpenStream(drv driver.Device, devID uint32, cfg StreamConfig) (*Stream, error) {
	if drv == nil {
		return nil, fmt.Errorf("%w: nil driver", ErrInvalidArgument)
	}
	if cfg.Format == FormatUnknown {
		return nil, fmt.Errorf("%w: unknown", ErrUnsupported)
	}
	count := cfg.BufferCount
	if count == 0 {
		count = DefaultBufferCount
	}

	granted, err := drv.RequestBuffers(driver.BufMeta, count)
	if err != nil {
		return nil, fmt.Errorf("request metadata buffers: %w", err)
	}

	s := &Stream{drv: drv, devID: devID, format: cfg.Format}
	for i := uint32(0); i < granted; i++ {
		info, err := drv.QueryBuffer(driver.BufMeta, i)
		if err != nil {
			s.unmap()
			return nil, fmt.Errorf("query metadata buffer %d: %w", i, err)
		}
		data, err := drv.Mmap(info)
		if err != nil {
			s.unmap()
			return nil, fmt.Errorf("mmap metadata buffer %d: %w", i, err)
		}
		s.buffers = append(s.buffers, data)
		if err := drv.Queue(driver.BufMeta, i); err != nil {
			s.unmap()
			return nil, fmt.Errorf("queue metadata buffer %d: %w", i, err)
		}
	}

	if err := s.drv.StreamOn(driver.BufMeta); err != nil {
		s.unmap()
		return nil, fmt.Errorf("metadata stream on: %w", err)
	}
	s.open = true
	return s, nil
}

// Read dequeues one metadata buffer, decodes it under the configured format,
// and requeues the buffer. ErrWouldBlock surfaces unchanged when nothing is
// ready.
func (s *Stream) Read() (Packet, error) {
	if !s.open {
		return Packet{}, fmt.Errorf("%w: stream closed", ErrInvalidArgument)
	}

	done, err := s.drv.Dequeue(driver.BufMeta)
	if err != nil {
		return Packet{}, err
	}

	if int(done.Index) >= len(s.buffers) {
		return Packet{}, fmt.Errorf("%w: metadata buffer index %d", ErrInvalidArgument, done.Index)
	}
	payload := s.buffers[done.Index][:done.BytesUsed]

	pkt, decodeErr := decodePayload(s.format, payload, done.TsNs, done.Sequence)

	// Requeue regardless of decode outcome; the payload was copied.
	if err := s.drv.Queue(driver.BufMeta, done.Index); err != nil {
		return Packet{}, fmt.Errorf("requeue metadata buffer %d: %w", done.Index, err)
	}
	if decodeErr != nil {
		return Packet{}, decodeErr
	}

	rt.EmitSimple(s.devID, types.EventMetaRead, types.SevDebug, done.Sequence)
	return pkt, nil
}

// Poll reads packets until the queue runs dry or max packets are collected.
// A max of zero means no limit beyond the queue contents.
func (s *Stream) Poll(max int) ([]Packet, error) {
	var packets []Packet
	for max <= 0 || len(packets) < max {
		pkt, err := s.Read()
		if err != nil {
			if errors.Is(err, driver.ErrWouldBlock) {
				break
			}
			return packets, err
		}
		packets = append(packets, pkt)
	}
	return packets, nil
}

// Close stops metadata streaming and unmaps the buffer pool.
func (s *Stream) Close() error {
	if !s.open {
		return nil
	}
	s.open = false
	err := s.drv.StreamOff(driver.BufMeta)
	err = multierr.Append(err, s.unmap())
	return err
}

func (s *Stream) unmap() error {
	var err error
	for _, b := range s.buffers {
		err = multierr.Append(err, s.drv.Munmap(b))
	}
	s.buffers = nil
	return err
}
