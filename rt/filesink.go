package rt

import (
	"fmt"
	"os"
	"sync"

	"github.com/swordworks/dsv4l2/types"
)

// FileSink appends fixed-size event records to a file. Records are
// self-describing by position only; there is no framing. Replay with
// ReadEventFile.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewFileSink opens (creating if needed) an append-only event file.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open event file %s: %w", path, err)
	}
	return &FileSink{file: f, path: path}, nil
}

// Write appends a batch of records. Write errors are swallowed: the sink
// contract forbids surfacing failures to producers.
func (s *FileSink) Write(batch []types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return
	}
	_, _ = s.file.Write(types.EncodeEvents(batch))
}

// Func adapts the sink to the runtime sink signature.
func (s *FileSink) Func() SinkFunc { return s.Write }

// Sync flushes file contents to stable storage.
func (s *FileSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

// Close syncs and closes the file. Further writes are dropped.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Sync()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	return err
}

// ReadEventFile replays an event file written by FileSink. The file length
// must be a multiple of the record size.
func ReadEventFile(path string) ([]types.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event file %s: %w", path, err)
	}
	events, err := types.DecodeEvents(data)
	if err != nil {
		return nil, fmt.Errorf("decode event file %s: %w", path, err)
	}
	return events, nil
}
