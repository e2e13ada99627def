// Package archive exports signed event chunks for forensic retention and
// loads them back with signature verification.
//
// Chunk files are the wire header followed by the event records the
// signature covers. Backends are pluggable: a local directory for air-gapped
// deployments, S3 for fleet aggregation.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/sign"
	"github.com/swordworks/dsv4l2/types"
)

// ErrCorrupt is returned when a chunk file fails structural validation
// before signature checking.
var ErrCorrupt = errors.New("corrupt chunk file")

// Store abstracts chunk persistence.
type Store interface {
	// Put writes a chunk file under name. Must be atomic per name.
	Put(ctx context.Context, name string, data []byte) error
	// Get reads a chunk file by name.
	Get(ctx context.Context, name string) ([]byte, error)
	// List enumerates stored chunk names.
	List(ctx context.Context) ([]string, error)
	// Close releases backend resources.
	Close() error
}

// ChunkName formats the canonical file name for a chunk id.
func ChunkName(chunkID uint64) string {
	return fmt.Sprintf("chunk-%016x.bin", chunkID)
}

// EncodeChunk serialises header ‖ event records.
func EncodeChunk(header types.ChunkHeader, events []types.Event) []byte {
	out := make([]byte, 0, types.ChunkHeaderSize+len(events)*types.EventWireSize)
	out = header.AppendWire(out)
	for i := range events {
		out = events[i].AppendWire(out)
	}
	return out
}

// DecodeChunk splits a chunk file into its header and event records,
// validating the count against the payload length.
func DecodeChunk(data []byte) (types.ChunkHeader, []types.Event, error) {
	header, err := types.DecodeChunkHeader(data)
	if err != nil {
		return types.ChunkHeader{}, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	payload := data[types.ChunkHeaderSize:]
	if uint64(len(payload)) != header.Count*types.EventWireSize {
		return types.ChunkHeader{}, nil, fmt.Errorf("%w: %d records declared, %d bytes present",
			ErrCorrupt, header.Count, len(payload))
	}
	events, err := types.DecodeEvents(payload)
	if err != nil {
		return types.ChunkHeader{}, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return header, events, nil
}

// VerifyChunk checks the header signature against the event byte image.
// Returns sign.ErrBadSignature on mismatch.
func VerifyChunk(header types.ChunkHeader, events []types.Event, signer sign.Signer) error {
	return signer.Verify(types.EncodeEvents(events), header.Signature)
}

// Exporter drains signed chunks from a runtime into a store.
type Exporter struct {
	runtime *rt.Runtime
	store   Store
}

// NewExporter creates an exporter over the given runtime and store.
func NewExporter(runtime *rt.Runtime, store Store) (*Exporter, error) {
	if runtime == nil || store == nil {
		return nil, errors.New("exporter requires a runtime and a store")
	}
	return &Exporter{runtime: runtime, store: store}, nil
}

// ExportPending extracts and persists signed chunks until the ring is empty.
// Returns the number of chunks written. An empty ring is not an error.
func (e *Exporter) ExportPending(ctx context.Context) (int, error) {
	written := 0
	for {
		header, events, err := e.runtime.GetSignedChunk()
		if errors.Is(err, rt.ErrBufferEmpty) {
			return written, nil
		}
		if err != nil {
			return written, err
		}
		if err := e.store.Put(ctx, ChunkName(header.ChunkID), EncodeChunk(header, events)); err != nil {
			return written, fmt.Errorf("store chunk %d: %w", header.ChunkID, err)
		}
		written++
	}
}

// Load reads a chunk by name and verifies its signature with the runtime's
// signer.
func (e *Exporter) Load(ctx context.Context, name string) (types.ChunkHeader, []types.Event, error) {
	data, err := e.store.Get(ctx, name)
	if err != nil {
		return types.ChunkHeader{}, nil, err
	}
	header, events, err := DecodeChunk(data)
	if err != nil {
		return types.ChunkHeader{}, nil, err
	}
	if err := VerifyChunk(header, events, e.runtime.Signer()); err != nil {
		return types.ChunkHeader{}, nil, err
	}
	return header, events, nil
}
