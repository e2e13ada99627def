package meta_test

import (
	"errors"
	"testing"

	"github.com/swordworks/dsv4l2/meta"
)

func packetsAt(tsNs ...uint64) []meta.Packet {
	packets := make([]meta.Packet, len(tsNs))
	for i, ts := range tsNs {
		packets[i] = meta.Packet{Format: meta.FormatKLV, TsNs: ts, Sequence: uint32(i)}
	}
	return packets
}

func TestSyncTimestamps(t *testing.T) {
	const s = uint64(1_000_000_000)
	packets := packetsAt(1*s, s+100_000_000, s+200_000_000, s+300_000_000, s+400_000_000)
	window := uint64(50_000_000)

	tests := []struct {
		name    string
		frameTs uint64
		want    int
		wantErr bool
	}{
		{"frame at 1.21s matches index 2", s + 210_000_000, 2, false},
		{"frame at 1.14s matches index 1", s + 140_000_000, 1, false},
		{"frame at 0.5s has no match", 500_000_000, -1, true},
		{"delta exactly at window matches", s + 350_000_000, 3, false},
		{"delta at window plus one fails", s + 450_000_001, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := meta.SyncTimestamps(tt.frameTs, packets, window)
			if tt.wantErr {
				if !errors.Is(err, meta.ErrNoMatch) {
					t.Fatalf("SyncTimestamps = (%d, %v), want ErrNoMatch", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SyncTimestamps failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("index = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSyncTimestampsEmptyInput(t *testing.T) {
	if _, err := meta.SyncTimestamps(123, nil, meta.DefaultFusionWindowNs); !errors.Is(err, meta.ErrNoMatch) {
		t.Errorf("SyncTimestamps on empty input = %v, want ErrNoMatch", err)
	}
}

func TestSyncTimestampsTieBreaksEarliest(t *testing.T) {
	packets := packetsAt(900, 1100)
	idx, err := meta.SyncTimestamps(1000, packets, 1000)
	if err != nil {
		t.Fatalf("SyncTimestamps failed: %v", err)
	}
	if idx != 0 {
		t.Errorf("tie resolved to index %d, want 0", idx)
	}
}
