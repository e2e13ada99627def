package meta_test

import (
	"errors"
	"testing"

	"github.com/swordworks/dsv4l2/driver"
	"github.com/swordworks/dsv4l2/driver/sim"
	"github.com/swordworks/dsv4l2/meta"
)

func openSimMeta(t *testing.T, payloads [][]byte) (*meta.Stream, driver.Device) {
	t.Helper()
	opener := sim.New()
	opener.Add("/dev/video9", sim.DeviceConfig{
		Caps:         driver.CapVideoCapture | driver.CapMetaCapture | driver.CapStreaming,
		MetaPayloads: payloads,
	})
	drv, err := opener.Open("/dev/video9")
	if err != nil {
		t.Fatalf("open sim device: %v", err)
	}
	stream, err := meta.OpenStream(drv, 0x1234, meta.StreamConfig{Format: meta.FormatKLV})
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	t.Cleanup(func() { _ = stream.Close(); _ = drv.Close() })
	return stream, drv
}

func TestStreamReadsKLVPackets(t *testing.T) {
	k := keyOf(0x11)
	payload := buildItem(k, []byte{0x02}, []byte{0xAB, 0xCD})
	stream, _ := openSimMeta(t, [][]byte{payload})

	pkt, err := stream.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if pkt.Format != meta.FormatKLV {
		t.Errorf("format = %v, want KLV", pkt.Format)
	}

	items, err := meta.ParseKLV(pkt.KLV)
	if err != nil {
		t.Fatalf("ParseKLV on packet failed: %v", err)
	}
	if len(items) != 1 || items[0].Value[1] != 0xCD {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestStreamDrainsToWouldBlock(t *testing.T) {
	k := keyOf(0x22)
	payloads := [][]byte{
		buildItem(k, []byte{0x01}, []byte{1}),
		buildItem(k, []byte{0x01}, []byte{2}),
	}
	stream, _ := openSimMeta(t, payloads)

	packets, err := stream.Poll(0)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(packets) != 2 {
		t.Fatalf("polled %d packets, want 2", len(packets))
	}
	if packets[0].TsNs >= packets[1].TsNs {
		t.Error("packet timestamps are not increasing")
	}

	if _, err := stream.Read(); !errors.Is(err, driver.ErrWouldBlock) {
		t.Errorf("Read on drained stream = %v, want ErrWouldBlock", err)
	}
}

func TestStreamRejectsUnknownFormat(t *testing.T) {
	opener := sim.New()
	opener.Add("/dev/video9", sim.DeviceConfig{})
	drv, err := opener.Open("/dev/video9")
	if err != nil {
		t.Fatalf("open sim device: %v", err)
	}
	defer drv.Close()

	if _, err := meta.OpenStream(drv, 1, meta.StreamConfig{Format: meta.FormatUnknown}); !errors.Is(err, meta.ErrUnsupported) {
		t.Errorf("OpenStream with unknown format = %v, want ErrUnsupported", err)
	}
}
