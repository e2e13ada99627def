package sim_test

import (
	"errors"
	"testing"

	"github.com/swordworks/dsv4l2/driver"
	"github.com/swordworks/dsv4l2/driver/sim"
)

func openDevice(t *testing.T, cfg sim.DeviceConfig) driver.Device {
	t.Helper()
	opener := sim.New()
	opener.Add("/dev/video0", cfg)
	dev, err := opener.Open("/dev/video0")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func TestOpenUnknownPath(t *testing.T) {
	opener := sim.New()
	if _, err := opener.Open("/dev/video9"); err == nil {
		t.Error("Open on unknown path succeeded")
	}
}

func TestPathsAreSorted(t *testing.T) {
	opener := sim.New()
	opener.Add("/dev/video2", sim.DeviceConfig{})
	opener.Add("/dev/video0", sim.DeviceConfig{})
	opener.Add("/dev/video1", sim.DeviceConfig{})

	paths, err := opener.Paths()
	if err != nil {
		t.Fatalf("Paths failed: %v", err)
	}
	want := []string{"/dev/video0", "/dev/video1", "/dev/video2"}
	for i, p := range want {
		if paths[i] != p {
			t.Fatalf("paths = %v, want %v", paths, want)
		}
	}
}

func TestDequeueCycle(t *testing.T) {
	dev := openDevice(t, sim.DeviceConfig{})

	if _, err := dev.RequestBuffers(driver.BufVideo, 2); err != nil {
		t.Fatalf("RequestBuffers failed: %v", err)
	}
	for i := uint32(0); i < 2; i++ {
		if err := dev.Queue(driver.BufVideo, i); err != nil {
			t.Fatalf("Queue %d failed: %v", i, err)
		}
	}
	if err := dev.StreamOn(driver.BufVideo); err != nil {
		t.Fatalf("StreamOn failed: %v", err)
	}

	first, err := dev.Dequeue(driver.BufVideo)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	second, err := dev.Dequeue(driver.BufVideo)
	if err != nil {
		t.Fatalf("second Dequeue failed: %v", err)
	}
	if second.Sequence != first.Sequence+1 {
		t.Errorf("sequences = %d, %d; want consecutive", first.Sequence, second.Sequence)
	}
	if second.TsNs <= first.TsNs {
		t.Error("timestamps are not increasing")
	}

	if _, err := dev.Dequeue(driver.BufVideo); !errors.Is(err, driver.ErrWouldBlock) {
		t.Errorf("Dequeue on empty queue = %v, want ErrWouldBlock", err)
	}

	// Requeue and the cycle continues.
	if err := dev.Queue(driver.BufVideo, first.Index); err != nil {
		t.Fatalf("requeue failed: %v", err)
	}
	third, err := dev.Dequeue(driver.BufVideo)
	if err != nil {
		t.Fatalf("third Dequeue failed: %v", err)
	}
	if third.Sequence != 2 {
		t.Errorf("third sequence = %d, want 2", third.Sequence)
	}
}

func TestDequeueBeforeStreamOn(t *testing.T) {
	dev := openDevice(t, sim.DeviceConfig{})
	if _, err := dev.RequestBuffers(driver.BufVideo, 1); err != nil {
		t.Fatalf("RequestBuffers failed: %v", err)
	}
	if _, err := dev.Dequeue(driver.BufVideo); !errors.Is(err, driver.ErrBusy) {
		t.Errorf("Dequeue before StreamOn = %v, want ErrBusy", err)
	}
}

func TestMmapAliasesBuffer(t *testing.T) {
	dev := openDevice(t, sim.DeviceConfig{})
	if _, err := dev.RequestBuffers(driver.BufVideo, 1); err != nil {
		t.Fatalf("RequestBuffers failed: %v", err)
	}
	info, err := dev.QueryBuffer(driver.BufVideo, 0)
	if err != nil {
		t.Fatalf("QueryBuffer failed: %v", err)
	}
	mapped, err := dev.Mmap(info)
	if err != nil {
		t.Fatalf("Mmap failed: %v", err)
	}

	if err := dev.Queue(driver.BufVideo, 0); err != nil {
		t.Fatalf("Queue failed: %v", err)
	}
	if err := dev.StreamOn(driver.BufVideo); err != nil {
		t.Fatalf("StreamOn failed: %v", err)
	}
	done, err := dev.Dequeue(driver.BufVideo)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if done.BytesUsed == 0 {
		t.Fatal("dequeued buffer is empty")
	}
	// The synthetic fill is visible through the earlier mapping.
	if mapped[0] != byte(done.Sequence) {
		t.Errorf("mapped[0] = %d, want %d", mapped[0], byte(done.Sequence))
	}
}

func TestControls(t *testing.T) {
	dev := openDevice(t, sim.DeviceConfig{Controls: map[uint32]int32{0x42: 7}})

	v, err := dev.GetControl(0x42)
	if err != nil || v != 7 {
		t.Fatalf("GetControl = (%d, %v), want (7, nil)", v, err)
	}
	if err := dev.SetControl(0x42, 3); err != nil {
		t.Fatalf("SetControl failed: %v", err)
	}
	if v, _ := dev.GetControl(0x42); v != 3 {
		t.Errorf("control value = %d, want 3", v)
	}

	if _, err := dev.GetControl(0x99); !errors.Is(err, driver.ErrNoControl) {
		t.Errorf("GetControl on missing id = %v, want ErrNoControl", err)
	}
	if err := dev.SetControl(0x99, 1); !errors.Is(err, driver.ErrNoControl) {
		t.Errorf("SetControl on missing id = %v, want ErrNoControl", err)
	}
}

func TestFourCC(t *testing.T) {
	f := driver.MakeFourCC("YUYV")
	if f.String() != "YUYV" {
		t.Errorf("FourCC round trip = %q", f.String())
	}
}
