// Package sim is a deterministic in-memory implementation of the driver
// contract. It backs the test suites and the CLI's simulated devices; frame
// payloads, timestamps, and sequence numbers are fully reproducible.
package sim

import (
	"fmt"
	"sort"
	"sync"

	"github.com/swordworks/dsv4l2/driver"
)

// DefaultFrameInterval is the synthetic inter-frame spacing (about 30 fps).
const DefaultFrameInterval = 33_000_000

// DeviceConfig describes one simulated device.
type DeviceConfig struct {
	Driver  string
	Card    string
	BusInfo string
	// Caps defaults to video capture + streaming when zero.
	Caps driver.CapFlag
	// Format is the initial negotiated format.
	Format driver.Format
	// Sizes enumerates discrete frame sizes; defaults to the initial format.
	Sizes []driver.FrameSize
	// Rate is the initial frame rate.
	Rate driver.Fract
	// Controls seeds the control table. Absent ids reject access.
	Controls map[uint32]int32
	// FillFrame writes a synthetic payload for sequence seq into buf and
	// returns the bytes used. Defaults to a repeating sequence byte.
	FillFrame func(seq uint32, buf []byte) uint32
	// MetaPayloads are served in order, once each, on metadata dequeues;
	// once drained, metadata dequeues report ErrWouldBlock.
	MetaPayloads [][]byte
	// FirstTsNs is the timestamp of sequence 0; subsequent frames advance
	// by DefaultFrameInterval.
	FirstTsNs uint64
}

// Opener serves simulated devices by path.
type Opener struct {
	mu      sync.Mutex
	devices map[string]DeviceConfig
}

// New creates an empty simulated device tree.
func New() *Opener {
	return &Opener{devices: make(map[string]DeviceConfig)}
}

// Add registers a simulated device at path.
func (o *Opener) Add(path string, cfg DeviceConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cfg.Caps == 0 {
		cfg.Caps = driver.CapVideoCapture | driver.CapStreaming
	}
	if cfg.Format.PixelFormat == 0 {
		cfg.Format = driver.Format{PixelFormat: driver.MakeFourCC("YUYV"), Width: 640, Height: 480}
	}
	if len(cfg.Sizes) == 0 {
		cfg.Sizes = []driver.FrameSize{{Width: cfg.Format.Width, Height: cfg.Format.Height}}
	}
	if cfg.Rate.Denominator == 0 {
		cfg.Rate = driver.Fract{Numerator: 1, Denominator: 30}
	}
	if cfg.FirstTsNs == 0 {
		cfg.FirstTsNs = 1_000_000
	}
	o.devices[path] = cfg
}

// Open implements driver.Opener.
func (o *Opener) Open(path string) (driver.Device, error) {
	o.mu.Lock()
	cfg, ok := o.devices[path]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("open %s: no such device", path)
	}
	controls := make(map[uint32]int32, len(cfg.Controls))
	for id, v := range cfg.Controls {
		controls[id] = v
	}
	return &Device{
		cfg:       cfg,
		format:    cfg.Format,
		rate:      cfg.Rate,
		controls:  controls,
		streaming: make(map[driver.BufType]bool),
		queued:    make(map[driver.BufType][]uint32),
		buffers:   make(map[driver.BufType][][]byte),
	}, nil
}

// Paths implements driver.Enumerator, sorted for deterministic listings.
func (o *Opener) Paths() ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	paths := make([]string, 0, len(o.devices))
	for p := range o.devices {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// Device is one simulated descriptor. Safe for single-owner use, matching
// the exclusive-ownership model of real device handles.
type Device struct {
	mu        sync.Mutex
	cfg       DeviceConfig
	format    driver.Format
	rate      driver.Fract
	controls  map[uint32]int32
	streaming map[driver.BufType]bool
	queued    map[driver.BufType][]uint32
	buffers   map[driver.BufType][][]byte
	seq       uint32
	metaSeq   uint32
	metaNext  int
	closed    bool
}

const simBufferLen = 256 * 1024

// QueryCap implements driver.Device.
func (d *Device) QueryCap() (driver.Capability, error) {
	return driver.Capability{
		Driver:  d.cfg.Driver,
		Card:    d.cfg.Card,
		BusInfo: d.cfg.BusInfo,
		Caps:    d.cfg.Caps,
	}, nil
}

// GetFormat implements driver.Device.
func (d *Device) GetFormat(t driver.BufType) (driver.Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format, nil
}

// SetFormat implements driver.Device. The simulator accepts any format.
func (d *Device) SetFormat(t driver.BufType, f driver.Format) (driver.Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.streaming[t] {
		return d.format, driver.ErrBusy
	}
	d.format = f
	return d.format, nil
}

// EnumFrameSizes implements driver.Device.
func (d *Device) EnumFrameSizes(pix driver.FourCC) ([]driver.FrameSize, error) {
	sizes := make([]driver.FrameSize, len(d.cfg.Sizes))
	copy(sizes, d.cfg.Sizes)
	return sizes, nil
}

// GetFrameRate implements driver.Device.
func (d *Device) GetFrameRate() (driver.Fract, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate, nil
}

// SetFrameRate implements driver.Device.
func (d *Device) SetFrameRate(fr driver.Fract) (driver.Fract, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fr.Denominator == 0 {
		return d.rate, fmt.Errorf("zero frame rate denominator")
	}
	d.rate = fr
	return d.rate, nil
}

// RequestBuffers implements driver.Device.
func (d *Device) RequestBuffers(t driver.BufType, count uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.streaming[t] {
		return 0, driver.ErrBusy
	}
	bufs := make([][]byte, count)
	for i := range bufs {
		bufs[i] = make([]byte, simBufferLen)
	}
	d.buffers[t] = bufs
	d.queued[t] = nil
	return count, nil
}

// QueryBuffer implements driver.Device.
func (d *Device) QueryBuffer(t driver.BufType, index uint32) (driver.BufferInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bufs := d.buffers[t]
	if int(index) >= len(bufs) {
		return driver.BufferInfo{}, fmt.Errorf("buffer index %d out of range", index)
	}
	return driver.BufferInfo{
		Index:  index,
		Length: simBufferLen,
		Offset: offsetBase(t) + index*simBufferLen,
	}, nil
}

// offsetBase keeps the two queues' mapping offsets disjoint.
func offsetBase(t driver.BufType) uint32 {
	if t == driver.BufMeta {
		return 1 << 30
	}
	return 0
}

// Mmap implements driver.Device. The returned slice is the live backing
// store of the buffer, matching shared-mapping semantics.
func (d *Device) Mmap(info driver.BufferInfo) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := driver.BufVideo
	if info.Offset >= offsetBase(driver.BufMeta) {
		t = driver.BufMeta
	}
	rel := info.Offset - offsetBase(t)
	if rel%simBufferLen != 0 {
		return nil, fmt.Errorf("mmap: misaligned offset %d", info.Offset)
	}
	idx := int(rel / simBufferLen)
	bufs := d.buffers[t]
	if idx >= len(bufs) {
		return nil, fmt.Errorf("mmap: no buffer at offset %d", info.Offset)
	}
	return bufs[idx], nil
}

// Munmap implements driver.Device.
func (d *Device) Munmap(b []byte) error { return nil }

// Queue implements driver.Device.
func (d *Device) Queue(t driver.BufType, index uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(index) >= len(d.buffers[t]) {
		return fmt.Errorf("queue: buffer index %d out of range", index)
	}
	d.queued[t] = append(d.queued[t], index)
	return nil
}

// Dequeue implements driver.Device. Returns ErrWouldBlock when no buffer is
// queued, mirroring a non-blocking descriptor.
func (d *Device) Dequeue(t driver.BufType) (driver.DoneBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.streaming[t] {
		return driver.DoneBuffer{}, driver.ErrBusy
	}
	q := d.queued[t]
	if len(q) == 0 {
		return driver.DoneBuffer{}, driver.ErrWouldBlock
	}
	// Metadata payloads are served once each; a drained payload list reads
	// as an idle non-blocking queue.
	if t == driver.BufMeta && d.metaNext >= len(d.cfg.MetaPayloads) {
		return driver.DoneBuffer{}, driver.ErrWouldBlock
	}
	index := q[0]
	d.queued[t] = q[1:]

	buf := d.buffers[t][index]
	switch t {
	case driver.BufMeta:
		used := d.fillMeta(buf)
		done := driver.DoneBuffer{
			Index:     index,
			BytesUsed: used,
			TsNs:      d.cfg.FirstTsNs + uint64(d.metaSeq)*DefaultFrameInterval,
			Sequence:  d.metaSeq,
		}
		d.metaSeq++
		return done, nil
	default:
		used := d.fillFrame(d.seq, buf)
		done := driver.DoneBuffer{
			Index:     index,
			BytesUsed: used,
			TsNs:      d.cfg.FirstTsNs + uint64(d.seq)*DefaultFrameInterval,
			Sequence:  d.seq,
		}
		d.seq++
		return done, nil
	}
}

func (d *Device) fillFrame(seq uint32, buf []byte) uint32 {
	if d.cfg.FillFrame != nil {
		return d.cfg.FillFrame(seq, buf)
	}
	n := d.format.Width * d.format.Height * 2
	if n > uint32(len(buf)) {
		n = uint32(len(buf))
	}
	for i := uint32(0); i < n; i++ {
		buf[i] = byte(seq)
	}
	return n
}

func (d *Device) fillMeta(buf []byte) uint32 {
	if len(d.cfg.MetaPayloads) == 0 {
		return 0
	}
	payload := d.cfg.MetaPayloads[d.metaNext%len(d.cfg.MetaPayloads)]
	d.metaNext++
	n := copy(buf, payload)
	return uint32(n)
}

// StreamOn implements driver.Device.
func (d *Device) StreamOn(t driver.BufType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.buffers[t]) == 0 {
		return fmt.Errorf("stream on: no buffers requested")
	}
	d.streaming[t] = true
	return nil
}

// StreamOff implements driver.Device.
func (d *Device) StreamOff(t driver.BufType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streaming[t] = false
	d.queued[t] = nil
	return nil
}

// GetControl implements driver.Device.
func (d *Device) GetControl(id uint32) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.controls[id]
	if !ok {
		return 0, driver.ErrNoControl
	}
	return v, nil
}

// SetControl implements driver.Device.
func (d *Device) SetControl(id uint32, value int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.controls[id]; !ok {
		return driver.ErrNoControl
	}
	d.controls[id] = value
	return nil
}

// Close implements driver.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.buffers = make(map[driver.BufType][][]byte)
	return nil
}

var _ driver.Device = (*Device)(nil)
var _ driver.Opener = (*Opener)(nil)
var _ driver.Enumerator = (*Opener)(nil)
