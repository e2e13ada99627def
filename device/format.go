package device

import (
	"github.com/swordworks/dsv4l2/driver"
	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/types"
)

// Format returns the current negotiated video format.
func (d *Device) Format() (driver.Format, error) {
	f, err := d.drv.GetFormat(driver.BufVideo)
	if err != nil {
		return driver.Format{}, &IOError{Op: "get format", Err: err}
	}
	return f, nil
}

// SetFormat negotiates a new video format. FormatChange and ResolutionChange
// events are emitted only for the fields that actually changed.
func (d *Device) SetFormat(want driver.Format) (driver.Format, error) {
	old, err := d.Format()
	if err != nil {
		return driver.Format{}, err
	}

	applied, err := d.drv.SetFormat(driver.BufVideo, want)
	if err != nil {
		return driver.Format{}, &IOError{Op: "set format", Err: err}
	}

	if applied.PixelFormat != old.PixelFormat {
		rt.EmitSimple(d.devID, types.EventFormatChange, types.SevInfo, uint32(applied.PixelFormat))
	}
	if applied.Width != old.Width || applied.Height != old.Height {
		rt.EmitSimple(d.devID, types.EventResolutionChange, types.SevInfo,
			applied.Width<<16|applied.Height&0xFFFF)
	}
	return applied, nil
}

// FrameSizes enumerates the discrete frame sizes for a pixel format.
func (d *Device) FrameSizes(pix driver.FourCC) ([]driver.FrameSize, error) {
	sizes, err := d.drv.EnumFrameSizes(pix)
	if err != nil {
		return nil, &IOError{Op: "enum frame sizes", Err: err}
	}
	return sizes, nil
}

// FrameRate returns the current frame interval.
func (d *Device) FrameRate() (driver.Fract, error) {
	fr, err := d.drv.GetFrameRate()
	if err != nil {
		return driver.Fract{}, &IOError{Op: "get frame rate", Err: err}
	}
	return fr, nil
}

// SetFrameRate negotiates a new frame interval, emitting FPSChange when the
// value changed.
func (d *Device) SetFrameRate(want driver.Fract) (driver.Fract, error) {
	old, err := d.FrameRate()
	if err != nil {
		return driver.Fract{}, err
	}

	applied, err := d.drv.SetFrameRate(want)
	if err != nil {
		return driver.Fract{}, &IOError{Op: "set frame rate", Err: err}
	}

	if applied != old {
		rt.EmitSimple(d.devID, types.EventFPSChange, types.SevInfo, applied.Denominator)
	}
	return applied, nil
}

// GetControl reads a driver control by id.
func (d *Device) GetControl(id uint32) (int32, error) {
	v, err := d.drv.GetControl(id)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// SetControl writes a driver control by id, emitting ControlChange.
func (d *Device) SetControl(id uint32, value int32) error {
	if err := d.drv.SetControl(id, value); err != nil {
		return err
	}
	rt.EmitSimple(d.devID, types.EventControlChange, types.SevInfo, id)
	return nil
}
