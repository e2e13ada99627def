package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/swordworks/dsv4l2/capture"
	"github.com/swordworks/dsv4l2/cli/render"
	"github.com/swordworks/dsv4l2/policy"
)

// FrameRow reports one acquired frame. Payload bytes are never rendered.
type FrameRow struct {
	Sequence uint32 `json:"sequence"`
	Bytes    int    `json:"bytes"`
	TsNs     uint64 `json:"ts_ns"`
	Kind     string `json:"kind"`
}

// threatconNames maps flag values to levels.
var threatconNames = map[string]policy.ThreatCon{
	"normal":    policy.ThreatNormal,
	"alpha":     policy.ThreatAlpha,
	"bravo":     policy.ThreatBravo,
	"charlie":   policy.ThreatCharlie,
	"delta":     policy.ThreatDelta,
	"emergency": policy.ThreatEmergency,
}

// CaptureCommand returns the capture command: acquire frames under the
// policy gate.
func CaptureCommand() *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Acquire frames from a device",
		Flags: append(ReadOnlyFlags(),
			DeviceFlag,
			RoleFlag,
			&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "Frames to acquire", Value: 1},
			&cli.UintFlag{Name: "buffers", Usage: "Kernel buffers to request", Value: 4},
			&cli.StringFlag{Name: "threatcon", Usage: "Apply a threat condition before capturing"},
			&cli.BoolFlag{Name: "biometric", Usage: "Use the biometric capture path"},
		),
		Action: captureAction,
	}
}

func captureAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	app, err := Setup(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("capture: %v", err), 1)
	}
	defer app.Close()

	dev, err := app.Manager.Open(c.String("device"), c.String("role"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("capture: %v", err), 1)
	}
	// The device always shuts down cleanly, even when the loop breaks.
	defer dev.Close()

	if name := c.String("threatcon"); name != "" {
		level, ok := threatconNames[strings.ToLower(name)]
		if !ok {
			return cli.Exit(fmt.Sprintf("capture: unknown threatcon %q", name), 1)
		}
		if err := policy.SetThreatCon(level); err != nil {
			return cli.Exit(fmt.Sprintf("capture: %v", err), 1)
		}
		if err := policy.ApplyThreatCon(dev); err != nil {
			return cli.Exit(fmt.Sprintf("capture: apply threatcon: %v", err), 1)
		}
	}

	if err := dev.RequestBuffers(uint32(c.Uint("buffers"))); err != nil {
		return cli.Exit(fmt.Sprintf("capture: %v", err), 1)
	}

	rows := make([]FrameRow, 0, c.Int("count"))
	var loopErr error
	for i := 0; i < c.Int("count"); i++ {
		grant, err := policy.Authorize(dev, "cli capture")
		if err != nil {
			loopErr = err
			break
		}

		if c.Bool("biometric") {
			frame, err := capture.NextBiometric(dev, grant)
			if err != nil {
				loopErr = err
				break
			}
			rows = append(rows, FrameRow{
				Sequence: frame.Sequence(), Bytes: frame.Len(), TsNs: frame.TsNs(), Kind: "biometric",
			})
			continue
		}

		frame, err := capture.Next(dev, grant)
		if err != nil {
			loopErr = err
			break
		}
		rows = append(rows, FrameRow{
			Sequence: frame.Sequence(), Bytes: frame.Len(), TsNs: frame.TsNs(), Kind: "generic",
		})
	}

	if err := r.Render(rows); err != nil {
		return err
	}
	if loopErr != nil {
		return cli.Exit(fmt.Sprintf("capture: %v", loopErr), 1)
	}
	return nil
}
