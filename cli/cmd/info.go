package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/swordworks/dsv4l2/cli/render"
)

// InfoResponse describes one opened device.
type InfoResponse struct {
	Path           string `json:"path"`
	DevID          string `json:"dev_id"`
	Driver         string `json:"driver"`
	Card           string `json:"card"`
	Bus            string `json:"bus"`
	Role           string `json:"role"`
	Layer          uint32 `json:"layer"`
	Classification string `json:"classification"`
	Profile        string `json:"profile"`
	Tempest        string `json:"tempest"`
	PixelFormat    string `json:"pixel_format"`
	Width          uint32 `json:"width"`
	Height         uint32 `json:"height"`
}

// InfoCommand returns the info command: open a device and report its
// identity, profile binding, and TEMPEST posture.
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:   "info",
		Usage:  "Show device identity and posture",
		Flags:  append(ReadOnlyFlags(), DeviceFlag, RoleFlag),
		Action: infoAction,
	}
}

func infoAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	app, err := Setup(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("info: %v", err), 1)
	}
	defer app.Close()

	dev, err := app.Manager.Open(c.String("device"), c.String("role"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("info: %v", err), 1)
	}
	defer dev.Close()

	info := dev.Info()
	resp := InfoResponse{
		Path:           dev.Path(),
		DevID:          fmt.Sprintf("%08x", dev.DeviceID()),
		Driver:         info.Driver,
		Card:           info.Card,
		Bus:            info.BusInfo,
		Role:           dev.Role(),
		Layer:          dev.Layer(),
		Classification: dev.Classification(),
		Profile:        dev.Profile().ID,
		Tempest:        dev.Tempest().State().String(),
	}
	if format, err := dev.Format(); err == nil {
		resp.PixelFormat = format.PixelFormat.String()
		resp.Width = format.Width
		resp.Height = format.Height
	}

	return r.Render(resp)
}
