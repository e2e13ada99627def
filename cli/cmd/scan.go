package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/swordworks/dsv4l2/cli/render"
)

// ScanRow is one discovered device in the scan response.
type ScanRow struct {
	Path   string `json:"path"`
	DevID  string `json:"dev_id"`
	Card   string `json:"card"`
	Driver string `json:"driver"`
	Role   string `json:"role"`
}

// ScanCommand returns the scan command: enumerate capture devices that open
// cleanly under the default role.
func ScanCommand() *cli.Command {
	return &cli.Command{
		Name:   "scan",
		Usage:  "Discover capture devices",
		Flags:  ReadOnlyFlags(),
		Action: scanAction,
	}
}

func scanAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	app, err := Setup(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("scan: %v", err), 1)
	}
	defer app.Close()

	devices := app.Manager.List()
	rows := make([]ScanRow, 0, len(devices))
	for _, dev := range devices {
		info := dev.Info()
		rows = append(rows, ScanRow{
			Path:   dev.Path(),
			DevID:  fmt.Sprintf("%08x", dev.DeviceID()),
			Card:   info.Card,
			Driver: info.Driver,
			Role:   dev.Role(),
		})
		_ = dev.Close()
	}

	return r.Render(rows)
}
