// Package cmd provides CLI commands for the dsv4l2 binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags.
var (
	// ConfigFlag points at the YAML runtime configuration.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to dsv4l2.yaml runtime configuration",
	}

	// FormatFlag selects output format: json, table.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table",
	}

	// DeviceFlag names the target device path.
	DeviceFlag = &cli.StringFlag{
		Name:     "device",
		Aliases:  []string{"d"},
		Usage:    "Device path",
		Required: true,
	}

	// RoleFlag names the role a device is opened under.
	RoleFlag = &cli.StringFlag{
		Name:  "role",
		Usage: "Device role (generic_webcam, ir_sensor, iris_scanner, tempest_cam)",
		Value: "generic_webcam",
	}
)

// ReadOnlyFlags returns the shared flags for read-only commands.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{ConfigFlag, FormatFlag}
}
