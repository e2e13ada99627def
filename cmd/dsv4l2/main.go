// Package main provides the dsv4l2 CLI entrypoint.
//
// Usage:
//
//	dsv4l2 <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: invocation or hardware failure
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/swordworks/dsv4l2/cli/cmd"
	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/types"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "dsv4l2",
		Usage:          "Policy-mediated capture device CLI",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		After: func(*cli.Context) error {
			rt.Shutdown()
			return nil
		},
		Commands: []*cli.Command{
			cmd.ScanCommand(),
			cmd.ListCommand(),
			cmd.InfoCommand(),
			cmd.CaptureCommand(),
			cmd.MonitorCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled cli.ExitCoder errors; this branch
		// covers unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit() while printing real
// messages once.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
