package cmd

import (
	"fmt"
	"net/http"

	"github.com/urfave/cli/v2"

	"github.com/swordworks/dsv4l2/cli/render"
	"github.com/swordworks/dsv4l2/cli/tui"
	"github.com/swordworks/dsv4l2/metrics"
)

// StatsResponse is the non-interactive monitor output.
type StatsResponse struct {
	Level        string `json:"level"`
	Emitted      uint64 `json:"emitted"`
	Dropped      uint64 `json:"dropped"`
	Flushed      uint64 `json:"flushed"`
	Occupancy    int    `json:"occupancy"`
	MaxOccupancy int    `json:"max_occupancy"`
	Capacity     int    `json:"capacity"`
}

// MonitorCommand returns the monitor command: runtime statistics, an
// optional live TUI, and an optional Prometheus endpoint.
func MonitorCommand() *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "Observe runtime telemetry",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{Name: "tui", Usage: "Interactive live monitor"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "Serve Prometheus metrics on this address"},
		),
		Action: monitorAction,
	}
}

func monitorAction(c *cli.Context) error {
	app, err := Setup(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("monitor: %v", err), 1)
	}
	defer app.Close()

	if addr := c.String("metrics-addr"); addr != "" {
		handler, err := metrics.Handler(app.Runtime)
		if err != nil {
			return cli.Exit(fmt.Sprintf("monitor: %v", err), 1)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		if !c.Bool("tui") {
			// Foreground serve; interrupt to stop.
			if err := http.ListenAndServe(addr, mux); err != nil {
				return cli.Exit(fmt.Sprintf("monitor: %v", err), 1)
			}
			return nil
		}
		go func() { _ = http.ListenAndServe(addr, mux) }()
	}

	if c.Bool("tui") {
		tap := tui.NewEventTap()
		app.Runtime.RegisterSink(tap.Func())
		if err := tui.Run(app.Runtime, tap); err != nil {
			return cli.Exit(fmt.Sprintf("monitor: %v", err), 1)
		}
		return nil
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	stats := app.Runtime.Stats()
	return r.Render(StatsResponse{
		Level:        stats.Level.String(),
		Emitted:      stats.Emitted,
		Dropped:      stats.Dropped,
		Flushed:      stats.Flushed,
		Occupancy:    stats.Occupancy,
		MaxOccupancy: stats.MaxOccupancy,
		Capacity:     stats.Capacity,
	})
}
