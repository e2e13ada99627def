package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/swordworks/dsv4l2/cli/render"
)

// ProfileRow is one registry entry in the list response.
type ProfileRow struct {
	ID             string `json:"id"`
	Vendor         string `json:"vendor"`
	Model          string `json:"model"`
	Role           string `json:"role"`
	Classification string `json:"classification"`
	Layer          uint32 `json:"layer"`
	File           string `json:"file"`
}

// ListCommand returns the list command: show loaded device profiles.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List loaded device profiles",
		Flags:  ReadOnlyFlags(),
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	app, err := Setup(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("list: %v", err), 1)
	}
	defer app.Close()

	rows := make([]ProfileRow, 0, app.Registry.Count())
	for i := 0; i < app.Registry.Count(); i++ {
		p := app.Registry.At(i)
		rows = append(rows, ProfileRow{
			ID:             p.ID,
			Vendor:         p.Vendor,
			Model:          p.Model,
			Role:           p.Role,
			Classification: p.Classification,
			Layer:          p.Layer,
			File:           p.Filename,
		})
	}

	return r.Render(rows)
}
