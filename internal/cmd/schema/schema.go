// Package schema implements the command that prints the JSON schema of the
// wire types.
package schema

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/wasm-everything/we/wire"
)

// Command returns the schema command.
func Command() *cli.Command {
	return &cli.Command{
		Name:      "schema",
		Usage:     "print the JSON schema of a wire type",
		ArgsUsage: "[" + strings.Join(wire.SchemaNames(), "|") + "]",
		Action: func(c *cli.Context) error {
			names := wire.SchemaNames()
			if c.NArg() > 0 {
				names = c.Args().Slice()
			}

			for _, name := range names {
				out, err := wire.Schema(name)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(c.App.Writer, "%s\n", out); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
