package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/samuelfneumann/mtppo/environment/envconfig"
	"github.com/spf13/cobra"
)

// PresetsCommand lists the environment presets, or prints the full
// configuration of the named presets as JSON
func PresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets [name...]",
		Short: "List environment presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				for _, name := range args {
					c, err := envconfig.Get(name)
					if err != nil {
						return err
					}
					if err := enc.Encode(c); err != nil {
						return err
					}
				}
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tROOM\tTRIALS\tSHAPING\tNOISE")
			for _, name := range envconfig.Names() {
				c, err := envconfig.Get(name)
				if err != nil {
					return err
				}
				shaping, noise := "-", "-"
				if c.Shaped != nil {
					shaping = string(c.Shaped.Type)
					noise = c.Shaped.Noise.String()
				}
				fmt.Fprintf(w, "%v\t%d-%d\t%d\t%v\t%v\n", name,
					c.GridWorld.MinSize, c.GridWorld.MaxSize,
					c.GridWorld.NumTrials, shaping, noise)
			}
			return w.Flush()
		},
	}
}
