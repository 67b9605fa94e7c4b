package main

import (
	"github.com/samuelfneumann/mtppo/experiment/tracker"
	"github.com/spf13/cobra"
)

// PlotCommand draws the data saved by a training run
func PlotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plot <data file> <output dir>",
		Short: "Plot the episode returns saved by a training run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := tracker.LoadData(args[0])
			if err != nil {
				return err
			}
			return tracker.PlotSeries(data, args[1])
		},
	}
}
