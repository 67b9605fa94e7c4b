// Command mtppo trains recurrent policies with multi-task PPO on fetch
// gridworlds with noisy shaped rewards
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "mtppo",
		Short: "Multi-task PPO on fetch gridworlds",
	}
	root.AddCommand(TrainCommand())
	root.AddCommand(PresetsCommand())
	root.AddCommand(PlotCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
