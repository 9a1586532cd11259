package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "List the optional features supported by the server and the device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := client.Features(cmd.Context(), flagSerial)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "server %s:\n", serverAddr())
		for _, f := range fs.Host {
			fmt.Fprintf(w, "  %s\n", f)
		}
		if fs.Device == nil {
			fmt.Fprintf(w, "%v: not online\n", fs.Transport)
			return nil
		}
		fmt.Fprintf(w, "%v:\n", fs.Transport)
		for _, f := range fs.Device {
			fmt.Fprintf(w, "  %s\n", f)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(featuresCmd)
}
