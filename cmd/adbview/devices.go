package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/adbview/adbview/adb/adbhost"
	"github.com/adbview/adbview/adblib"
)

var (
	flagDevicesLong    bool
	flagDevicesHistory bool
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List attached devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, err := openHistory()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		if flagDevicesHistory {
			if db == nil {
				return fmt.Errorf("history is disabled in the config")
			}
			ss, err := db.List(ctx, "")
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "SERVER\tSERIAL\tSTATUS\tFIRST SEEN\tLAST SEEN\tCOUNT")
			for _, s := range ss {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
					s.Addr, s.Serial, s.Status,
					s.FirstSeen.Format(time.DateTime), s.LastSeen.Format(time.DateTime), s.Count)
			}
			return tw.Flush()
		}

		devs, err := client.Devices(ctx)
		if err != nil {
			return err
		}
		if db != nil {
			if err := db.Record(ctx, serverAddr(), time.Now(), devs...); err != nil {
				logger.Warn("failed to record device history", "error", err)
			}
		}

		if !flagDevicesLong {
			printDevices(cmd.OutOrStdout(), devs)
			return nil
		}
		infos, err := adbhost.Devices(ctx, client.Dialer, true)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "SERIAL\tSTATUS\tPRODUCT\tMODEL\tDEVICE\tTRANSPORT")
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
				info.Serial, adblib.StatusOf(info.State), info.Product, info.Model, info.Device, info.Transport)
		}
		return tw.Flush()
	},
}

func printDevices(w io.Writer, devs []adblib.Device) {
	if len(devs) == 0 {
		fmt.Fprintln(w, "No devices attached.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, d := range devs {
		fmt.Fprintf(tw, "%s\t%s\n", d.Serial, d.Status)
	}
	tw.Flush()
}

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Print the attached devices whenever they change",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, err := openHistory()
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		err = client.Registry.Track(ctx, func(devs []adblib.Device) {
			fmt.Fprintf(cmd.OutOrStdout(), "--- %s\n", time.Now().Format(time.DateTime))
			printDevices(cmd.OutOrStdout(), devs)
			if db != nil {
				if err := db.Record(ctx, serverAddr(), time.Now(), devs...); err != nil {
					logger.Warn("failed to record device history", "error", err)
				}
			}
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	devicesCmd.Flags().BoolVarP(&flagDevicesLong, "long", "l", false, "show device details")
	devicesCmd.Flags().BoolVar(&flagDevicesHistory, "history", false, "show previously seen devices")
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(trackCmd)
}
