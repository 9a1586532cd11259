package main

import (
	"fmt"
	"image/png"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/adbview/adbview/adblib"
	"github.com/adbview/adbview/adblib/adbsync"
)

var statCmd = &cobra.Command{
	Use:   "stat path",
	Short: "Show information about a file on the device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := client.Stat(cmd.Context(), flagSerial, args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "  File: %s\n", args[0])
		fmt.Fprintf(w, "  Type: %s\n", fileType(st))
		fmt.Fprintf(w, "  Mode: %s (%#o)\n", st.FileMode(), st.Mode)
		fmt.Fprintf(w, "  Size: %d\n", st.Size)
		fmt.Fprintf(w, "Modify: %s\n", st.Mtime.Format(time.RFC3339))
		return nil
	},
}

func fileType(st adbsync.Stat) string {
	switch {
	case st.IsDir():
		return "directory"
	case st.IsSymlink():
		return "symbolic link"
	default:
		return "regular file"
	}
}

var flagLsIndex bool

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory on the device, or the attached devices",
	Long: `List a directory on the device. Without a path or serial, the attached
devices which are not offline are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var serial, name string
		if len(args) != 0 || flagSerial != "" {
			var err error
			if serial, err = selectSerial(ctx); err != nil {
				return err
			}
			name = "/"
			if len(args) != 0 {
				name = args[0]
			}
		}

		l, err := client.Browse(ctx, serial, name)
		if err != nil {
			return err
		}
		defer l.Close()

		if !l.IsDir() {
			l.Entries = []adbsync.DirEntry{{Name: l.Path, Stat: l.Stat}}
		}
		if flagLsIndex {
			return adblib.WriteIndex(cmd.OutOrStdout(), l)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 1, ' ', tabwriter.AlignRight)
		for _, e := range l.Entries {
			fmt.Fprintf(tw, "%s\t%d\t%s\t %s\n", e.FileMode(), e.Size, e.Mtime.Format("2006-01-02 15:04"), e.Name)
		}
		return tw.Flush()
	},
}

var catCmd = &cobra.Command{
	Use:   "cat path",
	Short: "Write a file on the device to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := client.GetContent(cmd.Context(), flagSerial, args[0])
		if err != nil {
			return err
		}
		defer content.Close()

		n, err := io.Copy(cmd.OutOrStdout(), content)
		if err != nil {
			return err
		}
		logger.Debug("read file", "path", args[0], "size", content.Size(), "read", n)
		return nil
	},
}

var flagScreencapOutput string

var screencapCmd = &cobra.Command{
	Use:   "screencap",
	Short: "Capture the screen of the device as a PNG",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := client.GetFrameBuffer(cmd.Context(), flagSerial)
		if err != nil {
			return err
		}
		logger.Debug("captured framebuffer", "width", s.Width, "height", s.Height, "channels", s.Channels)

		if flagScreencapOutput == "" || flagScreencapOutput == "-" {
			return png.Encode(cmd.OutOrStdout(), s.Image())
		}
		f, err := os.Create(flagScreencapOutput)
		if err != nil {
			return err
		}
		if err := png.Encode(f, s.Image()); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	},
}

func init() {
	lsCmd.Flags().BoolVar(&flagLsIndex, "index", false, "write the listing in the http-index-format")
	screencapCmd.Flags().StringVarP(&flagScreencapOutput, "output", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(statCmd, lsCmd, catCmd, screencapCmd)
}
