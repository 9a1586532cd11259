package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adbview/adbview/adb/adbhost"
	"github.com/adbview/adbview/adblib"
	"github.com/adbview/adbview/adblib/adbsync"
	"github.com/adbview/adbview/internal/config"
	"github.com/adbview/adbview/internal/history"
	"github.com/adbview/adbview/internal/logging"
)

// Version of adbview.
const Version = "0.1.0"

var (
	flagAddr      string
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
	flagSerial    string
)

// state shared by all commands, set up before running them
var (
	cfg    *config.Config
	logger *slog.Logger
	client *adblib.Client
)

var rootCmd = &cobra.Command{
	Use:     "adbview",
	Short:   "Browse the files and screen of Android devices through an ADB server",
	Version: Version,
	Long: `adbview connects to a running ADB server and lets you list devices, browse
their filesystems, read files, and capture the screen, without a shell.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagAddr, "addr", "", "ADB server address (default from config, or localhost:5037)")
	pf.StringVar(&flagConfig, "config", "", "config file (default "+config.ConfigPath()+")")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "", "log format (text, json)")
	pf.StringVarP(&flagSerial, "serial", "s", "", "device serial (default: the only attached device)")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagAddr != "" {
		cfg.Addr = flagAddr
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return err
	}
	logger = logging.New(logging.Config{
		Level:  level,
		Format: format,
		Output: cmd.ErrOrStderr(),
	})
	if level <= logging.LevelTrace {
		adblib.Trace(logger)
	}

	client = adblib.NewClient(&adbhost.Dialer{
		Addr:        cfg.Addr,
		DialTimeout: cfg.DialTimeout,
		IdleTimeout: cfg.IdleTimeout,
	})
	if cfg.Compression != nil {
		cc, err := compressionConfig(cfg.Compression)
		if err != nil {
			return err
		}
		client.CompressionConfig = cc
	}
	logger.Debug("configured", "addr", serverAddr(), "config", flagConfig)
	return nil
}

func compressionConfig(names []string) (*adbsync.CompressionConfig, error) {
	methods := []adbsync.CompressionMethod{}
	for _, n := range names {
		switch m := adbsync.CompressionMethod(n); m {
		case adbsync.CompressionMethodBrotli, adbsync.CompressionMethodLZ4, adbsync.CompressionMethodZstd:
			methods = append(methods, m)
		case "none":
		default:
			return nil, fmt.Errorf("unknown compression method %q", n)
		}
	}
	return &adbsync.CompressionConfig{DecompressMethods: methods}, nil
}

// openHistory opens the device history database if it is enabled.
func openHistory() (*history.DB, error) {
	if !cfg.History {
		return nil, nil
	}
	db, err := history.Open(filepath.Join(config.ConfigDir(), "history.db"))
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return db, nil
}

// serverAddr returns the address of the ADB server in use.
func serverAddr() string {
	return cmp.Or(cfg.Addr, adbhost.DefaultAddr)
}

// selectSerial resolves the serial flag to a single attached device.
func selectSerial(ctx context.Context) (string, error) {
	dev, err := client.Registry.Resolve(ctx, flagSerial)
	if err != nil {
		return "", err
	}
	return dev.Serial, nil
}

// exitCode returns the exit status for an error returned by a command. Errors
// selecting a device exit with 2, so scripts can tell them apart from server
// and file errors.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case adblib.IsDeviceError(err):
		return 2
	default:
		return 1
	}
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "adbview:", err)
		stop()
		os.Exit(exitCode(err))
	}
}
