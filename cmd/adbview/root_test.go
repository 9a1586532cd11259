package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/adbview/adbview/adb/adbhost"
	"github.com/adbview/adbview/adblib"
	"github.com/adbview/adbview/adblib/adbsync"
	"github.com/adbview/adbview/internal/adbtest"
	"github.com/adbview/adbview/internal/config"
)

func TestCompressionConfig(t *testing.T) {
	cc, err := compressionConfig([]string{"zstd", "brotli"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(cc.DecompressMethods, []adbsync.CompressionMethod{adbsync.CompressionMethodZstd, adbsync.CompressionMethodBrotli}) {
		t.Errorf("incorrect methods %v", cc.DecompressMethods)
	}

	cc, err = compressionConfig([]string{"none"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cc.DecompressMethods == nil || len(cc.DecompressMethods) != 0 {
		t.Errorf("expected compression to be disabled, got %v", cc.DecompressMethods)
	}

	if _, err := compressionConfig([]string{"gzip"}); err == nil {
		t.Errorf("expected error for unknown method")
	}
}

func TestCommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, n := range []string{"devices", "track", "stat", "ls", "cat", "screencap", "features"} {
		if !slices.Contains(names, n) {
			t.Errorf("missing command %q", n)
		}
	}
}

func TestServerAddr(t *testing.T) {
	defer func(c *config.Config) { cfg = c }(cfg)

	cfg = &config.Config{}
	if act := serverAddr(); act != adbhost.DefaultAddr {
		t.Errorf("expected default address for empty config, got %q", act)
	}
	cfg = &config.Config{Addr: "10.0.0.2:5037"}
	if act := serverAddr(); act != "10.0.0.2:5037" {
		t.Errorf("expected configured address, got %q", act)
	}
}

func TestExitCode(t *testing.T) {
	for _, tc := range []struct {
		err error
		exp int
	}{
		{nil, 0},
		{errors.New("something"), 1},
		{fmt.Errorf("stat: %w", adbsync.ErrPathNotFound), 1},
		{fmt.Errorf("resolve: %w", adblib.ErrNoSuchDevice), 2},
		{adblib.ErrAmbiguousSelector, 2},
	} {
		if act := exitCode(tc.err); act != tc.exp {
			t.Errorf("%v: expected exit code %d, got %d", tc.err, tc.exp, act)
		}
	}
}

func TestFeaturesCommand(t *testing.T) {
	defer func(c *config.Config, cl *adblib.Client) { cfg, client = c, cl }(cfg, client)

	srv := adbtest.NewServer(&adbtest.Device{Serial: "aaa1", State: "device", Features: []string{"shell_v2", "stat_v2"}})
	srv.Features = []string{"shell_v2", "cmd"}
	cfg = &config.Config{}
	client = adblib.NewClient(&adbhost.Dialer{DialContext: srv.DialContext})

	var buf bytes.Buffer
	featuresCmd.SetOut(&buf)
	featuresCmd.SetContext(context.Background())
	if err := featuresCmd.RunE(featuresCmd, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exp := "server " + adbhost.DefaultAddr + ":\n  cmd\n  shell_v2\nSerial(aaa1):\n  shell_v2\n"
	if act := buf.String(); act != exp {
		t.Errorf("incorrect output:\n%s", act)
	}
}
