// ubt-specan is a firmware-based 2.4 GHz spectrum analyzer for the
// Ubertooth One
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/herlein/gotooth/pkg/recon"
	"github.com/herlein/gotooth/pkg/stream"
	"github.com/herlein/gotooth/pkg/ubertooth"
)

var (
	deviceIdx = flag.Int("d", 0, "Device index (see lsubt)")
	lowFreq   = flag.Uint("low", 2402, "Low edge of the sweep in MHz")
	highFreq  = flag.Uint("high", 2480, "High edge of the sweep in MHz")
	duration  = flag.Duration("t", 10*time.Second, "Sweep duration (0 = until interrupted)")
	threshold = flag.Int("threshold", recon.DefaultActivityThreshold, "Activity threshold in dBm")
	jsonOut   = flag.Bool("json", false, "Emit the summary as JSON instead of a table")
	verbose   = flag.Bool("v", false, "Verbose logging")
)

func main() {
	flag.Parse()

	if *verbose {
		ubertooth.SetLogLevel(logrus.DebugLevel)
		stream.SetLogLevel(logrus.DebugLevel)
		recon.SetLogLevel(logrus.DebugLevel)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	mgr := ubertooth.NewManager()
	defer mgr.Close()

	if err := mgr.Connect(*deviceIdx); err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	defer mgr.Disconnect()
	fmt.Fprintf(os.Stderr, "Connected to %s\n", mgr.Device())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := recon.DefaultSweepConfig()
	cfg.LowMHz = uint16(*lowFreq)
	cfg.HighMHz = uint16(*highFreq)
	cfg.Duration = *duration
	cfg.ActivityThreshold = int8(*threshold)

	fmt.Fprintf(os.Stderr, "Sweeping %d-%d MHz", cfg.LowMHz, cfg.HighMHz)
	if cfg.Duration > 0 {
		fmt.Fprintf(os.Stderr, " for %v", cfg.Duration)
	}
	fmt.Fprintln(os.Stderr, " (Ctrl-C to stop)")

	sum, err := recon.Sweep(ctx, mgr, cfg)
	if sum != nil {
		printSummary(sum, int8(*threshold))
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func printSummary(sum *recon.Summary, threshold int8) {
	if *jsonOut {
		out, err := json.MarshalIndent(sum, "", "  ")
		if err == nil {
			fmt.Println(string(out))
		}
		return
	}

	fmt.Printf("\n%d frames, %d samples across %d frequencies\n\n",
		sum.Stream.FramesReceived, sum.Codec.Decoded, len(sum.Spectrum))
	if len(sum.Spectrum) == 0 {
		return
	}

	fmt.Printf("%8s  %8s  %8s  %8s  %9s\n", "MHz", "SAMPLES", "AVG dBm", "MAX dBm", "ACTIVITY")
	for _, f := range sum.Spectrum {
		bar := strings.Repeat("#", int(f.ActivityPct)/5)
		fmt.Printf("%8d  %8d  %8.1f  %8d  %8.1f%%  %s\n",
			f.FrequencyMHz, f.Samples, f.RSSI.Avg(), f.RSSI.Max, f.ActivityPct, bar)
	}
	fmt.Printf("\nActivity threshold: %d dBm\n", threshold)
}
