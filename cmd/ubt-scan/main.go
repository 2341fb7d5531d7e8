// ubt-scan is a BLE advertising survey tool for the Ubertooth One
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/herlein/gotooth/pkg/recon"
	"github.com/herlein/gotooth/pkg/ubertooth"
)

var (
	deviceIdx = flag.Int("d", 0, "Device index (see lsubt)")
	channel   = flag.Int("c", 37, "Advertising channel (37, 38 or 39)")
	duration  = flag.Duration("t", 30*time.Second, "Scan duration (0 = until interrupted)")
	maxPkts   = flag.Uint64("n", 0, "Stop after this many packets (0 = unbounded)")
	follow    = flag.Bool("follow", false, "Hop along when a connection request is seen")
	noCRC     = flag.Bool("no-crc", false, "Keep packets that fail the CRC check")
	jsonOut   = flag.Bool("json", false, "Emit the summary as JSON instead of a table")
	verbose   = flag.Bool("v", false, "Verbose logging")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "BLE advertising survey for Ubertooth One\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -t 1m                 # Survey channel 37 for one minute\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c 39 -json           # Channel 39, JSON output\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -n 1000 -no-crc       # First 1000 packets, CRC failures kept\n", os.Args[0])
	}
	flag.Parse()

	if *verbose {
		ubertooth.SetLogLevel(logrus.DebugLevel)
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

	cfg := recon.DefaultScanConfig()
	cfg.Channel = uint8(*channel)
	cfg.Duration = *duration
	cfg.MaxPackets = *maxPkts
	cfg.Follow = *follow
	cfg.VerifyCRC = !*noCRC

	fmt.Fprintf(os.Stderr, "Scanning advertising channel %d", cfg.Channel)
	if cfg.Duration > 0 {
		fmt.Fprintf(os.Stderr, " for %v", cfg.Duration)
	}
	fmt.Fprintln(os.Stderr, " (Ctrl-C to stop)")

	sum, err := recon.Scan(ctx, mgr, cfg)
	if sum != nil {
		printSummary(sum)
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func printSummary(sum *recon.Summary) {
	if *jsonOut {
		out, err := json.MarshalIndent(sum, "", "  ")
		if err == nil {
			fmt.Println(string(out))
		}
		return
	}

	fmt.Printf("\n%d device(s), %d frames, %d decoded, %d malformed, %d bad CRC, %d dropped\n\n",
		len(sum.Devices), sum.Stream.FramesReceived, sum.Codec.Decoded,
		sum.Codec.Malformed, sum.Codec.CRCInvalid, sum.Stream.Overflowed)
	if len(sum.Devices) == 0 {
		return
	}

	fmt.Printf("%-17s  %-6s  %7s  %9s  %s\n", "ADDRESS", "TYPE", "PACKETS", "AVG dBm", "NAME")
	for _, d := range sum.Devices {
		fmt.Printf("%-17s  %-6s  %7d  %9.1f  %s\n",
			d.Address, d.AddressType, d.Packets, d.RSSI.Avg(), d.Name)
	}
}
