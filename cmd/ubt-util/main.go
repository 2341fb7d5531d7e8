// ubt-util configures and inspects an Ubertooth One: channel, power
// amplifier, modulation, squelch, LEDs, clock, registers, saved
// profiles and reset.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/herlein/gotooth/pkg/config"
	"github.com/herlein/gotooth/pkg/registers"
	"github.com/herlein/gotooth/pkg/ubertooth"
)

var (
	deviceIdx = flag.Int("d", 0, "Device index (see lsubt)")
	showInfo  = flag.Bool("i", false, "Print device identity as JSON")
	channel   = flag.Int("c", -1, "Set channel index (0-78)")
	modName   = flag.String("m", "", "Set modulation: br, le or none")
	paLevel   = flag.Int("p", -1, "Set PA level (0-7)")
	amp       = flag.String("amp", "", "External PA: on or off")
	hgm       = flag.String("hgm", "", "High-gain mode: on or off")
	squelch   = flag.Int("s", 1, "Set squelch threshold in dBm (negative)")
	usrLED    = flag.String("usr", "", "USR LED: on or off")
	rxLED     = flag.String("rx", "", "RX LED: on or off")
	txLED     = flag.String("tx", "", "TX LED: on or off")
	showClock = flag.Bool("clock", false, "Print the device clock")
	register  = flag.String("reg", "", "Read a CC2400 register by name or number (e.g. GRMDM or 0x16)")
	dumpRegs  = flag.Bool("regs", false, "Dump the full CC2400 register snapshot")
	savePath  = flag.String("save", "", "Save device profile to FILE (auto = etc/ubertooth/<serial>.json)")
	loadPath  = flag.String("load", "", "Load a device profile from FILE and apply it")
	doStop    = flag.Bool("stop", false, "Halt any active capture")
	doReset   = flag.Bool("reset", false, "Reset the device (it will re-enumerate)")
	verbose   = flag.Bool("v", false, "Verbose logging")
)

func main() {
	flag.Parse()
	if *verbose {
		ubertooth.SetLogLevel(logrus.DebugLevel)
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func onOff(s string) (bool, error) {
	switch s {
	case "on", "1":
		return true, nil
	case "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", s)
}

func parseRegister(s string) (uint8, error) {
	if addr, ok := registers.Lookup(strings.ToUpper(s)); ok {
		return addr, nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown register %q", s)
	}
	return uint8(n), nil
}

func profilePath(arg string, dev *ubertooth.Device) string {
	if arg == "auto" {
		return config.DefaultPath(dev.Info().Serial)
	}
	return arg
}

func run() error {
	mgr := ubertooth.NewManager()
	defer mgr.Close()

	if err := mgr.Connect(*deviceIdx); err != nil {
		return fmt.Errorf("failed to open device: %w", err)
	}
	defer mgr.Disconnect()
	dev := mgr.Device()

	if *showInfo {
		out, err := json.MarshalIndent(dev.Info(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}

	if *doStop {
		if err := dev.Stop(); err != nil {
			return fmt.Errorf("stop failed: %w", err)
		}
		fmt.Println("Capture halted")
	}

	// A loaded profile applies first so explicit flags can override
	// individual settings on top of it.
	if *loadPath != "" {
		path := profilePath(*loadPath, dev)
		profile, err := config.LoadFromFile(path)
		if err != nil {
			return err
		}
		if err := config.ApplyToDevice(dev, profile); err != nil {
			return err
		}
		fmt.Printf("Applied profile %s (saved %s)\n", path, profile.Timestamp.Format(time.RFC3339))
	}

	if *channel >= 0 {
		if err := dev.SetChannel(uint8(*channel)); err != nil {
			return err
		}
		fmt.Printf("Channel set to %d (%d MHz)\n", *channel, ubertooth.FrequencyMHz(uint8(*channel)))
	}
	if *modName != "" {
		var mod ubertooth.Modulation
		switch *modName {
		case "br":
			mod = ubertooth.ModBTBasicRate
		case "le":
			mod = ubertooth.ModBTLowEnergy
		case "none":
			mod = ubertooth.ModNone
		default:
			return fmt.Errorf("unknown modulation %q (want br, le or none)", *modName)
		}
		if err := dev.SetModulation(mod); err != nil {
			return err
		}
		fmt.Printf("Modulation set to %s\n", mod)
	}
	if *paLevel >= 0 {
		dbm, err := dev.SetPALevel(uint8(*paLevel))
		if err != nil {
			return err
		}
		fmt.Printf("PA level set to %d (%.1f dBm)\n", *paLevel, dbm)
	}
	if *amp != "" {
		on, err := onOff(*amp)
		if err != nil {
			return fmt.Errorf("-amp: %w", err)
		}
		if err := dev.SetPAEnable(on); err != nil {
			return err
		}
		fmt.Printf("External PA %s\n", *amp)
	}
	if *hgm != "" {
		on, err := onOff(*hgm)
		if err != nil {
			return fmt.Errorf("-hgm: %w", err)
		}
		if err := dev.SetHGM(on); err != nil {
			return err
		}
		fmt.Printf("High-gain mode %s\n", *hgm)
	}
	if *squelch <= 0 {
		if err := dev.SetSquelch(int8(*squelch)); err != nil {
			return err
		}
		fmt.Printf("Squelch set to %d dBm\n", *squelch)
	}

	for _, led := range []struct {
		val  string
		name string
		set  func(bool) error
	}{
		{*usrLED, "USR", dev.SetUSRLED},
		{*rxLED, "RX", dev.SetRXLED},
		{*txLED, "TX", dev.SetTXLED},
	} {
		if led.val == "" {
			continue
		}
		on, err := onOff(led.val)
		if err != nil {
			return fmt.Errorf("%s LED: %w", led.name, err)
		}
		if err := led.set(on); err != nil {
			return err
		}
		fmt.Printf("%s LED %s\n", led.name, led.val)
	}

	if *showClock {
		clkn, err := dev.GetClock()
		if err != nil {
			return err
		}
		fmt.Printf("Device clock: %d (0x%08x)\n", clkn, clkn)
	}
	if *register != "" {
		addr, err := parseRegister(*register)
		if err != nil {
			return err
		}
		val, err := dev.ReadRegister(addr)
		if err != nil {
			return err
		}
		if name := registers.Name(addr); name != "" {
			fmt.Printf("%s (0x%02x) = 0x%04x\n", name, addr, val)
		} else {
			fmt.Printf("Register 0x%02x = 0x%04x\n", addr, val)
		}
	}
	if *dumpRegs {
		regs, err := registers.ReadAll(dev)
		if err != nil {
			return err
		}
		for _, f := range regs.Fields() {
			fmt.Printf("  %-9s (0x%02x) = 0x%04x\n", f.Name, f.Addr, f.Value)
		}
		fmt.Printf("RSSI %d dBm, synth %d MHz, sync word 0x%08x\n",
			regs.RSSIdBm(), regs.FrequencyMHz(), regs.SyncWord())
	}

	if *savePath != "" {
		path := profilePath(*savePath, dev)
		profile, err := config.DumpFromDevice(dev)
		if err != nil {
			return err
		}
		if err := profile.SaveToFile(path); err != nil {
			return err
		}
		fmt.Printf("Saved profile for %s to %s\n", profile.Serial, path)
	}

	if *doReset {
		if err := dev.Reset(); err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}
		fmt.Println("Device reset; it will re-enumerate shortly")
	}
	return nil
}
