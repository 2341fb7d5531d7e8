// lsubt: List all connected Ubertooth devices
//
// Enumerates Ubertooth One devices, including any sitting in DFU
// bootloader mode, and shows their bus position and serial. With -v it
// connects to each device and queries firmware details.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/herlein/gotooth/pkg/ubertooth"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output (connect and query firmware details)")
	flag.Parse()

	mgr := ubertooth.NewManager()
	defer mgr.Close()

	devices, err := mgr.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to enumerate devices: %v\n", err)
		os.Exit(1)
	}

	if len(devices) == 0 {
		fmt.Println("No Ubertooth devices found")
		os.Exit(0)
	}

	fmt.Printf("Found %d Ubertooth device(s):\n", len(devices))
	fmt.Println()

	for i, d := range devices {
		if d.Bootloader {
			fmt.Printf("  #%d  %d:%d  (DFU bootloader mode)\n", i, d.Bus, d.Address)
			continue
		}
		if !*verbose {
			fmt.Printf("  #%d  %s  %d:%d\n", i, d.Serial, d.Bus, d.Address)
			continue
		}

		fmt.Printf("Device #%d:\n", i)
		fmt.Printf("  Serial:       %s\n", d.Serial)
		fmt.Printf("  Bus:Address:  %d:%d\n", d.Bus, d.Address)
		fmt.Printf("  Manufacturer: %s\n", d.Manufacturer)
		fmt.Printf("  Product:      %s\n", d.Product)

		if err := mgr.Connect(i); err != nil {
			fmt.Printf("  Firmware:     (error: %v)\n", err)
			fmt.Println()
			continue
		}
		info := mgr.Device().Info()
		fmt.Printf("  Board:        %s (id %d)\n", info.BoardName, info.BoardID)
		fmt.Printf("  Firmware:     %s\n", info.FirmwareRevision)
		fmt.Printf("  API:          %s\n", info.APIVersion)
		if info.FlashSerial != "" {
			fmt.Printf("  Flash serial: %s\n", info.FlashSerial)
		}
		if info.PartNum != 0 {
			fmt.Printf("  MCU part:     0x%08X\n", info.PartNum)
		}
		fmt.Printf("  Capabilities: %v\n", info.Capabilities())
		if err := mgr.Disconnect(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: disconnect #%d: %v\n", i, err)
		}
		fmt.Println()
	}

	if !*verbose {
		fmt.Println()
		fmt.Println("Use -d with other tools to select a device by index")
	}
}
