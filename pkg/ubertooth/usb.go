package ubertooth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
)

// DeviceInfo describes an enumerated Ubertooth without claiming its
// interface, so listing never disturbs a device another process owns.
type DeviceInfo struct {
	Serial       string `json:"serial"`
	Manufacturer string `json:"manufacturer"`
	Product      string `json:"product"`
	Bus          int    `json:"bus"`
	Address      int    `json:"address"`
	// Bootloader is true when the device enumerated in DFU mode and
	// cannot run firmware commands until it is re-flashed or reset.
	Bootloader bool `json:"bootloader"`
}

// String returns a human-readable description of the device
func (i DeviceInfo) String() string {
	mode := ""
	if i.Bootloader {
		mode = " [bootloader]"
	}
	return fmt.Sprintf("Bus %03d Addr %03d %s %s (Serial: %s)%s",
		i.Bus, i.Address, i.Manufacturer, i.Product, i.Serial, mode)
}

// List enumerates all attached Ubertooth devices, including any sitting
// in the DFU bootloader.
func List(usbCtx *gousb.Context) ([]DeviceInfo, error) {
	infos := []DeviceInfo{}

	usbDevs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != gousb.ID(VendorID) {
			return false
		}
		return desc.Product == gousb.ID(ProductID) || desc.Product == gousb.ID(ProductIDBootloader)
	})
	for _, usbDev := range usbDevs {
		infos = append(infos, infoFor(usbDev))
		usbDev.Close()
	}
	if err != nil && len(infos) == 0 {
		return nil, fmt.Errorf("failed to enumerate devices: %w", classifyUSBError(err))
	}

	return infos, nil
}

func infoFor(usbDev *gousb.Device) DeviceInfo {
	serial, _ := usbDev.SerialNumber()
	manufacturer, _ := usbDev.Manufacturer()
	product, _ := usbDev.Product()

	desc := usbDev.Desc
	return DeviceInfo{
		Serial:       serial,
		Manufacturer: manufacturer,
		Product:      product,
		Bus:          desc.Bus,
		Address:      desc.Address,
		Bootloader:   desc.Product == gousb.ID(ProductIDBootloader),
	}
}

// usbTransport is the gousb-backed Transport used against real hardware.
type usbTransport struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	epIn *gousb.InEndpoint
	epOut *gousb.OutEndpoint

	ctrlMu  sync.Mutex
	closeMu sync.Mutex
}

// openTransport opens the Ubertooth at the given enumeration index
// (0 = first found) and claims its bulk endpoints. Devices stuck in the
// bootloader do not count.
func openTransport(usbCtx *gousb.Context, index int) (*usbTransport, DeviceInfo, error) {
	usbDevs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(VendorID) && desc.Product == gousb.ID(ProductID)
	})
	if err != nil && len(usbDevs) == 0 {
		return nil, DeviceInfo{}, fmt.Errorf("failed to enumerate devices: %w", classifyUSBError(err))
	}

	var chosen *gousb.Device
	for i, usbDev := range usbDevs {
		if i == index {
			chosen = usbDev
			continue
		}
		usbDev.Close()
	}
	if chosen == nil {
		if len(usbDevs) > 0 {
			return nil, DeviceInfo{}, fmt.Errorf("%w: index %d out of range (%d attached)",
				ErrDeviceNotFound, index, len(usbDevs))
		}
		return nil, DeviceInfo{}, ErrDeviceNotFound
	}

	info := infoFor(chosen)
	tr, err := claimTransport(chosen)
	if err != nil {
		chosen.Close()
		return nil, DeviceInfo{}, err
	}
	return tr, info, nil
}

func claimTransport(usbDev *gousb.Device) (*usbTransport, error) {
	usbDev.SetAutoDetach(true)
	usbDev.ControlTimeout = DefaultTimeout

	config, err := usbDev.Config(1)
	if err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", classifyUSBError(err))
	}

	iface, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		return nil, fmt.Errorf("failed to claim interface: %w", classifyUSBError(err))
	}

	// Bulk IN endpoint 0x82 carries capture frames
	epIn, err := iface.InEndpoint(DataInEndpointNum)
	if err != nil {
		iface.Close()
		config.Close()
		return nil, fmt.Errorf("failed to get IN endpoint: %w", classifyUSBError(err))
	}

	// Bulk OUT endpoint 0x05 carries symbol data for TX-capable firmware
	epOut, err := iface.OutEndpoint(DataOutEndpointNum)
	if err != nil {
		iface.Close()
		config.Close()
		return nil, fmt.Errorf("failed to get OUT endpoint: %w", classifyUSBError(err))
	}

	return &usbTransport{
		dev:   usbDev,
		cfg:   config,
		intf:  iface,
		epIn:  epIn,
		epOut: epOut,
	}, nil
}

// Control performs a vendor control transfer on endpoint 0. gousb keeps
// the control timeout on the device handle, so the field is swapped
// under a lock for the duration of the call.
func (t *usbTransport) Control(rType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	t.ctrlMu.Lock()
	t.dev.ControlTimeout = timeout
	n, err := t.dev.Control(rType, request, value, index, data)
	t.ctrlMu.Unlock()

	if err != nil {
		return n, classifyUSBError(err)
	}
	return n, nil
}

// BulkIn reads one transfer from the data-IN endpoint.
func (t *usbTransport) BulkIn(ctx context.Context, buf []byte) (int, error) {
	n, err := t.epIn.ReadContext(ctx, buf)
	if err != nil {
		// A cancelled or expired context surfaces as a libusb transfer
		// error; report the context's verdict so callers can tell an
		// orderly shutdown from a dead device.
		if cerr := ctx.Err(); cerr != nil {
			return n, cerr
		}
		return n, classifyUSBError(err)
	}
	return n, nil
}

// BulkOut writes data to the data-OUT endpoint.
func (t *usbTransport) BulkOut(ctx context.Context, data []byte) (int, error) {
	n, err := t.epOut.WriteContext(ctx, data)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return n, cerr
		}
		return n, classifyUSBError(err)
	}
	return n, nil
}

// Close releases the interface, configuration and device handle.
func (t *usbTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()

	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		err := t.dev.Close()
		t.dev = nil
		return err
	}
	return nil
}

// classifyUSBError maps libusb failure text onto the package sentinels.
// gousb reports libusb status as formatted strings, so matching on the
// message is the only portable way to tell the cases apart.
func classifyUSBError(err error) error {
	if err == nil {
		return nil
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "bad access") || strings.Contains(s, "permission"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case strings.Contains(s, "busy"):
		return fmt.Errorf("%w: %v", ErrAlreadyInUse, err)
	case strings.Contains(s, "no device") || strings.Contains(s, "not found") ||
		strings.Contains(s, "disconnected") || strings.Contains(s, "input/output error"):
		return fmt.Errorf("%w: %v", ErrDeviceLost, err)
	case strings.Contains(s, "timeout") || strings.Contains(s, "timed out"):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case strings.Contains(s, "pipe"):
		return fmt.Errorf("%w: endpoint stalled: %v", ErrProtocol, err)
	default:
		return err
	}
}
