package ubertooth

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Info aggregates the USB descriptor fields with what the firmware
// reported during the connect handshake.
type Info struct {
	DeviceInfo
	BoardID          uint8  `json:"board_id"`
	BoardName        string `json:"board_name"`
	FirmwareRevision string `json:"firmware_revision"`
	APIMajor         uint8  `json:"api_major"`
	APIMinor         uint8  `json:"api_minor"`
	APIVersion       string `json:"api_version"`
	FlashSerial      string `json:"flash_serial,omitempty"`
	PartNum          uint32 `json:"part_num,omitempty"`
	CompileInfo      string `json:"compile_info,omitempty"`
}

// Capabilities lists the operations this board and firmware combination
// supports. Promiscuous capture and connection following need the
// versioned command API; the amplifier controls exist on Ubertooth One
// hardware only.
func (i Info) Capabilities() []string {
	caps := []string{"br-rx", "btle-sniff", "specan"}
	if i.APIMajor >= 1 {
		caps = append(caps, "btle-promisc", "follow")
	}
	if i.BoardID == BoardUbertoothOne {
		caps = append(caps, "pa", "hgm")
	}
	return caps
}

// String returns a human-readable description of the device
func (i Info) String() string {
	return fmt.Sprintf("%s rev %s (API %s, serial %s)",
		i.BoardName, i.FirmwareRevision, i.APIVersion, i.Serial)
}

// Device represents one claimed Ubertooth. Vendor commands on endpoint 0
// are serialized; the bulk data endpoint is driven separately and may be
// read concurrently with command execution.
type Device struct {
	transport Transport
	info      Info

	cmdMu sync.Mutex

	cfgMu sync.RWMutex
	cfg   Config
}

func newDevice(t Transport, usbInfo DeviceInfo) *Device {
	return &Device{
		transport: t,
		info:      Info{DeviceInfo: usbInfo},
		cfg:       DefaultConfig(),
	}
}

// Info returns the handshake snapshot.
func (d *Device) Info() Info {
	return d.info
}

// String returns a human-readable description of the device
func (d *Device) String() string {
	return d.info.String()
}

// Request issues a device-to-host vendor read and returns how many bytes
// the firmware produced.
func (d *Device) Request(opcode uint8, value, index uint16, buf []byte, timeout time.Duration) (int, error) {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()
	return d.control(RequestTypeIn, opcode, value, index, buf, timeout)
}

// Command issues a host-to-device vendor write.
func (d *Device) Command(opcode uint8, value, index uint16, data []byte, timeout time.Duration) error {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()
	_, err := d.control(RequestTypeOut, opcode, value, index, data, timeout)
	return err
}

// control runs one command round-trip. Only one command is in flight per
// device (callers hold cmdMu). A timed-out round-trip is retried up to
// CommandRetries extra attempts before the timeout surfaces.
func (d *Device) control(rType, opcode uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var n int
	var err error
	for attempt := 0; attempt <= CommandRetries; attempt++ {
		n, err = d.transport.Control(rType, opcode, value, index, data, timeout)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, ErrTimeout) {
			break
		}
		if attempt < CommandRetries {
			log.Debugf("command 0x%02x timed out, retrying (%d/%d)", opcode, attempt+1, CommandRetries)
		}
	}
	return n, fmt.Errorf("command 0x%02x failed: %w", opcode, err)
}

// requestExact reads a fixed-size response; a short read is a protocol
// violation, not a partial success.
func (d *Device) requestExact(opcode uint8, value, index uint16, buf []byte, timeout time.Duration) error {
	n, err := d.Request(opcode, value, index, buf, timeout)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("%w: command 0x%02x returned %d bytes, want %d",
			ErrProtocol, opcode, n, len(buf))
	}
	return nil
}

// BulkIn reads one bulk transfer from the data-IN endpoint.
func (d *Device) BulkIn(ctx context.Context, buf []byte) (int, error) {
	return d.transport.BulkIn(ctx, buf)
}

// Close sends a best-effort stop so the firmware quits streaming, then
// releases the USB handle.
func (d *Device) Close() error {
	d.transport.Control(RequestTypeOut, CmdStop, 0, 0, nil, ShortTimeout)
	return d.transport.Close()
}

// Ping confirms the firmware is alive and servicing endpoint 0.
func (d *Device) Ping() error {
	return d.Command(CmdPing, 0, 0, nil, ShortTimeout)
}

// GetBoardID reports which board the firmware is running on.
func (d *Device) GetBoardID() (uint8, error) {
	buf := make([]byte, 1)
	if err := d.requestExact(CmdGetBoardID, 0, 0, buf, ShortTimeout); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// GetFirmwareRevision returns the firmware build revision string.
// Response layout: legacy revision number (2 bytes LE), string length
// (1 byte), ASCII string.
func (d *Device) GetFirmwareRevision() (string, error) {
	buf := make([]byte, 258)
	n, err := d.Request(CmdGetRevNum, 0, 0, buf, ShortTimeout)
	if err != nil {
		return "", err
	}
	if n < 3 {
		return "", fmt.Errorf("%w: revision response too short (%d bytes)", ErrProtocol, n)
	}
	strLen := int(buf[2])
	if 3+strLen > n {
		strLen = n - 3
	}
	return string(buf[3 : 3+strLen]), nil
}

// GetAPIVersion returns the firmware command API version.
func (d *Device) GetAPIVersion() (major, minor uint8, err error) {
	buf := make([]byte, 2)
	if err := d.requestExact(CmdGetAPIVersion, 0, 0, buf, ShortTimeout); err != nil {
		return 0, 0, err
	}
	v := binary.LittleEndian.Uint16(buf)
	return uint8(v >> 8), uint8(v & 0xff), nil
}

// GetSerial returns the MCU flash serial as 32 hex digits. The response
// carries a status byte followed by four little-endian words.
func (d *Device) GetSerial() (string, error) {
	buf := make([]byte, 17)
	if err := d.requestExact(CmdGetSerial, 0, 0, buf, ShortTimeout); err != nil {
		return "", err
	}
	if buf[0] != 0 {
		return "", fmt.Errorf("%w: serial query status 0x%02x", ErrProtocol, buf[0])
	}
	var words [4]uint32
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[1+4*i:])
	}
	return fmt.Sprintf("%08x%08x%08x%08x", words[0], words[1], words[2], words[3]), nil
}

// GetPartNum returns the MCU part number.
func (d *Device) GetPartNum() (uint32, error) {
	buf := make([]byte, 5)
	if err := d.requestExact(CmdGetPartNum, 0, 0, buf, ShortTimeout); err != nil {
		return 0, err
	}
	if buf[0] != 0 {
		return 0, fmt.Errorf("%w: part number query status 0x%02x", ErrProtocol, buf[0])
	}
	return binary.LittleEndian.Uint32(buf[1:]), nil
}

// GetCompileInfo returns the firmware compile banner.
// Response layout: string length (1 byte), ASCII string.
func (d *Device) GetCompileInfo() (string, error) {
	buf := make([]byte, 256)
	n, err := d.Request(CmdGetCompileInfo, 0, 0, buf, ShortTimeout)
	if err != nil {
		return "", err
	}
	if n < 1 {
		return "", fmt.Errorf("%w: empty compile info response", ErrProtocol)
	}
	strLen := int(buf[0])
	if 1+strLen > n {
		strLen = n - 1
	}
	return string(buf[1 : 1+strLen]), nil
}

// handshake verifies the firmware responds and fills the info snapshot.
// Board ID and firmware revision are required; the remaining queries are
// allowed to fail on older firmware.
func (d *Device) handshake() error {
	if err := d.Ping(); err != nil {
		return fmt.Errorf("device not responding: %w", err)
	}

	boardID, err := d.GetBoardID()
	if err != nil {
		return fmt.Errorf("failed to read board ID: %w", err)
	}
	d.info.BoardID = boardID
	d.info.BoardName = BoardName(boardID)

	rev, err := d.GetFirmwareRevision()
	if err != nil {
		return fmt.Errorf("failed to read firmware revision: %w", err)
	}
	d.info.FirmwareRevision = rev

	if major, minor, err := d.GetAPIVersion(); err != nil {
		log.Debugf("API version query failed: %v", err)
		d.info.APIVersion = "unknown"
	} else {
		d.info.APIMajor = major
		d.info.APIMinor = minor
		d.info.APIVersion = fmt.Sprintf("%d.%02d", major, minor)
	}

	if serial, err := d.GetSerial(); err != nil {
		log.Debugf("flash serial query failed: %v", err)
	} else {
		d.info.FlashSerial = serial
	}

	if part, err := d.GetPartNum(); err != nil {
		log.Debugf("part number query failed: %v", err)
	} else {
		d.info.PartNum = part
	}

	if ci, err := d.GetCompileInfo(); err != nil {
		log.Debugf("compile info query failed: %v", err)
	} else {
		d.info.CompileInfo = ci
	}

	return nil
}
