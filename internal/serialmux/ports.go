package serialmux

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial device visible to the host.
type PortInfo struct {
	Path         string `json:"path"`
	FriendlyName string `json:"friendly_name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// Swapped in tests; real enumeration depends on the host.
var (
	detailedPortsList = enumerator.GetDetailedPortsList
	plainPortsList    = serial.GetPortsList
)

// ListPorts enumerates serial devices, sorted by path. Detailed USB metadata
// is used when the platform enumerator supports it; otherwise only the names
// are reported. An empty list is not an error.
func ListPorts() ([]PortInfo, error) {
	ports := []PortInfo{}

	details, err := detailedPortsList()
	if err == nil {
		for _, d := range details {
			if d == nil || d.Name == "" {
				continue
			}
			info := PortInfo{
				Path:         d.Name,
				FriendlyName: friendlyName(d.Name),
				IsUSB:        d.IsUSB,
				Product:      d.Product,
			}
			if d.IsUSB {
				info.VID = d.VID
				info.PID = d.PID
				info.SerialNumber = d.SerialNumber
			}
			ports = append(ports, info)
		}
	} else {
		names, perr := plainPortsList()
		if perr != nil {
			return nil, fmt.Errorf("enumerate serial ports: %w", perr)
		}
		for _, name := range names {
			ports = append(ports, PortInfo{Path: name, FriendlyName: friendlyName(name)})
		}
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Path < ports[j].Path })
	return ports, nil
}

// friendlyName generates a user-friendly name for a serial port.
func friendlyName(portPath string) string {
	deviceName := filepath.Base(portPath)
	switch {
	case strings.HasPrefix(deviceName, "ttyUSB"):
		return fmt.Sprintf("USB Serial Adapter (%s)", deviceName)
	case strings.HasPrefix(deviceName, "ttyACM"):
		return fmt.Sprintf("USB CDC Device (%s)", deviceName)
	case strings.HasPrefix(deviceName, "ttyAMA"), strings.HasPrefix(deviceName, "ttyS0"):
		return fmt.Sprintf("Onboard UART (%s)", deviceName)
	case strings.HasPrefix(deviceName, "COM"):
		return fmt.Sprintf("Serial Port (%s)", deviceName)
	default:
		return deviceName
	}
}
