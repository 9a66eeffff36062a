// Package device enumerates accelerator hardware visible to the host via
// sysfs and locates vendor runtime libraries. It backs the execution backend
// probe; nothing here loads a driver.
package device

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultPCIRoot is where Linux exposes PCI devices.
const DefaultPCIRoot = "/sys/bus/pci/devices"

// PCI vendor ids of interest.
const (
	VendorNVIDIA = "0x10de"
	VendorIntel  = "0x8086"
	VendorAMD    = "0x1002"
)

// PCIDevice represents a PCI device with its identifiers.
type PCIDevice struct {
	// VendorID is the PCI vendor ID (e.g., "0x10de")
	VendorID string
	DeviceID string
	// BusAddress is the PCI bus address (e.g., "0000:01:00.0")
	BusAddress string
	// Class is the PCI class code (e.g., "0x030000" for VGA)
	Class string
}

// IsDisplay reports whether the device is a display controller (class 0x03).
func (d PCIDevice) IsDisplay() bool {
	return strings.HasPrefix(strings.ToLower(d.Class), "0x03")
}

// ScanPCIDevices reads every device under root. Individual unreadable
// entries are skipped; a missing root is an error.
func ScanPCIDevices(root string) ([]PCIDevice, error) {
	if root == "" {
		root = DefaultPCIRoot
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read PCI devices: %w", err)
	}
	var devices []PCIDevice
	for _, entry := range entries {
		// PCI device entries are symlinks, not directories
		dev, err := readPCIDevice(filepath.Join(root, entry.Name()), entry.Name())
		if err != nil {
			continue
		}
		devices = append(devices, dev)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].BusAddress < devices[j].BusAddress })
	return devices, nil
}

func readPCIDevice(devicePath, busAddress string) (PCIDevice, error) {
	dev := PCIDevice{BusAddress: busAddress}
	vendor, err := readPCIFile(filepath.Join(devicePath, "vendor"))
	if err != nil {
		return dev, err
	}
	dev.VendorID = strings.ToLower(vendor)
	device, err := readPCIFile(filepath.Join(devicePath, "device"))
	if err != nil {
		return dev, err
	}
	dev.DeviceID = strings.ToLower(device)
	if class, err := readPCIFile(filepath.Join(devicePath, "class")); err == nil {
		dev.Class = strings.ToLower(class)
	}
	return dev, nil
}

func readPCIFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// GPUs returns display-class devices, optionally restricted to one vendor.
func GPUs(root, vendor string) ([]PCIDevice, error) {
	all, err := ScanPCIDevices(root)
	if err != nil {
		return nil, err
	}
	var out []PCIDevice
	for _, d := range all {
		if !d.IsDisplay() {
			continue
		}
		if vendor != "" && d.VendorID != vendor {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// OpenVINODeviceIDs names the devices OpenVINO can target: "CPU" always,
// then "GPU.<n>" for each Intel display device in bus order.
func OpenVINODeviceIDs(root string) ([]string, error) {
	ids := []string{"CPU"}
	gpus, err := GPUs(root, VendorIntel)
	if err != nil {
		return ids, err
	}
	for i := range gpus {
		ids = append(ids, fmt.Sprintf("GPU.%d", i))
	}
	return ids, nil
}
