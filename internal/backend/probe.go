package backend

import (
	"strconv"

	"inferd/internal/device"
)

// HostProber inspects the local machine: provider libraries on the library
// path and GPU devices on the PCI bus.
type HostProber struct {
	// PCIRoot overrides the sysfs PCI directory.
	PCIRoot string
	// LibDirs overrides the library search path.
	LibDirs []string
}

func (p HostProber) libDirs() []string {
	if len(p.LibDirs) > 0 {
		return p.LibDirs
	}
	return device.LibraryDirs()
}

// InstalledBackends reports CPU plus every provider whose shared library is found.
func (p HostProber) InstalledBackends() ([]Backend, error) {
	out := []Backend{CPU}
	dirs := p.libDirs()
	if _, ok := device.FindLibrary(dirs, "libonnxruntime_providers_cuda.so*"); ok {
		out = append(out, CUDA)
	}
	if _, ok := device.FindLibrary(dirs, "libonnxruntime_providers_openvino.so*"); ok {
		out = append(out, OpenVINO)
	}
	return out, nil
}

// DeviceIDs enumerates devices per backend.
func (p HostProber) DeviceIDs(b Backend) ([]string, error) {
	switch b {
	case CUDA:
		gpus, err := device.GPUs(p.PCIRoot, device.VendorNVIDIA)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(gpus))
		for i := range gpus {
			ids[i] = strconv.Itoa(i)
		}
		return ids, nil
	case OpenVINO:
		return device.OpenVINODeviceIDs(p.PCIRoot)
	default:
		return []string{"CPU"}, nil
	}
}

// ANNAvailable looks for the Arm NN runtime library.
func (p HostProber) ANNAvailable() bool {
	_, ok := device.FindLibrary(p.libDirs(), "libarmnn.so*")
	return ok
}
