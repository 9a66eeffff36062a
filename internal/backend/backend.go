// Package backend negotiates hardware execution backends: which are usable on
// this host, in what order, and with which per-backend and per-session tuning.
package backend

import (
	"fmt"
	"strconv"
)

// Backend is an execution provider of the portable runtime.
type Backend string

const (
	CUDA     Backend = "CUDAExecutionProvider"
	OpenVINO Backend = "OpenVINOExecutionProvider"
	CPU      Backend = "CPUExecutionProvider"
)

// Supported lists every backend in descending order of preference.
var Supported = []Backend{CUDA, OpenVINO, CPU}

// Rank returns the priority of b (0 is best) or -1 if b is unknown.
func (b Backend) Rank() int {
	for i, s := range Supported {
		if s == b {
			return i
		}
	}
	return -1
}

// ParseBackend accepts provider names and the short forms cuda/openvino/cpu.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case string(CUDA), "cuda":
		return CUDA, nil
	case string(OpenVINO), "openvino":
		return OpenVINO, nil
	case string(CPU), "cpu":
		return CPU, nil
	}
	return "", fmt.Errorf("unknown execution backend %q", s)
}

// Runtime selects the artifact format and the loader used to open it.
type Runtime string

const (
	// RuntimeONNX is the general portable format.
	RuntimeONNX Runtime = "onnx"
	// RuntimeARMNN is the specialized edge accelerator format.
	RuntimeARMNN Runtime = "armnn"
)

// Ext returns the artifact file extension for the runtime.
func (r Runtime) Ext() string {
	switch r {
	case RuntimeARMNN:
		return ".armnn"
	default:
		return ".onnx"
	}
}

// RuntimeForExt maps a file extension back to its runtime.
func RuntimeForExt(ext string) (Runtime, bool) {
	switch ext {
	case ".onnx":
		return RuntimeONNX, true
	case ".armnn":
		return RuntimeARMNN, true
	}
	return "", false
}

// ProviderOptions is the configuration of one selected backend. The set of
// implementations is closed; each backend has exactly one shape.
type ProviderOptions interface {
	Backend() Backend
	// Map renders the options in the runtime's key/value form.
	Map() map[string]string
	isProviderOptions()
}

// CPUOptions tunes the CPU provider.
type CPUOptions struct {
	ArenaExtendStrategy string
}

func (CPUOptions) Backend() Backend { return CPU }
func (o CPUOptions) Map() map[string]string {
	m := map[string]string{}
	if o.ArenaExtendStrategy != "" {
		m["arena_extend_strategy"] = o.ArenaExtendStrategy
	}
	return m
}
func (CPUOptions) isProviderOptions() {}

// CUDAOptions tunes the CUDA provider.
type CUDAOptions struct {
	ArenaExtendStrategy string
	DeviceID            int
}

func (CUDAOptions) Backend() Backend { return CUDA }
func (o CUDAOptions) Map() map[string]string {
	m := map[string]string{"device_id": strconv.Itoa(o.DeviceID)}
	if o.ArenaExtendStrategy != "" {
		m["arena_extend_strategy"] = o.ArenaExtendStrategy
	}
	return m
}
func (CUDAOptions) isProviderOptions() {}

// OpenVINOOptions tunes the OpenVINO provider.
type OpenVINOOptions struct {
	// DeviceType combines target device and precision, e.g. "GPU_FP32".
	DeviceType string
}

func (OpenVINOOptions) Backend() Backend { return OpenVINO }
func (o OpenVINOOptions) Map() map[string]string {
	m := map[string]string{}
	if o.DeviceType != "" {
		m["device_type"] = o.DeviceType
	}
	return m
}
func (OpenVINOOptions) isProviderOptions() {}

// NoOptions leaves a backend at its runtime defaults.
type NoOptions struct {
	For Backend
}

func (o NoOptions) Backend() Backend     { return o.For }
func (NoOptions) Map() map[string]string { return map[string]string{} }
func (NoOptions) isProviderOptions()     {}

// ExecutionMode controls whether independent graph nodes run concurrently.
type ExecutionMode int

const (
	Sequential ExecutionMode = iota
	Parallel
)

func (m ExecutionMode) String() string {
	if m == Parallel {
		return "parallel"
	}
	return "sequential"
}

// SessionConfig holds threading and memory settings of a session. Zero
// thread counts mean "runtime default".
type SessionConfig struct {
	InterOpThreads    int
	IntraOpThreads    int
	ExecutionMode     ExecutionMode
	EnableCPUMemArena bool
}
