package backend

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// CPU-only thread defaults keep co-resident models from contending for cores.
const (
	cpuInterOpThreads = 1
	cpuIntraOpThreads = 2
)

// Settings are the process-wide knobs that feed default resolution.
type Settings struct {
	// InterOpThreads and IntraOpThreads override computed defaults when > 0.
	InterOpThreads int
	IntraOpThreads int
	// ANN enables the accelerator runtime when its library is present.
	ANN bool
}

// Prober answers host capability questions.
type Prober interface {
	// InstalledBackends lists backends whose runtime support is installed.
	InstalledBackends() ([]Backend, error)
	// DeviceIDs enumerates devices a backend can target.
	DeviceIDs(b Backend) ([]string, error)
	// ANNAvailable reports whether the accelerator runtime library is present.
	ANNAvailable() bool
}

// Catalog resolves backend selections and their default configuration.
type Catalog struct {
	prober   Prober
	settings Settings
	log      zerolog.Logger

	once      sync.Once
	available []Backend
}

// NewCatalog builds a catalog over prober. A nil logger discards output.
func NewCatalog(prober Prober, settings Settings, log *zerolog.Logger) *Catalog {
	c := &Catalog{prober: prober, settings: settings, log: zerolog.Nop()}
	if log != nil {
		c.log = *log
	}
	return c
}

// Settings returns the process settings the catalog was built with.
func (c *Catalog) Settings() Settings { return c.settings }

// ProbeAvailable returns the usable backends in priority order. The host is
// probed once per catalog.
func (c *Catalog) ProbeAvailable() []Backend {
	c.once.Do(func() { c.available = c.probe() })
	return append([]Backend(nil), c.available...)
}

func (c *Catalog) probe() []Backend {
	installed, err := c.prober.InstalledBackends()
	if err != nil {
		c.log.Warn().Err(err).Msg("backend probe failed, using CPU only")
		return []Backend{CPU}
	}
	present := make(map[Backend]bool, len(installed))
	for _, b := range installed {
		present[b] = true
	}
	c.log.Debug().Strs("installed", names(installed)).Msg("installed execution backends")

	for _, b := range []Backend{CUDA, OpenVINO} {
		if !present[b] {
			continue
		}
		ids, err := c.prober.DeviceIDs(b)
		if err != nil {
			c.log.Warn().Str("backend", string(b)).Err(err).Msg("device enumeration failed, excluding backend")
			delete(present, b)
			continue
		}
		c.log.Debug().Str("backend", string(b)).Strs("devices", ids).Msg("available devices")
		if len(gpuDevices(b, ids)) == 0 {
			c.log.Warn().Str("backend", string(b)).Msg("no GPU device found, falling back to CPU")
			delete(present, b)
		}
	}

	var out []Backend
	for _, b := range Supported {
		if present[b] {
			out = append(out, b)
		}
	}
	return out
}

// gpuDevices keeps the ids that name a GPU-class device.
func gpuDevices(b Backend, ids []string) []string {
	var out []string
	for _, id := range ids {
		switch b {
		case OpenVINO:
			if strings.HasPrefix(id, "GPU") {
				out = append(out, id)
			}
		default:
			out = append(out, id)
		}
	}
	return out
}

// DefaultProviderOptions returns one options value per backend, positionally.
func (c *Catalog) DefaultProviderOptions(backends []Backend) []ProviderOptions {
	out := make([]ProviderOptions, 0, len(backends))
	for _, b := range backends {
		switch b {
		case CPU:
			out = append(out, CPUOptions{ArenaExtendStrategy: "kSameAsRequested"})
		case CUDA:
			out = append(out, CUDAOptions{ArenaExtendStrategy: "kSameAsRequested"})
		case OpenVINO:
			out = append(out, OpenVINOOptions{DeviceType: "GPU_FP32"})
		default:
			out = append(out, NoOptions{For: b})
		}
	}
	return out
}

// DefaultSessionConfig derives threading from the process settings and the
// already-resolved backend selection.
func (c *Catalog) DefaultSessionConfig(backends []Backend) SessionConfig {
	cfg := SessionConfig{EnableCPUMemArena: false}
	cpuOnly := len(backends) == 1 && backends[0] == CPU

	switch {
	case c.settings.InterOpThreads > 0:
		cfg.InterOpThreads = c.settings.InterOpThreads
	case cpuOnly:
		cfg.InterOpThreads = cpuInterOpThreads
	}
	switch {
	case c.settings.IntraOpThreads > 0:
		cfg.IntraOpThreads = c.settings.IntraOpThreads
	case cpuOnly:
		cfg.IntraOpThreads = cpuIntraOpThreads
	}
	if cfg.InterOpThreads > 1 {
		cfg.ExecutionMode = Parallel
	}
	return cfg
}

// DefaultRuntime prefers the accelerator format only when its library is
// present and the process toggle enables it.
func (c *Catalog) DefaultRuntime() Runtime {
	if c.settings.ANN && c.prober.ANNAvailable() {
		return RuntimeARMNN
	}
	return RuntimeONNX
}

func names(bs []Backend) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = string(b)
	}
	return out
}

// Names renders backends as provider names.
func Names(bs []Backend) []string { return names(bs) }
