package manager

import (
	"inferd/internal/backend"
	"inferd/internal/session"
	"inferd/pkg/types"
)

// Backends reports the execution backend negotiation on this host: what the
// probe found and the defaults a new model would be built with. It does not
// mutate state and is safe to call at any time.
func (m *Manager) Backends() types.BackendReport {
	return BackendReport(m.deps.Catalog)
}

// BackendReport renders the defaults c would hand to a new model.
func BackendReport(c *backend.Catalog) types.BackendReport {
	r := types.BackendReport{ONNXRuntimeBuilt: session.ONNXBuilt}
	if c == nil {
		return r
	}
	avail := c.ProbeAvailable()
	r.Available = backend.Names(avail)
	for _, po := range c.DefaultProviderOptions(avail) {
		r.ProviderOptions = append(r.ProviderOptions, po.Map())
	}
	sc := c.DefaultSessionConfig(avail)
	r.InterOpThreads = sc.InterOpThreads
	r.IntraOpThreads = sc.IntraOpThreads
	r.ExecutionMode = sc.ExecutionMode.String()
	r.CPUMemArena = sc.EnableCPUMemArena
	r.PreferredRuntime = string(c.DefaultRuntime())
	return r
}
