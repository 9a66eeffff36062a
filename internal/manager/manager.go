package manager

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/common/fsutil"
	"inferd/internal/model"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

type Manager struct {
	mu        sync.RWMutex
	err       string
	deps      model.Deps
	factories map[types.Family]Factory
	params    map[types.Family]model.Params
	opts      model.Options
	// Multi-instance fields
	instances map[string]*Instance
	closed    bool

	// Queue config
	maxQueueDepth   int
	maxWait         time.Duration
	drainTimeout    time.Duration
	maxLoadedModels int

	// Counters for status
	loadsTotal     uint64
	evictionsTotal uint64
	startTime      time.Time

	publisher EventPublisher
	metrics   *Metrics
	log       zerolog.Logger
}

// New builds a manager over deps with default limits.
func New(deps model.Deps, maxLoadedModels int) *Manager {
	// Delegate to NewWithConfig to centralize defaults and option parsing
	return NewWithConfig(ManagerConfig{
		Deps:            deps,
		MaxLoadedModels: maxLoadedModels,
	})
}

// Ready reports whether the manager accepts work: not closed and the cache
// root is usable.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed || m.deps.Store == nil {
		return false
	}
	return fsutil.PathExists(m.deps.Store.Root)
}

// ListModels returns the models present in the cache.
func (m *Manager) ListModels() []types.Model {
	if m.deps.Store == nil {
		return nil
	}
	models, err := registry.ScanCache(m.deps.Store.Root)
	if err != nil {
		m.log.Debug().Err(err).Msg("scan cache")
		return []types.Model{}
	}
	return models
}

// Families lists the families this manager can serve.
func (m *Manager) Families() []types.Family {
	var out []types.Family
	for _, f := range types.Families() {
		if _, ok := m.factories[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Close unloads every instance and rejects further work.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	keys := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		keys = append(keys, inst)
	}
	m.mu.Unlock()
	var first error
	for _, inst := range keys {
		if err := m.Unload(inst.Family, inst.Name); err != nil && !IsModelNotFound(err) && first == nil {
			first = err
		}
	}
	return first
}
