package manager

import (
	"strings"
	"time"

	"inferd/internal/model"
	"inferd/internal/store"
	"inferd/pkg/types"
)

// instanceKey identifies an instance as "family|name".
func instanceKey(family types.Family, name string) string {
	return string(family) + "|" + name
}

// getOrCreate returns the instance for (family, name), constructing its
// model on first use. The returned instance is pinned until unpin.
func (m *Manager) getOrCreate(family types.Family, name string) (*Instance, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidRequest("model_name is required")
	}
	factory, ok := m.factories[family]
	if !ok {
		return nil, ErrModelNotFound(instanceKey(family, name))
	}
	key := instanceKey(family, name)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errClosed
	}
	if inst := m.instances[key]; inst != nil {
		inst.pending++
		return inst, nil
	}
	mdl, err := factory(name, m.deps, m.opts, m.params[family])
	if err != nil {
		return nil, err
	}
	inst := &Instance{
		Key:      key,
		Name:     name,
		Family:   family,
		Model:    mdl,
		State:    StateLoading,
		LastUsed: time.Now(),
		pending:  1,
		genCh:    make(chan struct{}, 1),
		queueCh:  make(chan struct{}, m.maxQueueDepth),
	}
	m.instances[key] = inst
	return inst, nil
}

func (m *Manager) unpin(inst *Instance) {
	m.mu.Lock()
	if inst.pending > 0 {
		inst.pending--
	}
	m.mu.Unlock()
}

func (m *Manager) lookup(family types.Family, name string) *Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.instances[instanceKey(family, name)]
}

// estimateMemMB approximates resident size by the cached artifact size.
// Returns at least 1 so loaded instances are never free.
func estimateMemMB(mdl *model.Model) int {
	mb := int(store.Size(mdl.CacheDir()) / (1024 * 1024))
	if mb <= 0 {
		mb = 1
	}
	return mb
}
