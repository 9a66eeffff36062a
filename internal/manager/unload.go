package manager

import (
	"time"

	"inferd/internal/store"
	"inferd/pkg/types"
)

// Unload initiates a graceful drain of a model instance and removes it.
// - Sets instance state to draining to reject new enqueues.
// - Waits up to drainTimeout for in-flight, queued and pinned requests to finish.
// - Closes the model's sessions and removes the instance entry.
func (m *Manager) Unload(family types.Family, name string) error {
	if name == "" {
		return ErrModelNotFound("(unspecified)")
	}
	key := instanceKey(family, name)
	m.mu.Lock()
	inst := m.instances[key]
	if inst == nil {
		m.mu.Unlock()
		return ErrModelNotFound(key)
	}
	wasReady := inst.State == StateReady
	inst.State = StateDraining
	m.mu.Unlock()
	m.publisher.Publish(Event{Name: "unload_start", ModelID: key, Fields: map[string]any{}})

	deadline := time.Now().Add(m.drainTimeout)
	for {
		m.mu.RLock()
		pending := inst.pending
		m.mu.RUnlock()
		qlen := len(inst.queueCh)
		inflight := len(inst.genCh)
		if inflight == 0 && qlen == 0 && pending == 0 {
			break
		}
		if time.Now().After(deadline) {
			m.publisher.Publish(Event{Name: "unload_timeout", ModelID: key, Fields: map[string]any{"inflight": inflight, "queue": qlen, "pending": pending}})
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	m.mu.Lock()
	if m.instances[key] == inst {
		delete(m.instances, key)
	}
	m.mu.Unlock()
	if err := inst.Model.Close(); err != nil {
		m.log.Warn().Str("instance", key).Err(err).Msg("close unloaded model")
	}
	if wasReady {
		m.metrics.unloaded(family)
	}

	m.log.Info().Str("instance", key).Msg("manager event=unload_done")
	m.publisher.Publish(Event{Name: "unload_done", ModelID: key, Fields: map[string]any{}})
	return nil
}

// ClearCache empties the cache location of (family, name). A loaded instance
// keeps serving from its open session until it is unloaded.
func (m *Manager) ClearCache(family types.Family, name string) error {
	if name == "" {
		return ErrInvalidRequest("model_name is required")
	}
	if !family.Valid() {
		return ErrModelNotFound(instanceKey(family, name))
	}
	key := instanceKey(family, name)
	var err error
	if inst := m.lookup(family, name); inst != nil {
		err = inst.Model.ClearCache()
	} else {
		err = store.Clear(m.deps.Store.Location(name, family), m.log)
	}
	if err != nil {
		m.publisher.Publish(Event{Name: "cache_clear_error", ModelID: key, Fields: map[string]any{"error": err.Error()}})
		return err
	}
	m.publisher.Publish(Event{Name: "cache_clear", ModelID: key, Fields: map[string]any{}})
	return nil
}
