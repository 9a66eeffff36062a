package manager

import (
	"context"
	"time"

	"inferd/internal/model"
	"inferd/pkg/types"
)

// EnsureInstance makes sure (family, name) is fetched and loaded, then
// enforces the loaded-model limit.
func (m *Manager) EnsureInstance(ctx context.Context, family types.Family, name string) error {
	inst, err := m.getOrCreate(family, name)
	if err != nil {
		if IsModelNotFound(err) {
			m.log.Info().Str("family", string(family)).Str("model", name).Msg("manager event=ensure_model_not_found")
			m.publisher.Publish(Event{Name: "ensure_model_not_found", ModelID: instanceKey(family, name), Fields: map[string]any{}})
		}
		return err
	}
	defer m.unpin(inst)
	return m.ensureLoaded(ctx, inst)
}

func (m *Manager) ensureLoaded(ctx context.Context, inst *Instance) error {
	mdl := inst.Model
	if mdl.State() == model.Loaded {
		m.mu.Lock()
		if inst.State != StateDraining {
			inst.State = StateReady
		}
		inst.LastUsed = time.Now()
		m.mu.Unlock()
		return nil
	}

	startTs := time.Now()
	m.log.Info().Str("instance", inst.Key).Msg("manager event=ensure_start")
	m.publisher.Publish(Event{Name: "ensure_start", ModelID: inst.Key, Fields: map[string]any{}})

	wasCached := mdl.IsCached()
	if err := mdl.EnsureDownloaded(ctx); err != nil {
		m.ensureFailed(inst, "ensure_fetch_error", err)
		return err
	}
	if !wasCached {
		m.metrics.observeFetch(inst.Family, time.Since(startTs))
	}
	if err := mdl.EnsureLoaded(ctx); err != nil {
		m.ensureFailed(inst, "ensure_load_error", err)
		return err
	}

	m.mu.Lock()
	if m.instances[inst.Key] != inst {
		// unloaded or evicted while loading; don't leak the session
		m.mu.Unlock()
		_ = mdl.Close()
		return tooBusyError{modelID: inst.Key}
	}
	firstLoad := inst.State != StateReady && inst.State != StateDraining
	if inst.State != StateDraining {
		inst.State = StateReady
	}
	inst.LastUsed = time.Now()
	inst.EstMemMB = estimateMemMB(mdl)
	if firstLoad {
		m.loadsTotal++
	}
	m.err = ""
	m.mu.Unlock()
	if firstLoad {
		m.metrics.loaded(inst.Family)
	}
	dur := time.Since(startTs)
	m.log.Info().Str("instance", inst.Key).Dur("dur", dur).Msg("manager event=ensure_ready")
	m.publisher.Publish(Event{Name: "ensure_ready", ModelID: inst.Key, Fields: map[string]any{"dur_ms": int(dur / time.Millisecond)}})

	m.evictOverLimit(inst.Key)
	return nil
}

func (m *Manager) ensureFailed(inst *Instance, event string, err error) {
	m.mu.Lock()
	if inst.State != StateDraining {
		inst.State = StateError
	}
	m.err = err.Error()
	m.mu.Unlock()
	m.log.Warn().Str("instance", inst.Key).Err(err).Msg("manager event=" + event)
	m.publisher.Publish(Event{Name: event, ModelID: inst.Key, Fields: map[string]any{"error": err.Error()}})
}
