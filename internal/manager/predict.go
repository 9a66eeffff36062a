package manager

import (
	"context"
	"time"

	"inferd/internal/model"
	"inferd/pkg/types"
)

// Predict runs one request: resolve the instance, make sure it is loaded,
// pass admission, then delegate to the model. Options reconfigure the
// family's post-processing without reloading.
func (m *Manager) Predict(ctx context.Context, req types.PredictRequest) (any, error) {
	if len(req.Input) == 0 {
		return nil, ErrInvalidRequest("input is required")
	}
	inst, err := m.getOrCreate(req.Family, req.ModelName)
	if err != nil {
		return nil, err
	}
	defer m.unpin(inst)
	if err := m.ensureLoaded(ctx, inst); err != nil {
		return nil, err
	}
	return m.admitAndPredict(ctx, inst, req)
}

// admitAndPredict passes admission for a loaded instance and runs the model.
func (m *Manager) admitAndPredict(ctx context.Context, inst *Instance, req types.PredictRequest) (any, error) {
	// Admission: per-instance FIFO queue, single in-flight
	release, err := m.beginGeneration(ctx, inst)
	if err != nil {
		return nil, err
	}
	defer release()
	// unloaded or evicted between lookup and admission
	m.mu.RLock()
	current := m.instances[inst.Key] == inst
	m.mu.RUnlock()
	if !current {
		return nil, tooBusyError{modelID: inst.Key}
	}

	start := time.Now()
	out, err := inst.Model.Predict(ctx, req.Input, model.Params(req.Options))
	m.metrics.observePredict(inst.Family, time.Since(start), err)
	if err != nil {
		m.log.Debug().Str("instance", inst.Key).Err(err).Msg("predict failed")
	}
	return out, err
}
