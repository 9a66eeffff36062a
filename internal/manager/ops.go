package manager

import (
	"context"

	"github.com/google/uuid"

	"inferd/pkg/types"
)

// Preload kicks off an async fetch and load and returns an operation ID.
// Unknown families are rejected synchronously; everything else is reported
// through events and Status().
func (m *Manager) Preload(ctx context.Context, family types.Family, name string) (string, error) {
	if _, ok := m.factories[family]; !ok {
		return "", ErrModelNotFound(instanceKey(family, name))
	}
	if name == "" {
		return "", ErrInvalidRequest("model_name is required")
	}
	op := uuid.NewString()
	go func(opID string) {
		// Use a detached context so background work isn't canceled when the
		// caller context is canceled.
		err := m.EnsureInstance(context.WithoutCancel(ctx), family, name)
		fields := map[string]any{"op_id": opID}
		if err != nil {
			fields["error"] = err.Error()
			m.publisher.Publish(Event{Name: "preload_error", ModelID: instanceKey(family, name), Fields: fields})
			return
		}
		m.publisher.Publish(Event{Name: "preload_done", ModelID: instanceKey(family, name), Fields: fields})
	}(op)
	return op, nil
}
