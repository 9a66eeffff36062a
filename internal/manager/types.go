package manager

import (
	"time"

	"inferd/internal/model"
	"inferd/pkg/types"
)

// State is the manager-level view of an instance.
type State string

const (
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateError    State = "error"
	StateDraining State = "draining"
)

// Factory builds a model of one family. params are construction-time
// family options, e.g. {"minScore": 0.9}.
type Factory func(name string, deps model.Deps, opts model.Options, params model.Params) (*model.Model, error)

// Instance is a live model, one per (family, name).
type Instance struct {
	Key      string
	Name     string
	Family   types.Family
	Model    *model.Model
	State    State
	LastUsed time.Time
	EstMemMB int
	// pending counts callers between lookup and release; evict skips these.
	pending int
	// Queueing primitives
	genCh   chan struct{} // size 1: single in-flight prediction
	queueCh chan struct{} // buffered: queue slots
}
