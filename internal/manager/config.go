package manager

import (
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/model"
	"inferd/internal/model/imageclass"
	"inferd/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultDrainTimeout  = 30 * time.Second
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Deps model.Deps
	// Factories maps each served family to its constructor.
	// Nil means DefaultFactories().
	Factories map[types.Family]Factory
	// Params are construction-time options per family.
	Params map[types.Family]model.Params
	// Options are applied to every model; zero fields use computed defaults.
	Options model.Options

	MaxQueueDepth   int
	MaxWait         time.Duration
	DrainTimeout    time.Duration
	MaxLoadedModels int // 0 = unlimited

	Publisher EventPublisher
	Metrics   *Metrics
	Logger    *zerolog.Logger
}

// DefaultFactories returns the families implemented in this build.
func DefaultFactories() map[types.Family]Factory {
	return map[types.Family]Factory{
		types.FamilyImageClassification: imageclass.New,
	}
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		deps:            cfg.Deps,
		factories:       cfg.Factories,
		params:          cfg.Params,
		opts:            cfg.Options,
		maxLoadedModels: cfg.MaxLoadedModels,
		instances:       make(map[string]*Instance),
		publisher:       cfg.Publisher,
		metrics:         cfg.Metrics,
		log:             zerolog.Nop(),
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	}
	if m.factories == nil {
		m.factories = DefaultFactories()
	}
	if m.params == nil {
		m.params = map[types.Family]model.Params{}
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	// Apply defaults if unset
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if cfg.DrainTimeout <= 0 {
		m.drainTimeout = defaultDrainTimeout
	} else {
		m.drainTimeout = cfg.DrainTimeout
	}
	if m.deps.Logger == nil {
		m.deps.Logger = &m.log
	}
	m.startTime = time.Now()
	return m
}
