// Package model implements the lifecycle every inference model family shares:
// fetch artifacts into the cache once, open a session tuned to the host's best
// execution backend once, then serve predictions with cheap reconfiguration.
//
// Families plug in through Impl. The Model owns caching, backend negotiation
// and session construction; the family only loads its files and runs
// inference.
package model

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/backend"
	"inferd/internal/hub"
	"inferd/internal/session"
	"inferd/internal/store"
	"inferd/pkg/types"
)

// State is the position of a model in its load lifecycle.
type State int32

const (
	Unloaded State = iota
	Downloading
	Downloaded
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Downloading:
		return "downloading"
	case Downloaded:
		return "downloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// Params are per-request reconfiguration values, e.g. {"minScore": 0.5}.
type Params map[string]any

// Impl is what a model family provides.
type Impl interface {
	// Load opens the family's artifacts from m.CacheDir(). It runs at most
	// once per Model and need not be idempotent.
	Load(ctx context.Context, m *Model) error
	// Predict runs inference on a loaded model.
	Predict(ctx context.Context, input []byte) (any, error)
}

// Configurer is implemented by families with tunable post-processing.
// Configure must not require a new session.
type Configurer interface {
	Configure(p Params) error
}

// FilterProvider narrows what is fetched for a family. The preferred runtime
// exclusion is applied on top.
type FilterProvider interface {
	FetchFilter() hub.Filter
}

// SessionBuilder opens a session for an artifact path.
type SessionBuilder interface {
	Build(path string, sel session.Selection) (session.Session, error)
}

// Options are construction-time overrides. Zero values mean "compute the
// default"; each field is resolved independently.
type Options struct {
	Backends        []backend.Backend
	ProviderOptions []backend.ProviderOptions
	SessionConfig   *backend.SessionConfig
	Runtime         backend.Runtime
	CacheDir        string
}

// Deps are the collaborators shared by every model in a process.
type Deps struct {
	Store     *store.Store
	Fetcher   hub.Fetcher
	Catalog   *backend.Catalog
	Builder   SessionBuilder
	Namespace string
	Logger    *zerolog.Logger
}

// Model is one (identity, family) pair and its lifecycle. All transitions and
// predictions are serialised by a per-instance mutex.
type Model struct {
	name   string
	family types.Family
	impl   Impl
	deps   Deps
	log    zerolog.Logger

	sel      session.Selection
	runtime  backend.Runtime
	cacheDir string

	mu       sync.Mutex
	state    atomic.Int32
	sessions []session.Session
	lastUsed atomic.Int64
}

// New resolves options in order: backends, provider options, session config,
// runtime, cache dir. Later defaults read the already resolved earlier values.
func New(name string, family types.Family, impl Impl, deps Deps, opts Options) (*Model, error) {
	if name == "" {
		return nil, fmt.Errorf("model name is empty")
	}
	if !family.Valid() {
		return nil, fmt.Errorf("unknown model family %q", family)
	}
	if impl == nil || deps.Store == nil || deps.Fetcher == nil || deps.Catalog == nil || deps.Builder == nil {
		return nil, fmt.Errorf("model %s: incomplete dependencies", name)
	}
	m := &Model{name: name, family: family, impl: impl, deps: deps, log: zerolog.Nop()}
	if deps.Logger != nil {
		m.log = *deps.Logger
	}
	m.log = m.log.With().Str("model", name).Str("family", string(family)).Logger()

	m.sel.Backends = opts.Backends
	if len(m.sel.Backends) == 0 {
		m.sel.Backends = deps.Catalog.ProbeAvailable()
	}
	m.log.Info().Strs("backends", backend.Names(m.sel.Backends)).Msg("setting execution providers")

	m.sel.ProviderOptions = opts.ProviderOptions
	if m.sel.ProviderOptions == nil {
		m.sel.ProviderOptions = deps.Catalog.DefaultProviderOptions(m.sel.Backends)
	}
	if len(m.sel.ProviderOptions) != len(m.sel.Backends) {
		return nil, fmt.Errorf("model %s: %d provider options for %d backends", name, len(m.sel.ProviderOptions), len(m.sel.Backends))
	}
	for i, po := range m.sel.ProviderOptions {
		m.log.Debug().Str("backend", string(m.sel.Backends[i])).Interface("options", po.Map()).Msg("setting provider options")
	}

	if opts.SessionConfig != nil {
		m.sel.SessionConfig = *opts.SessionConfig
	} else {
		m.sel.SessionConfig = deps.Catalog.DefaultSessionConfig(m.sel.Backends)
	}
	sc := m.sel.SessionConfig
	m.log.Debug().Int("inter_op_threads", sc.InterOpThreads).Int("intra_op_threads", sc.IntraOpThreads).
		Str("execution_mode", sc.ExecutionMode.String()).Bool("cpu_mem_arena", sc.EnableCPUMemArena).
		Msg("setting session config")

	m.runtime = opts.Runtime
	if m.runtime == "" {
		m.runtime = deps.Catalog.DefaultRuntime()
	}
	m.log.Debug().Str("runtime", string(m.runtime)).Msg("setting preferred runtime")

	m.cacheDir = opts.CacheDir
	if m.cacheDir == "" {
		m.cacheDir = deps.Store.Location(name, family)
	}
	return m, nil
}

func (m *Model) Name() string                 { return m.name }
func (m *Model) Family() types.Family         { return m.family }
func (m *Model) CacheDir() string             { return m.cacheDir }
func (m *Model) Runtime() backend.Runtime     { return m.runtime }
func (m *Model) Selection() session.Selection { return m.sel }
func (m *Model) State() State                 { return State(m.state.Load()) }
func (m *Model) Logger() *zerolog.Logger      { return &m.log }

// LastUsed returns when the model last served a prediction or finished loading.
func (m *Model) LastUsed() time.Time {
	ns := m.lastUsed.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Repo is the registry repository the model is fetched from.
func (m *Model) Repo() string { return hub.RepoName(m.name, m.deps.Namespace) }

// IsCached reports whether the cache location holds any artifact.
func (m *Model) IsCached() bool { return store.IsCached(m.cacheDir) }

func (m *Model) setState(s State) { m.state.Store(int32(s)) }

// EnsureDownloaded fetches the artifacts unless the cache location already
// holds something. A failed fetch leaves the model Unloaded.
func (m *Model) EnsureDownloaded(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureDownloaded(ctx)
}

func (m *Model) ensureDownloaded(ctx context.Context) error {
	if m.IsCached() {
		if m.State() < Downloaded {
			m.setState(Downloaded)
		}
		return nil
	}
	m.setState(Downloading)
	f := hub.Filter{}
	if fp, ok := m.impl.(FilterProvider); ok {
		f = fp.FetchFilter()
	}
	start := time.Now()
	m.log.Info().Str("repo", m.Repo()).Str("path", m.cacheDir).Msg("downloading model")
	if err := m.fetch(ctx, f); err != nil {
		m.setState(Unloaded)
		return err
	}
	m.log.Info().Dur("dur", time.Since(start)).Msg("downloaded model")
	m.setState(Downloaded)
	return nil
}

// EnsureLoaded downloads if needed and runs the family's Load hook exactly
// once. A failed load returns the model to Downloaded.
func (m *Model) EnsureLoaded(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLoaded(ctx)
}

func (m *Model) ensureLoaded(ctx context.Context) error {
	if m.State() == Loaded {
		return nil
	}
	if err := m.ensureDownloaded(ctx); err != nil {
		return err
	}
	m.setState(Loading)
	start := time.Now()
	if err := m.impl.Load(ctx, m); err != nil {
		m.closeSessions()
		m.setState(Downloaded)
		return err
	}
	m.setState(Loaded)
	m.touch()
	m.log.Info().Dur("dur", time.Since(start)).Msg("loaded model")
	return nil
}

// Predict loads on first use, applies params through the family's Configure
// hook, then runs inference. Params never trigger a reload.
func (m *Model) Predict(ctx context.Context, input []byte, params Params) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if len(params) > 0 {
		if c, ok := m.impl.(Configurer); ok {
			if err := c.Configure(params); err != nil {
				return nil, err
			}
		}
	}
	out, err := m.impl.Predict(ctx, input)
	m.touch()
	return out, err
}

// Configure applies params without predicting.
func (m *Model) Configure(params Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.impl.(Configurer); ok {
		return c.Configure(params)
	}
	return nil
}

// ClearCache empties the cache location. A loaded model keeps serving from
// its open session; only a new instance will fetch again.
func (m *Model) ClearCache() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := store.Clear(m.cacheDir, m.log); err != nil {
		return err
	}
	if m.State() == Loaded {
		m.log.Warn().Str("path", m.cacheDir).Msg("cleared cache of a loaded model, session keeps serving until the model is reloaded")
		return nil
	}
	m.setState(Unloaded)
	return nil
}

// BuildSession opens an artifact relative to the cache dir using the
// resolved selection. Sessions are closed with the model. Called from Load.
func (m *Model) BuildSession(rel string) (session.Session, error) {
	path := rel
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.cacheDir, rel)
	}
	s, err := m.deps.Builder.Build(path, m.sel)
	if err != nil {
		return nil, err
	}
	m.sessions = append(m.sessions, s)
	return s, nil
}

// Fetch downloads additional files into the cache dir. Called from Load for
// artifacts outside the family's fetch filter.
func (m *Model) Fetch(ctx context.Context, f hub.Filter) error {
	return m.fetch(ctx, f)
}

func (m *Model) fetch(ctx context.Context, f hub.Filter) error {
	return m.deps.Fetcher.Fetch(ctx, m.Repo(), m.cacheDir, hub.RuntimeFilter(f, m.runtime))
}

// Close releases every session and returns the model to Unloaded.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.closeSessions()
	m.setState(Unloaded)
	return err
}

func (m *Model) closeSessions() error {
	var first error
	for _, s := range m.sessions {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	m.sessions = nil
	return first
}

func (m *Model) touch() { m.lastUsed.Store(time.Now().UnixNano()) }
