// Package session turns a model artifact on disk plus a backend selection into
// an executable inference session.
package session

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"inferd/internal/backend"
	"inferd/internal/common/fsutil"
)

// Tensor is a named dense float32 tensor.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Session is an opened model ready to execute. It is owned by one model
// instance and must be closed by it.
type Session interface {
	Run(ctx context.Context, inputs []Tensor) ([]Tensor, error)
	InputNames() []string
	OutputNames() []string
	Close() error
}

// Selection is the resolved backend negotiation handed to a loader.
// ProviderOptions pairs positionally with Backends.
type Selection struct {
	Backends        []backend.Backend
	ProviderOptions []backend.ProviderOptions
	SessionConfig   backend.SessionConfig
}

// Loader constructs sessions for one artifact format.
type Loader interface {
	Load(path string, sel Selection) (Session, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(path string, sel Selection) (Session, error)

func (f LoaderFunc) Load(path string, sel Selection) (Session, error) { return f(path, sel) }

// Builder dispatches artifacts to the loader registered for their format.
type Builder struct {
	Loaders map[backend.Runtime]Loader
	Logger  zerolog.Logger
}

// Options configures the default loaders.
type Options struct {
	// ORTLibraryPath points at libonnxruntime when it is not on the default path.
	ORTLibraryPath string
	// ANNFP16Turbo lets the accelerator loader run fp32 graphs in fp16.
	ANNFP16Turbo bool
	Logger       *zerolog.Logger
}

// NewBuilder installs the portable and accelerator loaders.
func NewBuilder(opts Options) *Builder {
	b := &Builder{Logger: zerolog.Nop()}
	if opts.Logger != nil {
		b.Logger = *opts.Logger
	}
	b.Loaders = map[backend.Runtime]Loader{
		backend.RuntimeONNX:  newONNXLoader(opts.ORTLibraryPath, b.Logger),
		backend.RuntimeARMNN: newARMNNLoader(opts.ANNFP16Turbo),
	}
	return b
}

// Build opens path with the loader matching its extension. A missing
// accelerator artifact falls back to the portable sibling with the same stem.
func (b *Builder) Build(path string, sel Selection) (Session, error) {
	// the portable loader runs with cwd set to the model dir
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ErrSession(path, err)
	}
	path = abs
	if !fsutil.IsFile(path) {
		fallback := strings.TrimSuffix(path, filepath.Ext(path)) + backend.RuntimeONNX.Ext()
		if fallback == path || !fsutil.IsFile(fallback) {
			return nil, ErrModelNotFound(path)
		}
		b.Logger.Warn().Str("path", path).Str("fallback", fallback).Msg("model file missing, using portable sibling")
		path = fallback
	}

	rt, ok := backend.RuntimeForExt(filepath.Ext(path))
	if !ok {
		return nil, ErrUnsupportedFormat(path)
	}
	loader := b.Loaders[rt]
	if loader == nil {
		return nil, ErrDependencyUnavailable(string(rt), "no loader registered")
	}

	b.Logger.Debug().Str("path", path).Str("runtime", string(rt)).
		Strs("backends", backend.Names(sel.Backends)).Msg("building session")
	if rt == backend.RuntimeONNX {
		var s Session
		err := WithWorkingDir(filepath.Dir(path), func() error {
			var lerr error
			s, lerr = loader.Load(path, sel)
			return lerr
		})
		return s, err
	}
	return loader.Load(path, sel)
}
