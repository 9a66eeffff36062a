package hub

import (
	"path"

	"inferd/internal/backend"
)

// Filter selects which repository files are fetched. Patterns are shell globs
// matched against both the full repository path and its base name. An empty
// Include admits everything; Exclude always wins.
type Filter struct {
	Include []string
	Exclude []string
}

// Allows reports whether name passes the filter.
func (f Filter) Allows(name string) bool {
	if len(f.Include) > 0 && !matchAny(f.Include, name) {
		return false
	}
	return !matchAny(f.Exclude, name)
}

// WithExclude returns a copy of f with extra exclusion patterns.
func (f Filter) WithExclude(patterns ...string) Filter {
	out := Filter{
		Include: append([]string(nil), f.Include...),
		Exclude: append(append([]string(nil), f.Exclude...), patterns...),
	}
	return out
}

func matchAny(patterns []string, name string) bool {
	base := path.Base(name)
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	return false
}

// AcceleratorPatterns are the file patterns only the specialized accelerator
// runtime can load.
var AcceleratorPatterns = []string{"*.armnn"}

// DefaultFilter fetches the whole repository except accelerator-format
// artifacts when the accelerator runtime is not preferred.
func DefaultFilter(rt backend.Runtime) Filter {
	return RuntimeFilter(Filter{}, rt)
}

// RuntimeFilter narrows a family filter for the preferred runtime.
func RuntimeFilter(f Filter, rt backend.Runtime) Filter {
	if rt == backend.RuntimeARMNN {
		return f
	}
	return f.WithExclude(AcceleratorPatterns...)
}
