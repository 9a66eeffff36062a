//go:build onnx

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"

	"inferd/internal/backend"
)

// ONNXBuilt indicates this binary was compiled with onnxruntime support.
var ONNXBuilt = true

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

type onnxLoader struct {
	libPath string
	log     zerolog.Logger
}

func newONNXLoader(libPath string, log zerolog.Logger) Loader {
	return &onnxLoader{libPath: libPath, log: log}
}

func (l *onnxLoader) init() error {
	ortInitOnce.Do(func() {
		if l.libPath != "" {
			ort.SetSharedLibraryPath(l.libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return ErrDependencyUnavailable("onnxruntime", ortInitErr.Error())
	}
	return nil
}

func (l *onnxLoader) Load(path string, sel Selection) (Session, error) {
	if err := l.init(); err != nil {
		return nil, err
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, ErrSession(path, err)
	}
	defer opts.Destroy()
	if err := applySessionConfig(opts, sel.SessionConfig); err != nil {
		return nil, ErrSession(path, err)
	}
	for i, b := range sel.Backends {
		var po backend.ProviderOptions = backend.NoOptions{For: b}
		if i < len(sel.ProviderOptions) && sel.ProviderOptions[i] != nil {
			po = sel.ProviderOptions[i]
		}
		if err := appendProvider(opts, b, po); err != nil {
			return nil, ErrSession(path, fmt.Errorf("%s: %w", b, err))
		}
	}
	// ExecutionMode has no setter in the Go binding; inter-op threads still apply.
	l.log.Debug().Str("execution_mode", sel.SessionConfig.ExecutionMode.String()).Msg("session execution mode")

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, ErrSession(path, err)
	}
	in := make([]string, len(inputs))
	for i, info := range inputs {
		in[i] = info.Name
	}
	out := make([]string, len(outputs))
	for i, info := range outputs {
		out[i] = info.Name
	}
	s, err := ort.NewDynamicAdvancedSession(path, in, out, opts)
	if err != nil {
		return nil, ErrSession(path, err)
	}
	return &onnxSession{inner: s, inputs: in, outputs: out}, nil
}

func applySessionConfig(opts *ort.SessionOptions, cfg backend.SessionConfig) error {
	if cfg.InterOpThreads > 0 {
		if err := opts.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
			return err
		}
	}
	if cfg.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return err
		}
	}
	return opts.SetCpuMemArena(cfg.EnableCPUMemArena)
}

// appendProvider registers one execution provider. CPU is implicit in
// onnxruntime and always last, so it needs no call.
func appendProvider(opts *ort.SessionOptions, b backend.Backend, po backend.ProviderOptions) error {
	switch b {
	case backend.CUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return err
		}
		defer cuda.Destroy()
		if err := cuda.Update(po.Map()); err != nil {
			return err
		}
		return opts.AppendExecutionProviderCUDA(cuda)
	case backend.OpenVINO:
		return opts.AppendExecutionProviderOpenVINO(po.Map())
	case backend.CPU:
		return nil
	default:
		return fmt.Errorf("unsupported execution backend %q", b)
	}
}

type onnxSession struct {
	mu      sync.Mutex
	inner   *ort.DynamicAdvancedSession
	inputs  []string
	outputs []string
}

func (s *onnxSession) InputNames() []string  { return append([]string(nil), s.inputs...) }
func (s *onnxSession) OutputNames() []string { return append([]string(nil), s.outputs...) }

func (s *onnxSession) Run(ctx context.Context, inputs []Tensor) ([]Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inner == nil {
		return nil, fmt.Errorf("session closed")
	}
	if len(inputs) != len(s.inputs) {
		return nil, fmt.Errorf("expected %d inputs, got %d", len(s.inputs), len(inputs))
	}
	values := make([]ort.Value, len(inputs))
	defer func() {
		for _, v := range values {
			if v != nil {
				v.Destroy()
			}
		}
	}()
	for i, t := range inputs {
		v, err := ort.NewTensor(ort.NewShape(t.Shape...), t.Data)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", t.Name, err)
		}
		values[i] = v
	}
	// nil outputs are allocated by the runtime
	outs := make([]ort.Value, len(s.outputs))
	defer func() {
		for _, v := range outs {
			if v != nil {
				v.Destroy()
			}
		}
	}()
	if err := s.inner.Run(values, outs); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	result := make([]Tensor, len(outs))
	for i, v := range outs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("output %s: unsupported tensor type %T", s.outputs[i], v)
		}
		result[i] = Tensor{
			Name:  s.outputs[i],
			Shape: append([]int64(nil), t.GetShape()...),
			Data:  append([]float32(nil), t.GetData()...),
		}
	}
	return result, nil
}

func (s *onnxSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inner == nil {
		return nil
	}
	err := s.inner.Destroy()
	s.inner = nil
	return err
}
