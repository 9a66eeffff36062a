package backend

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeProber struct {
	installed    []Backend
	installedErr error
	devices      map[Backend][]string
	deviceErr    map[Backend]error
	ann          bool
	calls        int
}

func (f *fakeProber) InstalledBackends() ([]Backend, error) {
	f.calls++
	return f.installed, f.installedErr
}

func (f *fakeProber) DeviceIDs(b Backend) ([]string, error) {
	if err := f.deviceErr[b]; err != nil {
		return nil, err
	}
	return f.devices[b], nil
}

func (f *fakeProber) ANNAvailable() bool { return f.ann }

func TestProbeAvailableOrdersByPriority(t *testing.T) {
	p := &fakeProber{
		installed: []Backend{CPU, OpenVINO, CUDA},
		devices: map[Backend][]string{
			CUDA:     {"0"},
			OpenVINO: {"CPU", "GPU.0"},
		},
	}
	c := NewCatalog(p, Settings{}, nil)
	if diff := cmp.Diff([]Backend{CUDA, OpenVINO, CPU}, c.ProbeAvailable()); diff != "" {
		t.Fatalf("probe mismatch (-want +got):\n%s", diff)
	}
	_ = c.ProbeAvailable()
	if p.calls != 1 {
		t.Fatalf("expected host probed once, got %d", p.calls)
	}
}

func TestProbeExcludesGPULessOpenVINO(t *testing.T) {
	p := &fakeProber{
		installed: []Backend{CUDA, OpenVINO, CPU},
		devices: map[Backend][]string{
			CUDA:     {"0"},
			OpenVINO: {"CPU"},
		},
	}
	got := NewCatalog(p, Settings{}, nil).ProbeAvailable()
	if diff := cmp.Diff([]Backend{CUDA, CPU}, got); diff != "" {
		t.Fatalf("probe mismatch (-want +got):\n%s", diff)
	}
}

func TestProbeDeviceErrorExcludesOnlyThatBackend(t *testing.T) {
	p := &fakeProber{
		installed: []Backend{CUDA, OpenVINO, CPU},
		devices:   map[Backend][]string{OpenVINO: {"GPU.0"}},
		deviceErr: map[Backend]error{CUDA: errors.New("driver mismatch")},
	}
	got := NewCatalog(p, Settings{}, nil).ProbeAvailable()
	if diff := cmp.Diff([]Backend{OpenVINO, CPU}, got); diff != "" {
		t.Fatalf("probe mismatch (-want +got):\n%s", diff)
	}
}

func TestProbeFailureFallsBackToCPU(t *testing.T) {
	p := &fakeProber{installedErr: errors.New("boom")}
	got := NewCatalog(p, Settings{}, nil).ProbeAvailable()
	if diff := cmp.Diff([]Backend{CPU}, got); diff != "" {
		t.Fatalf("probe mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultSessionConfig(t *testing.T) {
	cases := []struct {
		name     string
		settings Settings
		backends []Backend
		want     SessionConfig
	}{
		{
			name:     "cpu only",
			backends: []Backend{CPU},
			want:     SessionConfig{InterOpThreads: 1, IntraOpThreads: 2, ExecutionMode: Sequential},
		},
		{
			name:     "mixed leaves runtime defaults",
			backends: []Backend{CUDA, CPU},
			want:     SessionConfig{},
		},
		{
			name:     "openvino only",
			backends: []Backend{OpenVINO},
			want:     SessionConfig{},
		},
		{
			name:     "explicit overrides",
			settings: Settings{InterOpThreads: 4, IntraOpThreads: 8},
			backends: []Backend{CUDA, CPU},
			want:     SessionConfig{InterOpThreads: 4, IntraOpThreads: 8, ExecutionMode: Parallel},
		},
		{
			name:     "inter override on cpu keeps intra default",
			settings: Settings{InterOpThreads: 3},
			backends: []Backend{CPU},
			want:     SessionConfig{InterOpThreads: 3, IntraOpThreads: 2, ExecutionMode: Parallel},
		},
		{
			name:     "single inter thread stays sequential",
			settings: Settings{InterOpThreads: 1, IntraOpThreads: 6},
			backends: []Backend{CUDA},
			want:     SessionConfig{InterOpThreads: 1, IntraOpThreads: 6, ExecutionMode: Sequential},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCatalog(&fakeProber{}, tc.settings, nil)
			got := c.DefaultSessionConfig(tc.backends)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("session config mismatch (-want +got):\n%s", diff)
			}
			if got.EnableCPUMemArena {
				t.Fatalf("memory arena must be off by default")
			}
		})
	}
}

func TestDefaultProviderOptions(t *testing.T) {
	c := NewCatalog(&fakeProber{}, Settings{}, nil)
	got := c.DefaultProviderOptions([]Backend{CUDA, OpenVINO, CPU})
	if len(got) != 3 {
		t.Fatalf("expected one options value per backend, got %d", len(got))
	}
	want := []map[string]string{
		{"arena_extend_strategy": "kSameAsRequested", "device_id": "0"},
		{"device_type": "GPU_FP32"},
		{"arena_extend_strategy": "kSameAsRequested"},
	}
	for i, o := range got {
		if diff := cmp.Diff(want[i], o.Map()); diff != "" {
			t.Errorf("options[%d] %s mismatch (-want +got):\n%s", i, o.Backend(), diff)
		}
	}
	if _, ok := got[1].(OpenVINOOptions); !ok {
		t.Fatalf("expected OpenVINOOptions, got %T", got[1])
	}
	if n := len(c.DefaultProviderOptions(nil)); n != 0 {
		t.Fatalf("expected empty options for empty selection, got %d", n)
	}
}

func TestDefaultRuntime(t *testing.T) {
	cases := []struct {
		ann, toggle bool
		want        Runtime
	}{
		{ann: true, toggle: true, want: RuntimeARMNN},
		{ann: true, toggle: false, want: RuntimeONNX},
		{ann: false, toggle: true, want: RuntimeONNX},
		{ann: false, toggle: false, want: RuntimeONNX},
	}
	for _, tc := range cases {
		c := NewCatalog(&fakeProber{ann: tc.ann}, Settings{ANN: tc.toggle}, nil)
		if got := c.DefaultRuntime(); got != tc.want {
			t.Errorf("ann=%v toggle=%v: got %s want %s", tc.ann, tc.toggle, got, tc.want)
		}
	}
}

func TestParseBackendAndRank(t *testing.T) {
	b, err := ParseBackend("openvino")
	if err != nil || b != OpenVINO {
		t.Fatalf("ParseBackend=%v err=%v", b, err)
	}
	if _, err := ParseBackend("tpu"); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	if CUDA.Rank() >= CPU.Rank() || Backend("x").Rank() != -1 {
		t.Fatalf("unexpected ranks")
	}
	if rt, ok := RuntimeForExt(".armnn"); !ok || rt.Ext() != ".armnn" {
		t.Fatalf("RuntimeForExt round trip failed")
	}
}
