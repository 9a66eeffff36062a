package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHostProberOnFakeHost(t *testing.T) {
	libs := t.TempDir()
	pci := t.TempDir()
	touch(t, filepath.Join(libs, "libonnxruntime_providers_openvino.so"), "")
	touch(t, filepath.Join(libs, "libarmnn.so.33"), "")
	// integrated Intel GPU only
	for name, val := range map[string]string{"vendor": "0x8086", "device": "0x46a6", "class": "0x030000"} {
		touch(t, filepath.Join(pci, "0000:00:02.0", name), val+"\n")
	}

	p := HostProber{PCIRoot: pci, LibDirs: []string{libs}}
	installed, err := p.InstalledBackends()
	if err != nil {
		t.Fatalf("installed: %v", err)
	}
	if diff := cmp.Diff([]Backend{CPU, OpenVINO}, installed); diff != "" {
		t.Fatalf("installed mismatch (-want +got):\n%s", diff)
	}
	if !p.ANNAvailable() {
		t.Fatalf("expected armnn library to be found")
	}

	c := NewCatalog(p, Settings{ANN: true}, nil)
	if diff := cmp.Diff([]Backend{OpenVINO, CPU}, c.ProbeAvailable()); diff != "" {
		t.Fatalf("available mismatch (-want +got):\n%s", diff)
	}
	if c.DefaultRuntime() != RuntimeARMNN {
		t.Fatalf("expected armnn runtime")
	}
}

func TestHostProberCUDAWithoutDevice(t *testing.T) {
	libs := t.TempDir()
	touch(t, filepath.Join(libs, "libonnxruntime_providers_cuda.so"), "")
	p := HostProber{PCIRoot: t.TempDir(), LibDirs: []string{libs}}
	c := NewCatalog(p, Settings{}, nil)
	if diff := cmp.Diff([]Backend{CPU}, c.ProbeAvailable()); diff != "" {
		t.Fatalf("available mismatch (-want +got):\n%s", diff)
	}
}
