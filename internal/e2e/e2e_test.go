package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"inferd/internal/backend"
	"inferd/internal/httpapi"
	"inferd/internal/hub"
	"inferd/internal/manager"
	"inferd/internal/model"
	"inferd/internal/session"
	"inferd/internal/store"
	"inferd/pkg/types"
)

// registry serves a Hugging Face style listing and file bodies for one repo.
type registry struct {
	repo  string
	files map[string]string
	mu    sync.Mutex
	hits  []string
}

func (r *registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	listing := "/api/models/" + r.repo + "/revision/main"
	prefix := "/" + r.repo + "/resolve/main/"
	switch {
	case req.URL.Path == listing:
		type sibling struct {
			Name string `json:"rfilename"`
		}
		var sibs []sibling
		for name := range r.files {
			sibs = append(sibs, sibling{Name: name})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": r.repo, "siblings": sibs})
	case strings.HasPrefix(req.URL.Path, prefix):
		name := strings.TrimPrefix(req.URL.Path, prefix)
		body, ok := r.files[name]
		if !ok {
			http.NotFound(w, req)
			return
		}
		r.mu.Lock()
		r.hits = append(r.hits, name)
		r.mu.Unlock()
		_, _ = io.WriteString(w, body)
	default:
		http.NotFound(w, req)
	}
}

func (r *registry) downloaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.hits...)
}

type logitSession struct{ logits []float32 }

func (s *logitSession) Run(_ context.Context, in []session.Tensor) ([]session.Tensor, error) {
	if len(in) != 1 || len(in[0].Shape) != 4 {
		return nil, fmt.Errorf("unexpected inputs %v", in)
	}
	return []session.Tensor{{Name: "logits", Shape: []int64{1, int64(len(s.logits))}, Data: s.logits}}, nil
}

func (s *logitSession) InputNames() []string  { return []string{"pixel_values"} }
func (s *logitSession) OutputNames() []string { return []string{"logits"} }
func (s *logitSession) Close() error          { return nil }

type cpuProber struct{}

func (cpuProber) InstalledBackends() ([]backend.Backend, error) { return []backend.Backend{backend.CPU}, nil }
func (cpuProber) DeviceIDs(backend.Backend) ([]string, error)   { return nil, nil }
func (cpuProber) ANNAvailable() bool                            { return false }

type stack struct {
	srv   *httptest.Server
	reg   *registry
	store *store.Store
	mgr   *manager.Manager

	mu   sync.Mutex
	sels []session.Selection
}

func (s *stack) selections() []session.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.Selection(nil), s.sels...)
}

// newStack wires the real registry client, cache, model lifecycle, manager
// and HTTP layer. Only the inference session is faked.
func newStack(t *testing.T) *stack {
	t.Helper()
	s := &stack{reg: &registry{repo: "immich-app/vit-cats", files: map[string]string{
		"config.json":              `{"id2label": {"0": "tabby, tabby cat", "1": "tiger cat", "2": "Egyptian cat"}}`,
		"preprocessor_config.json": `{"size": 32}`,
		"pytorch_model.bin":        "weights",
		"model.onnx":               "graph",
		"model.armnn":              "accel",
	}}}
	hubSrv := httptest.NewServer(s.reg)
	t.Cleanup(hubSrv.Close)

	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s.store = st
	lg := zerolog.Nop()
	builder := &session.Builder{
		Logger: lg,
		Loaders: map[backend.Runtime]session.Loader{
			backend.RuntimeONNX: session.LoaderFunc(func(path string, sel session.Selection) (session.Session, error) {
				s.mu.Lock()
				s.sels = append(s.sels, sel)
				s.mu.Unlock()
				return &logitSession{logits: []float32{3, 2.5, 0}}, nil
			}),
		},
	}
	s.mgr = manager.NewWithConfig(manager.ManagerConfig{
		Deps: model.Deps{
			Store:     st,
			Fetcher:   hub.NewClient(hub.WithBaseURL(hubSrv.URL), hub.WithRetry(1, 0)),
			Catalog:   backend.NewCatalog(cpuProber{}, backend.Settings{}, nil),
			Builder:   builder,
			Namespace: "immich-app",
			Logger:    &lg,
		},
		MaxLoadedModels: 2,
		Logger:          &lg,
	})
	s.srv = httptest.NewServer(httpapi.NewMux(s.mgr))
	t.Cleanup(func() {
		s.srv.Close()
		_ = s.mgr.Close()
	})
	return s
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 8), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// predict posts a multipart request and decodes the result labels.
func (s *stack) predict(t *testing.T, name, options string, img []byte) (int, []string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("model_name", name)
	_ = mw.WriteField("model_type", string(types.FamilyImageClassification))
	if options != "" {
		_ = mw.WriteField("options", options)
	}
	fw, err := mw.CreateFormFile("image", "cat.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(img)
	_ = mw.Close()
	resp, err := http.Post(s.srv.URL+"/predict", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	var out struct {
		Result []string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, out.Result
}

func (s *stack) postJSON(t *testing.T, path string, v any) int {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(s.srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func (s *stack) status(t *testing.T) types.StatusResponse {
	t.Helper()
	resp, err := http.Get(s.srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st types.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

func TestE2E_ClassifyFetchesOnceAndReconfigures(t *testing.T) {
	s := newStack(t)
	img := pngBytes(t)

	code, labels := s.predict(t, "vit-cats", "", img)
	if code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if len(labels) != 0 {
		t.Fatalf("default threshold should reject every label, got %v", labels)
	}
	first := s.reg.downloaded()
	// accelerator artifact is never fetched for the portable runtime
	for _, h := range first {
		if strings.HasSuffix(h, ".armnn") {
			t.Fatalf("fetched accelerator artifact %s", h)
		}
	}

	code, labels = s.predict(t, "vit-cats", `{"minScore": 0.5}`, img)
	if code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if diff := cmp.Diff([]string{"tabby", "tabby cat"}, labels); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}
	if got := s.reg.downloaded(); len(got) != len(first) {
		t.Fatalf("second predict fetched again: %v", got)
	}
	sels := s.selections()
	if len(sels) != 1 {
		t.Fatalf("expected one session, got %d", len(sels))
	}
	if diff := cmp.Diff([]backend.Backend{backend.CPU}, sels[0].Backends); diff != "" {
		t.Fatalf("backends mismatch (-want +got):\n%s", diff)
	}

	st := s.status(t)
	if len(st.Instances) != 1 || st.Instances[0].State != "loaded" || st.LoadsTotal != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestE2E_BadInputAndUnknownRepo(t *testing.T) {
	s := newStack(t)
	if code, _ := s.predict(t, "vit-cats", "", []byte("not an image")); code != http.StatusBadRequest {
		t.Fatalf("garbage image: status=%d", code)
	}
	if code, _ := s.predict(t, "vit-cats", `{"minScore": 2}`, pngBytes(t)); code != http.StatusBadRequest {
		t.Fatalf("out of range minScore: status=%d", code)
	}
	if code, _ := s.predict(t, "missing-model", "", pngBytes(t)); code != http.StatusNotFound {
		t.Fatalf("unknown repo: status=%d", code)
	}
}

func TestE2E_PreloadClearAndUnload(t *testing.T) {
	s := newStack(t)
	ref := types.ModelRef{ModelName: "vit-cats", Family: types.FamilyImageClassification}
	if code := s.postJSON(t, "/models/preload", ref); code != http.StatusAccepted {
		t.Fatalf("preload status=%d", code)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		st := s.status(t)
		if st.LoadsTotal == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("preload never finished: %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get(s.srv.URL + "/models")
	if err != nil {
		t.Fatal(err)
	}
	var models types.ModelsResponse
	_ = json.NewDecoder(resp.Body).Decode(&models)
	resp.Body.Close()
	if len(models.Models) != 1 || models.Models[0].Name != "vit-cats" {
		t.Fatalf("unexpected models: %+v", models)
	}

	if code := s.postJSON(t, "/models/unload", ref); code != http.StatusNoContent {
		t.Fatalf("unload status=%d", code)
	}
	if code := s.postJSON(t, "/cache/clear", ref); code != http.StatusNoContent {
		t.Fatalf("clear status=%d", code)
	}
	if store.IsCached(s.store.Location("vit-cats", types.FamilyImageClassification)) {
		t.Fatalf("cache should be empty after clear")
	}
	before := len(s.reg.downloaded())
	if code, _ := s.predict(t, "vit-cats", "", pngBytes(t)); code != http.StatusOK {
		t.Fatalf("predict after clear: status=%d", code)
	}
	if len(s.reg.downloaded()) <= before {
		t.Fatalf("expected a refetch after clearing the cache")
	}
}
