package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"inferd/internal/hub"
	"inferd/internal/manager"
	"inferd/internal/model"
	"inferd/internal/model/imageclass"
	"inferd/internal/session"
	"inferd/pkg/types"
)

type mockService struct {
	mu         sync.Mutex
	models     []types.Model
	status     types.StatusResponse
	backends   types.BackendReport
	ready      bool
	predictErr error
	refErr     error
	block      bool
	got        []types.PredictRequest
	refs       []string
}

func (m *mockService) ListModels() []types.Model                 { return append([]types.Model(nil), m.models...) }
func (m *mockService) Status() types.StatusResponse              { return m.status }
func (m *mockService) Backends() types.BackendReport             { return m.backends }
func (m *mockService) Ready() bool                               { return m.ready }
func (m *mockService) Unload(f types.Family, n string) error     { return m.ref("unload", f, n) }
func (m *mockService) ClearCache(f types.Family, n string) error { return m.ref("clear", f, n) }

func (m *mockService) Preload(_ context.Context, f types.Family, n string) (string, error) {
	if err := m.ref("preload", f, n); err != nil {
		return "", err
	}
	return "op-1", nil
}

func (m *mockService) ref(op string, f types.Family, n string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs = append(m.refs, op+":"+string(f)+"|"+n)
	return m.refErr
}

func (m *mockService) Predict(ctx context.Context, req types.PredictRequest) (any, error) {
	m.mu.Lock()
	m.got = append(m.got, req)
	m.mu.Unlock()
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.predictErr != nil {
		return nil, m.predictErr
	}
	return []string{"tabby", "tabby cat"}, nil
}

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func jsonPredict(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func validPredict() types.PredictRequest {
	return types.PredictRequest{
		ModelName: "microsoft/resnet-50",
		Family:    types.FamilyImageClassification,
		Input:     []byte{0xff, 0xd8},
		Options:   map[string]any{"minScore": 0.5},
	}
}

func TestModelsHandler(t *testing.T) {
	svc := &mockService{models: []types.Model{{Name: "m1"}, {Name: "m2"}}}
	rec := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.ModelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Models) != 2 {
		t.Fatalf("models len=%d", len(body.Models))
	}

	// empty cache renders [] rather than null
	rec = httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models", nil))
	if !strings.Contains(rec.Body.String(), `"models":[]`) {
		t.Fatalf("body=%s", rec.Body.String())
	}
}

func TestStatusAndBackendsHandlers(t *testing.T) {
	svc := &mockService{
		status:   types.StatusResponse{MaxLoaded: 4, LoadsTotal: 2},
		backends: types.BackendReport{Available: []string{"CPUExecutionProvider"}, InterOpThreads: 1, IntraOpThreads: 2},
	}
	h := NewMux(svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var st types.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if st.MaxLoaded != 4 || st.LoadsTotal != 2 {
		t.Fatalf("unexpected status: %+v", st)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/backends", nil))
	var br types.BackendReport
	if err := json.Unmarshal(rec.Body.Bytes(), &br); err != nil {
		t.Fatalf("json: %v", err)
	}
	if diff := cmp.Diff(svc.backends, br); diff != "" {
		t.Fatalf("backends mismatch (-want +got):\n%s", diff)
	}
}

func TestPredictJSON(t *testing.T) {
	svc := &mockService{}
	rec := jsonPredict(t, NewMux(svc), validPredict())
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Result []string `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if diff := cmp.Diff([]string{"tabby", "tabby cat"}, resp.Result); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	got := svc.got[0]
	if got.ModelName != "microsoft/resnet-50" || !bytes.Equal(got.Input, []byte{0xff, 0xd8}) || got.Options["minScore"] != 0.5 {
		t.Fatalf("unexpected decoded request: %+v", got)
	}
}

func TestPredictMultipart(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("model_name", "microsoft/resnet-50")
	_ = mw.WriteField("model_type", "image-classification")
	_ = mw.WriteField("options", `{"minScore":0.3}`)
	fw, err := mw.CreateFormFile("image", "cat.jpg")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("jpegbytes"))
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	svc := &mockService{}
	NewMux(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	got := svc.got[0]
	if string(got.Input) != "jpegbytes" || got.Family != types.FamilyImageClassification || got.Options["minScore"] != 0.3 {
		t.Fatalf("unexpected decoded request: %+v", got)
	}
}

func TestPredictValidation(t *testing.T) {
	h := NewMux(&mockService{})

	noName := validPredict()
	noName.ModelName = " "
	if rec := jsonPredict(t, h, noName); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing model_name: status=%d", rec.Code)
	}
	noInput := validPredict()
	noInput.Input = nil
	if rec := jsonPredict(t, h, noInput); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing input: status=%d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("text/plain: status=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status=%d", rec.Code)
	}
	var er types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil || er.Code != http.StatusBadRequest {
		t.Fatalf("error payload=%s err=%v", rec.Body.String(), err)
	}
}

func TestPredictBodyTooLarge(t *testing.T) {
	SetMaxBodyBytes(64)
	defer SetMaxBodyBytes(0)
	big := validPredict()
	big.Input = bytes.Repeat([]byte{1}, 1024)
	rec := jsonPredict(t, NewMux(&mockService{}), big)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestPredictErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", manager.ErrModelNotFound("image-classification|x"), http.StatusNotFound},
		{"busy", manager.ErrTooBusy("image-classification|x"), http.StatusTooManyRequests},
		{"invalid", manager.ErrInvalidRequest("bad"), http.StatusBadRequest},
		{"bad image", imageclass.ErrBadInput(errors.New("unknown format")), http.StatusBadRequest},
		{"bad param", model.ErrInvalidParam("minScore", "out of range"), http.StatusBadRequest},
		{"format", session.ErrUnsupportedFormat("/m/model.tflite"), http.StatusBadRequest},
		{"runtime", session.ErrDependencyUnavailable("onnxruntime", "not built"), http.StatusServiceUnavailable},
		{"repo missing", &hub.FetchError{Kind: hub.KindNotFound, Repo: "a/b"}, http.StatusNotFound},
		{"registry down", &hub.FetchError{Kind: hub.KindNetwork, Repo: "a/b"}, http.StatusBadGateway},
		{"custom", mockHTTPError{msg: "teapot", code: http.StatusTeapot}, http.StatusTeapot},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := jsonPredict(t, NewMux(&mockService{predictErr: tc.err}), validPredict())
			if rec.Code != tc.want {
				t.Fatalf("status=%d want %d body=%s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestPredictTimeout(t *testing.T) {
	SetPredictTimeout(20 * time.Millisecond)
	defer SetPredictTimeout(0)
	rec := jsonPredict(t, NewMux(&mockService{block: true}), validPredict())
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestPredictShutdownWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	SetBaseContext(ctx)
	defer SetBaseContext(nil)
	cancel()
	rec := jsonPredict(t, NewMux(&mockService{block: true}), validPredict())
	if rec.Body.Len() != 0 {
		t.Fatalf("expected no body on shutdown, got %q", rec.Body.String())
	}
}

func TestModelControlEndpoints(t *testing.T) {
	svc := &mockService{}
	h := NewMux(svc)
	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	ref := `{"model_name":"m","model_type":"image-classification"}`

	rec := post("/models/preload", ref)
	if rec.Code != http.StatusAccepted || !strings.Contains(rec.Body.String(), `"op_id":"op-1"`) {
		t.Fatalf("preload status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := post("/models/unload", ref); rec.Code != http.StatusNoContent {
		t.Fatalf("unload status=%d", rec.Code)
	}
	if rec := post("/cache/clear", ref); rec.Code != http.StatusNoContent {
		t.Fatalf("clear status=%d", rec.Code)
	}
	want := []string{"preload:image-classification|m", "unload:image-classification|m", "clear:image-classification|m"}
	if diff := cmp.Diff(want, svc.refs); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}

	if rec := post("/models/unload", `{"model_type":"clip"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing name: status=%d", rec.Code)
	}
	svc.refErr = manager.ErrModelNotFound("clip|m")
	if rec := post("/models/unload", ref); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown: status=%d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/cache/clear", strings.NewReader(ref))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("missing content type: status=%d", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	rec := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rec.Code)
	}
	rec = httptest.NewRecorder()
	NewMux(&mockService{ready: true}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status=%d", rec.Code)
	}
	rec = httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "not ready") {
		t.Fatalf("readyz status=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	SetCORSOptions(true, []string{"*"}, nil, nil)
	defer SetCORSOptions(false, nil, nil, nil)

	h := NewMux(&mockService{ready: true})
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options=nosniff, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected CORS allow origin *, got %q", got)
	}

	SetCORSOptions(false, nil, nil, nil)
	rec = httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("CORS disabled but got allow origin %q", got)
	}
}

func TestJSONInputIsBase64(t *testing.T) {
	raw := `{"model_name":"m","model_type":"image-classification","input":"` + base64.StdEncoding.EncodeToString([]byte("abc")) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(raw))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	svc := &mockService{}
	NewMux(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || string(svc.got[0].Input) != "abc" {
		t.Fatalf("status=%d got=%+v", rec.Code, svc.got)
	}
}
