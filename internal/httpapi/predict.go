package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"inferd/pkg/types"
)

var errUnsupportedMedia = errors.New("unsupported content type, want application/json or multipart/form-data")

// multipart bodies beyond this are spilled to temp files by the stdlib
const multipartMemory = 8 << 20

// decodePredict accepts either a JSON PredictRequest with base64 input or a
// multipart form with model_name, model_type, options (JSON) and an "image"
// file or "text" field.
func decodePredict(r *http.Request) (types.PredictRequest, error) {
	var req types.PredictRequest
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return req, errUnsupportedMedia
	}
	switch mt {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return req, err
			}
			return req, errors.New("invalid JSON body")
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return req, err
			}
			return req, fmt.Errorf("invalid multipart body: %v", err)
		}
		req.ModelName = r.FormValue("model_name")
		req.Family = types.Family(r.FormValue("model_type"))
		if raw := r.FormValue("options"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Options); err != nil {
				return req, errors.New("options must be a JSON object")
			}
		}
		if f, _, err := r.FormFile("image"); err == nil {
			defer f.Close()
			b, err := io.ReadAll(f)
			if err != nil {
				return req, fmt.Errorf("read image: %v", err)
			}
			req.Input = b
		} else if text := r.FormValue("text"); text != "" {
			req.Input = []byte(text)
		}
	default:
		return req, errUnsupportedMedia
	}
	req.ModelName = strings.TrimSpace(req.ModelName)
	if req.ModelName == "" {
		return req, errors.New("model_name is required")
	}
	if req.Family == "" {
		return req, errors.New("model_type is required")
	}
	if len(req.Input) == 0 {
		return req, errors.New("input is required")
	}
	return req, nil
}
