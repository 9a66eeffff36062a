//go:build !onnx

package session

import "github.com/rs/zerolog"

// ONNXBuilt indicates this binary was compiled with onnxruntime support.
var ONNXBuilt = false

// onnxLoader refuses to open sessions when the 'onnx' build tag is not set,
// keeping default builds CGO-free.
type onnxLoader struct{}

func newONNXLoader(string, zerolog.Logger) Loader { return onnxLoader{} }

func (onnxLoader) Load(string, Selection) (Session, error) {
	return nil, ErrDependencyUnavailable("onnxruntime", "support not built (missing 'onnx' build tag)")
}
