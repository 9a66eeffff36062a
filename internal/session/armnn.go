package session

// armnnLoader stands in for the Arm NN delegate. No Go binding for it
// exists, so accelerator artifacts fail with a typed error and callers fall
// back to the portable runtime by requesting the .onnx artifact.
type armnnLoader struct {
	fp16Turbo bool
}

func newARMNNLoader(fp16Turbo bool) Loader { return armnnLoader{fp16Turbo: fp16Turbo} }

func (armnnLoader) Load(path string, _ Selection) (Session, error) {
	return nil, ErrDependencyUnavailable("armnn", "no Arm NN binding in this build")
}
