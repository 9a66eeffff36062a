package types

// PredictRequest is the payload of POST /predict.
type PredictRequest struct {
	// Registry identity of the model to run.
	// example: microsoft/resnet-50
	ModelName string `json:"model_name" example:"microsoft/resnet-50"`
	// Model family.
	// example: image-classification
	Family Family `json:"model_type" example:"image-classification"`
	// Raw input payload (image bytes for vision families). Base64 in JSON.
	Input []byte `json:"input"`
	// Optional reconfiguration parameters applied before prediction.
	// example: {"minScore": 0.5}
	Options map[string]any `json:"options,omitempty"`
}

// PredictResponse wraps a family-specific prediction result.
type PredictResponse struct {
	Result any `json:"result"`
}

// ModelRef addresses a model in cache and unload/preload requests.
type ModelRef struct {
	// example: microsoft/resnet-50
	ModelName string `json:"model_name" example:"microsoft/resnet-50"`
	// example: image-classification
	Family Family `json:"model_type" example:"image-classification"`
}

// PreloadResponse is returned by POST /models/preload.
type PreloadResponse struct {
	// example: 2f1a0c1e-5a0e-4d8b-9a63-0f1e2d3c4b5a
	OpID string `json:"op_id" example:"2f1a0c1e-5a0e-4d8b-9a63-0f1e2d3c4b5a"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// Cached models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// InstanceStatus summarizes a model instance for /status.
type InstanceStatus struct {
	// example: microsoft/resnet-50
	ModelName string `json:"model_name" example:"microsoft/resnet-50"`
	// example: image-classification
	Family Family `json:"model_type" example:"image-classification"`
	// Lifecycle state (unloaded, downloading, downloaded, loading, loaded).
	// example: loaded
	State string `json:"state" example:"loaded"`
	// Execution backends in descending order of preference.
	// example: ["CPUExecutionProvider"]
	Backends []string `json:"backends" example:"CPUExecutionProvider"`
	// example: onnx
	Runtime string `json:"runtime" example:"onnx"`
	// Last time this instance served a request (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Estimated resident size in MB (cached artifact size).
	// example: 98
	EstMemMB int `json:"est_mem_mb" example:"98"`
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Instances []InstanceStatus `json:"instances"`
	// Maximum number of instances kept loaded (0 = unlimited).
	// example: 4
	MaxLoaded int `json:"max_loaded_models" example:"4"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Number of instances currently downloading or loading.
	// example: 1
	WarmupsInProgress int `json:"warmups_in_progress" example:"1"`
	// example: 0
	DrainingCount int `json:"draining_count" example:"0"`
}

// BackendReport describes the execution backend negotiation on this host.
type BackendReport struct {
	// Probed backends in priority order.
	// example: ["CUDAExecutionProvider","CPUExecutionProvider"]
	Available []string `json:"available"`
	// Default provider options, one map per available backend.
	ProviderOptions []map[string]string `json:"provider_options"`
	// example: 1
	InterOpThreads int `json:"inter_op_threads"`
	// example: 2
	IntraOpThreads int `json:"intra_op_threads"`
	// example: sequential
	ExecutionMode string `json:"execution_mode"`
	// example: false
	CPUMemArena bool `json:"cpu_mem_arena"`
	// example: onnx
	PreferredRuntime string `json:"preferred_runtime"`
	// Whether the ONNX runtime is compiled into this binary.
	// example: true
	ONNXRuntimeBuilt bool `json:"onnx_runtime_built"`
}
