// Package manager coordinates model instances for the service. It is
// structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: instance bookkeeping and the family Factory type.
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound).
//   - helpers.go: instance keys, lookup and memory estimation.
//   - queue_admission.go: per-instance queueing and single in-flight admission.
//   - ensure.go: EnsureInstance, which fetches and loads through the model lifecycle.
//   - predict.go: the caller-facing Predict entry point.
//   - evict.go: LRU eviction to stay within the loaded-model limit.
//   - unload.go: drain and close of an instance; cache clearing.
//   - ops.go: background preload operations.
//   - status_report.go: Status reporting.
//   - sanity.go: execution backend report.
//   - metrics.go: Prometheus collectors.
//
// Instances are created lazily per (family, model name) by the family's
// Factory. Each instance owns one model.Model, which serialises its own load
// and predict; the manager adds bounded queueing in front of it.
package manager
