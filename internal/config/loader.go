package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. INFERD_CACHE_DIR.
const EnvPrefix = "INFERD_"

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by Defaults via Merge.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	CacheDir  string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	HubURL           string `json:"hub_url" yaml:"hub_url" toml:"hub_url"`
	HubToken         string `json:"hub_token" yaml:"hub_token" toml:"hub_token"`
	HubRevision      string `json:"hub_revision" yaml:"hub_revision" toml:"hub_revision"`
	DefaultNamespace string `json:"default_namespace" yaml:"default_namespace" toml:"default_namespace"`
	FetchParallelism int    `json:"fetch_parallelism" yaml:"fetch_parallelism" toml:"fetch_parallelism"`

	// 0 keeps the computed default, >0 overrides it.
	InterOpThreads int `json:"model_inter_op_threads" yaml:"model_inter_op_threads" toml:"model_inter_op_threads"`
	IntraOpThreads int `json:"model_intra_op_threads" yaml:"model_intra_op_threads" toml:"model_intra_op_threads"`

	ANN            bool   `json:"ann" yaml:"ann" toml:"ann"`
	ANNFP16Turbo   bool   `json:"ann_fp16_turbo" yaml:"ann_fp16_turbo" toml:"ann_fp16_turbo"`
	ORTLibraryPath string `json:"ort_library_path" yaml:"ort_library_path" toml:"ort_library_path"`

	MinScore        float64 `json:"min_score" yaml:"min_score" toml:"min_score"`
	MaxQueueDepth   int     `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitMS       int     `json:"max_wait_ms" yaml:"max_wait_ms" toml:"max_wait_ms"`
	MaxLoadedModels int     `json:"max_loaded_models" yaml:"max_loaded_models" toml:"max_loaded_models"`

	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
}

// Defaults returns the configuration used when nothing else is specified.
func Defaults() Config {
	return Config{
		Addr:             ":3003",
		CacheDir:         "~/.cache/inferd",
		LogLevel:         "info",
		LogFormat:        "json",
		HubURL:           "https://huggingface.co",
		HubRevision:      "main",
		DefaultNamespace: "immich-app",
		FetchParallelism: 4,
		MinScore:         0.9,
		MaxQueueDepth:    32,
		MaxWaitMS:        30000,
		MaxLoadedModels:  4,
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Merge fills every unspecified field of cfg from def.
func Merge(cfg, def Config) Config {
	str := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	num := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	str(&cfg.Addr, def.Addr)
	str(&cfg.CacheDir, def.CacheDir)
	str(&cfg.LogLevel, def.LogLevel)
	str(&cfg.LogFormat, def.LogFormat)
	str(&cfg.HubURL, def.HubURL)
	str(&cfg.HubRevision, def.HubRevision)
	str(&cfg.DefaultNamespace, def.DefaultNamespace)
	str(&cfg.ORTLibraryPath, def.ORTLibraryPath)
	num(&cfg.FetchParallelism, def.FetchParallelism)
	num(&cfg.InterOpThreads, def.InterOpThreads)
	num(&cfg.IntraOpThreads, def.IntraOpThreads)
	num(&cfg.MaxQueueDepth, def.MaxQueueDepth)
	num(&cfg.MaxWaitMS, def.MaxWaitMS)
	num(&cfg.MaxLoadedModels, def.MaxLoadedModels)
	if cfg.MinScore == 0 {
		cfg.MinScore = def.MinScore
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = def.CORSOrigins
	}
	return cfg
}

// ApplyEnv overrides cfg from INFERD_* variables. Malformed values are
// reported, not ignored.
func ApplyEnv(cfg *Config) error {
	return ApplyEnvFrom(cfg, os.LookupEnv)
}

// ApplyEnvFrom is ApplyEnv over an arbitrary lookup, e.g. a test map.
func ApplyEnvFrom(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ADDR":              &cfg.Addr,
		"CACHE_DIR":         &cfg.CacheDir,
		"LOG_LEVEL":         &cfg.LogLevel,
		"LOG_FORMAT":        &cfg.LogFormat,
		"HUB_URL":           &cfg.HubURL,
		"HUB_TOKEN":         &cfg.HubToken,
		"HUB_REVISION":      &cfg.HubRevision,
		"DEFAULT_NAMESPACE": &cfg.DefaultNamespace,
		"ORT_LIBRARY_PATH":  &cfg.ORTLibraryPath,
	}
	ints := map[string]*int{
		"FETCH_PARALLELISM":      &cfg.FetchParallelism,
		"MODEL_INTER_OP_THREADS": &cfg.InterOpThreads,
		"MODEL_INTRA_OP_THREADS": &cfg.IntraOpThreads,
		"MAX_QUEUE_DEPTH":        &cfg.MaxQueueDepth,
		"MAX_WAIT_MS":            &cfg.MaxWaitMS,
		"MAX_LOADED_MODELS":      &cfg.MaxLoadedModels,
	}
	bools := map[string]*bool{
		"ANN":            &cfg.ANN,
		"ANN_FP16_TURBO": &cfg.ANNFP16Turbo,
		"CORS_ENABLED":   &cfg.CORSEnabled,
	}
	for k, p := range strs {
		if v, ok := lookup(EnvPrefix + k); ok {
			*p = v
		}
	}
	for k, p := range ints {
		if v, ok := lookup(EnvPrefix + k); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, k, err)
			}
			*p = n
		}
	}
	for k, p := range bools {
		if v, ok := lookup(EnvPrefix + k); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, k, err)
			}
			*p = b
		}
	}
	if v, ok := lookup(EnvPrefix + "MIN_SCORE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sMIN_SCORE: %w", EnvPrefix, err)
		}
		cfg.MinScore = f
	}
	if v, ok := lookup(EnvPrefix + "CORS_ALLOWED_ORIGINS"); ok {
		cfg.CORSOrigins = SplitCSV(v)
	}
	return nil
}

// SplitCSV splits a comma-separated list, trimming blanks and dropping empties.
func SplitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
