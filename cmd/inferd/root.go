package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferd/internal/config"
)

// app carries state shared by subcommands once the root has resolved config.
type app struct {
	cfg config.Config
	log zerolog.Logger
	out io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{out: os.Stdout}
	var cfgPath string
	root := &cobra.Command{
		Use:           "inferd",
		Short:         "Machine learning inference service with cached model artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// Persistent flags -> Config. Precedence: defaults < file < env < flags.
	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "Path to a YAML, JSON or TOML config file")
	pf.String("cache-dir", "", "Model cache root (default ~/.cache/inferd)")
	pf.String("log-level", "", "Log level: debug|info|warn|error")
	pf.String("log-format", "", "Log format: json|console")
	pf.String("hub-url", "", "Model registry base URL")
	pf.Int("inter-op-threads", 0, "Override inter-op thread count (0 = computed)")
	pf.Int("intra-op-threads", 0, "Override intra-op thread count (0 = computed)")
	pf.Bool("ann", false, "Prefer the ARM NN runtime when available")
	pf.String("ort-lib", "", "Path to libonnxruntime")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd, cfgPath, os.LookupEnv)
		if err != nil {
			return err
		}
		a.cfg = cfg
		a.out = cmd.OutOrStdout()
		a.log, err = newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
		return err
	}

	root.AddCommand(newServeCmd(a), newFetchCmd(a), newClearCmd(a), newModelsCmd(a), newBackendsCmd(a))

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(cmd.OutOrStdout()) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(cmd.OutOrStdout(), true) }})
	root.AddCommand(completionCmd)
	return root
}

// resolveConfig layers the config file, INFERD_* env and changed flags over
// the defaults.
func resolveConfig(cmd *cobra.Command, path string, lookup func(string) (string, bool)) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if err := config.ApplyEnvFrom(&cfg, lookup); err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	str("cache-dir", &cfg.CacheDir)
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	str("hub-url", &cfg.HubURL)
	str("ort-lib", &cfg.ORTLibraryPath)
	str("addr", &cfg.Addr)
	if flags.Changed("inter-op-threads") {
		cfg.InterOpThreads, _ = flags.GetInt("inter-op-threads")
	}
	if flags.Changed("intra-op-threads") {
		cfg.IntraOpThreads, _ = flags.GetInt("intra-op-threads")
	}
	if flags.Changed("ann") {
		cfg.ANN, _ = flags.GetBool("ann")
	}
	if flags.Changed("max-loaded-models") {
		cfg.MaxLoadedModels, _ = flags.GetInt("max-loaded-models")
	}
	if flags.Changed("min-score") {
		cfg.MinScore, _ = flags.GetFloat64("min-score")
	}
	return config.Merge(cfg, config.Defaults()), nil
}

func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q", level)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	switch format {
	case "", "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
