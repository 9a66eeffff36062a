package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"inferd/internal/manager"
	"inferd/pkg/types"
)

func familyFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("type", "t", string(types.FamilyImageClassification), "Model family")
}

func familyOf(cmd *cobra.Command) (types.Family, error) {
	v, _ := cmd.Flags().GetString("type")
	f := types.Family(v)
	if !f.Valid() {
		return "", fmt.Errorf("unknown model family %q", v)
	}
	return f, nil
}

func newFetchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fetch <model>",
		Short:   "Download and load a model so the cache is warm",
		Example: "  inferd fetch microsoft/resnet-50 --type image-classification",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			family, err := familyOf(cmd)
			if err != nil {
				return err
			}
			deps, err := a.buildDeps()
			if err != nil {
				return err
			}
			pub := manager.NewMemoryPublisher()
			mgr := a.buildManager(deps, nil, pub)
			defer mgr.Close()
			if err := mgr.EnsureInstance(cmd.Context(), family, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s ready in %s\n", args[0], deps.Store.Location(args[0], family))
			return nil
		},
	}
	familyFlag(cmd)
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear <model>",
		Short: "Remove a model's cached artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			family, err := familyOf(cmd)
			if err != nil {
				return err
			}
			deps, err := a.buildDeps()
			if err != nil {
				return err
			}
			mgr := a.buildManager(deps, nil, nil)
			defer mgr.Close()
			if err := mgr.ClearCache(family, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "cleared %s\n", deps.Store.Location(args[0], family))
			return nil
		},
	}
	familyFlag(cmd)
	return cmd
}

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "models",
		Aliases: []string{"ls"},
		Short:   "List cached models",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := a.buildDeps()
			if err != nil {
				return err
			}
			mgr := a.buildManager(deps, nil, nil)
			defer mgr.Close()
			var data [][]string
			for _, m := range mgr.ListModels() {
				data = append(data, []string{m.Name, string(m.Family), humanBytes(m.SizeBytes)})
			}
			renderTable(a, []string{"NAME", "TYPE", "SIZE"}, data)
			return nil
		},
	}
}

func newBackendsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "Show the execution backends negotiated for this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := a.buildDeps()
			if err != nil {
				return err
			}
			r := a.buildManager(deps, nil, nil).Backends()
			var data [][]string
			for i, b := range r.Available {
				var opts []string
				if i < len(r.ProviderOptions) {
					for k, v := range r.ProviderOptions[i] {
						opts = append(opts, k+"="+v)
					}
				}
				slices.Sort(opts)
				data = append(data, []string{strconv.Itoa(i), b, strings.Join(opts, " ")})
			}
			renderTable(a, []string{"PRIORITY", "BACKEND", "OPTIONS"}, data)
			fmt.Fprintf(a.out, "\nthreads: inter=%d intra=%d mode=%s arena=%v runtime=%s onnxruntime_built=%v\n",
				r.InterOpThreads, r.IntraOpThreads, r.ExecutionMode, r.CPUMemArena, r.PreferredRuntime, r.ONNXRuntimeBuilt)
			return nil
		},
	}
}

func renderTable(a *app, header []string, data [][]string) {
	table := tablewriter.NewWriter(a.out)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
