// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noldarim/wfbuilder/internal/api"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func agentsCmd(a *app) *cobra.Command {
	var (
		showPipeline bool
		output       string
	)

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the agents the service runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if showPipeline {
				info, err := client.Pipeline(cmd.Context())
				if err != nil {
					return err
				}
				if output != outputTable {
					return writeStructured(out, output, info)
				}
				fmt.Fprint(out, describeMode(info.Generation))
				fmt.Fprintln(out)
				fmt.Fprint(out, describeMode(info.Organization))
				return nil
			}

			list, err := client.Agents(cmd.Context())
			if err != nil {
				return err
			}
			if output != outputTable {
				return writeStructured(out, output, list)
			}
			rows := lo.Map(list.Agents, func(ag api.Agent, _ int) []string {
				return []string{ag.Name, ag.Category, truncate(ag.Description, 56)}
			})
			fmt.Fprintln(out, renderTable([]string{"NAME", "CATEGORY", "DESCRIPTION"}, rows))
			fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d agents", list.Total)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showPipeline, "pipeline", false, "Show the two pipeline halves and their agent order")
	cmd.Flags().StringVar(&output, "output", outputTable, "Output format (table, json, yaml)")
	return cmd
}

func describeMode(m api.PipelineMode) string {
	var sb strings.Builder
	sb.WriteString(accentStyle.Bold(true).Render(m.Name))
	sb.WriteString(" " + mutedStyle.Render(m.Description) + "\n")
	for i, name := range m.Agents {
		fmt.Fprintf(&sb, "  %2d. %s\n", i+1, name)
	}
	return sb.String()
}

func modelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List model types, LoRAs and resolution presets",
	}
	cmd.AddCommand(modelTypesCmd(a), lorasCmd(a), resolutionsCmd(a))
	return cmd
}

// catalogCmd builds a listing subcommand that fetches with load and renders
// a table with rows.
func catalogCmd[T any](a *app, use, short string, load func(*api.Client, *cobra.Command) ([]T, error), headers []string, row func(T) []string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			items, err := load(client, cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if output != outputTable {
				return writeStructured(out, output, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("None."))
				return nil
			}
			fmt.Fprintln(out, renderTable(headers, lo.Map(items, func(it T, _ int) []string { return row(it) })))
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", outputTable, "Output format (table, json, yaml)")
	return cmd
}

func modelTypesCmd(a *app) *cobra.Command {
	return catalogCmd(a, "types", "List supported model types",
		func(c *api.Client, cmd *cobra.Command) ([]api.ModelInfo, error) { return c.ModelTypes(cmd.Context()) },
		[]string{"ID", "NAME", "RESOLUTION", "DESCRIPTION"},
		func(m api.ModelInfo) []string {
			return []string{m.ID, m.Name, m.DefaultResolution, truncate(m.Description, 48)}
		})
}

func lorasCmd(a *app) *cobra.Command {
	return catalogCmd(a, "loras", "List installed LoRA models",
		func(c *api.Client, cmd *cobra.Command) ([]api.Lora, error) { return c.Loras(cmd.Context()) },
		[]string{"NAME", "PATH"},
		func(l api.Lora) []string { return []string{l.Name, l.Path} })
}

func resolutionsCmd(a *app) *cobra.Command {
	return catalogCmd(a, "resolutions", "List resolution presets",
		func(c *api.Client, cmd *cobra.Command) ([]api.Resolution, error) { return c.Resolutions(cmd.Context()) },
		[]string{"NAME", "SIZE", "RATIO"},
		func(r api.Resolution) []string {
			return []string{r.Name, strconv.Itoa(r.Width) + "x" + strconv.Itoa(r.Height), r.Ratio}
		})
}

func healthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			h, err := client.Health(cmd.Context())
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), errorMsg("Service at %s is unreachable", a.cfg.Service.RESTURL))
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, successMsg("Service is %s", h.Status))
			pairs := []pair{kv("URL", a.cfg.Service.RESTURL), kv("Stream", a.cfg.Service.StreamURL)}
			if h.BuilderPath != "" {
				pairs = append(pairs, kv("Builder", h.BuilderPath))
			}
			if h.WorkspacePath != "" {
				pairs = append(pairs, kv("Workspace", h.WorkspacePath))
			}
			fmt.Fprint(out, keyValues(pairs...))
			return nil
		},
	}
}
