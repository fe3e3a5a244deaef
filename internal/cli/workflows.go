// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/noldarim/wfbuilder/internal/api"
	"github.com/noldarim/wfbuilder/internal/pipeline"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

const timeFormat = "2006-01-02 15:04:05"

func historyCmd(a *app) *cobra.Command {
	var (
		limit  int
		offset int
		output string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previously submitted workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			if limit < 0 || offset < 0 {
				return fmt.Errorf("limit and offset must not be negative")
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			items, err := client.History(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != outputTable {
				return writeStructured(out, output, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No workflows yet."))
				return nil
			}
			rows := lo.Map(items, func(it api.HistoryItem, _ int) []string {
				return []string{
					it.ID,
					statusStyle(string(it.Status)).Render(string(it.Status)),
					string(it.ModelType),
					it.CreatedAt.Local().Format(timeFormat),
					truncate(it.Description, 48),
				}
			})
			fmt.Fprintln(out, renderTable([]string{"ID", "STATUS", "MODEL", "CREATED", "DESCRIPTION"}, rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of workflows to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of workflows to skip")
	cmd.Flags().StringVar(&output, "output", outputTable, "Output format (table, json, yaml)")
	return cmd
}

func getCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <workflow-id>",
		Short: "Show a workflow and the state of its agents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			wf, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != outputTable {
				return writeStructured(out, output, wf)
			}
			fmt.Fprint(out, describeWorkflow(wf))
			if len(wf.AgentProgress) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, agentTable(wf.AgentProgress))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", outputTable, "Output format (table, json, yaml)")
	return cmd
}

func describeWorkflow(wf *api.Workflow) string {
	pairs := []pair{
		kv("ID", wf.ID),
		kv("Status", statusStyle(string(wf.Status)).Render(string(wf.Status))),
		kv("Created", wf.CreatedAt.Local().Format(timeFormat)),
	}
	if wf.CompletedAt != nil {
		pairs = append(pairs,
			kv("Completed", wf.CompletedAt.Local().Format(timeFormat)),
			kv("Duration", wf.CompletedAt.Sub(wf.CreatedAt.Time).Round(time.Millisecond).String()))
	}
	if desc, ok := wf.Metadata["description"].(string); ok && desc != "" {
		pairs = append(pairs, kv("Description", truncate(desc, 72)))
	}
	if model, ok := wf.Metadata["model_type"].(string); ok && model != "" {
		pairs = append(pairs, kv("Model", model))
	}
	if wf.Error != "" {
		pairs = append(pairs, kv("Error", errorStyle.Render(wf.Error)))
	}
	return keyValues(pairs...)
}

// agentTable lists agents in pipeline order, unknown agents last.
func agentTable(progress []api.AgentProgress) string {
	ordered := append([]api.AgentProgress(nil), progress...)
	rank := func(name string) int {
		if i := pipeline.Index(name); i >= 0 {
			return i
		}
		return pipeline.Len()
	}
	slices.SortStableFunc(ordered, func(x, y api.AgentProgress) int {
		return cmp.Compare(rank(x.Name), rank(y.Name))
	})

	rows := lo.Map(ordered, func(ap api.AgentProgress, i int) []string {
		label := ap.Name
		if st, ok := pipeline.Lookup(ap.Name); ok {
			label = st.Label
		}
		return []string{
			strconv.Itoa(i + 1),
			label,
			statusStyle(ap.Status).Render(ap.Status),
			truncate(ap.Message, 48),
		}
	})
	return renderTable([]string{"#", "AGENT", "STATUS", "MESSAGE"}, rows)
}

func downloadCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "download <workflow-id>",
		Short: "Download the generated workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			path := out
			if path == "" {
				path = id + ".json"
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			if err := saveWorkflow(cmd, client, id, path); err != nil {
				if api.IsNotReady(err) {
					return fmt.Errorf("workflow %s has not finished generating", id)
				}
				return err
			}
			if path != "-" {
				fmt.Fprintln(cmd.OutOrStdout(), successMsg("Saved %s to %s", id, path))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", `Destination file, "-" for stdout (default "<id>.json")`)
	return cmd
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <workflow-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a workflow record",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			if err := client.Delete(cmd.Context(), args[0]); err != nil {
				if api.IsNotFound(err) {
					return fmt.Errorf("workflow %s not found", args[0])
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successMsg("Deleted %s", args[0]))
			return nil
		},
	}
}
