// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/noldarim/wfbuilder/internal/api"
	"github.com/noldarim/wfbuilder/internal/tui/components/pipelinesummary"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type generateOptions struct {
	model     string
	width     int
	height    int
	steps     int
	noUpscale bool
	adetailer bool
	loras     []string
	options   map[string]string
	out       string
	plain     bool
	noWatch   bool
}

func generateCmd(a *app) *cobra.Command {
	opts := generateOptions{options: map[string]string{}}

	cmd := &cobra.Command{
		Use:   "generate [description]",
		Short: "Submit a workflow description and follow its generation",
		Long: `Submit a natural-language workflow description to the service and show
the progress of every agent as the workflow is built. Without a description
argument the command asks for one on an interactive terminal.

Examples:
  wfbuilder generate "portrait of an astronaut, soft light"
  wfbuilder generate --model sdxl --width 1216 --height 832 "misty harbour at dawn"
  wfbuilder generate --lora detail-tweaker --option seed=42 --out harbour.json "harbour"`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				description, err := promptDescription(&opts)
				if err != nil {
					return err
				}
				args = []string{description}
			}
			return runGenerate(cmd, a, strings.Join(args, " "), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.model, "model", "m", "", "Model type (flux, sdxl, pony, sd1.5)")
	f.IntVar(&opts.width, "width", 0, "Image width in pixels")
	f.IntVar(&opts.height, "height", 0, "Image height in pixels")
	f.IntVar(&opts.steps, "steps", 0, "Sampling steps")
	f.BoolVar(&opts.noUpscale, "no-upscale", false, "Leave the upscale nodes out")
	f.BoolVar(&opts.adetailer, "adetailer", false, "Add ADetailer face refinement")
	f.StringArrayVar(&opts.loras, "lora", nil, "LoRA model to include (repeatable)")
	f.StringToStringVar(&opts.options, "option", nil, "Custom option as key=value (repeatable)")
	f.StringVarP(&opts.out, "out", "o", "", "Save the generated workflow to this file")
	f.BoolVar(&opts.plain, "plain", false, "Print one line per stage change instead of the live view")
	f.BoolVar(&opts.noWatch, "no-watch", false, "Submit and exit without following progress")
	return cmd
}

func (o generateOptions) request(description string) (api.WorkflowRequest, error) {
	req := api.WorkflowRequest{
		Description: strings.TrimSpace(description),
		Width:       o.width,
		Height:      o.height,
		Steps:       o.steps,
		LoraModels:  o.loras,
	}
	if req.Description == "" {
		return req, fmt.Errorf("description must not be empty")
	}
	if o.model != "" {
		mt, err := api.ParseModelType(o.model)
		if err != nil {
			return req, err
		}
		req.ModelType = mt
	}
	if o.width < 0 || o.height < 0 || o.steps < 0 {
		return req, fmt.Errorf("width, height and steps must not be negative")
	}
	if o.noUpscale {
		req.IncludeUpscale = lo.ToPtr(false)
	}
	if o.adetailer {
		req.IncludeADetailer = lo.ToPtr(true)
	}
	if len(o.options) > 0 {
		req.CustomOptions = lo.MapValues(o.options, func(v string, _ string) any {
			return optionValue(v)
		})
	}
	return req, nil
}

// optionValue keeps numbers and booleans typed in the request body.
func optionValue(v string) any {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

func runGenerate(cmd *cobra.Command, a *app, description string, opts generateOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	req, err := opts.request(description)
	if err != nil {
		return err
	}
	client, err := a.client()
	if err != nil {
		return err
	}

	if opts.noWatch {
		wf, err := client.Generate(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, successMsg("Submitted %s", wf.ID))
		return nil
	}

	w, err := a.newWatcher()
	if err != nil {
		return err
	}
	defer w.close()

	if err := w.start(ctx, a.cfg.Stream.HandshakeTimeout); err != nil {
		return err
	}
	// Reset before submitting so the first events of this run are kept.
	w.sess.BeginRun()

	wf, err := client.Generate(ctx, req)
	if err != nil {
		return err
	}
	getLog().Info().Str("workflow_id", wf.ID).Msg("Workflow submitted")
	fmt.Fprintln(out, successMsg("Submitted %s", wf.ID))
	if err := w.sess.Send(map[string]string{"type": "subscribe", "workflow_id": wf.ID}); err != nil {
		getLog().Debug().Err(err).Msg("Subscribe not sent, receiving all workflows")
	}

	summary, err := w.follow(ctx, out, client, wf.ID, opts.plain || !isTerminal(out))
	if err != nil {
		fmt.Fprintln(out, pipelinesummary.Render(summary))
		return err
	}

	if summary.Status == pipelinesummary.StatusCompleted && opts.out != "" {
		if err := saveWorkflow(cmd, client, wf.ID, opts.out); err != nil {
			summary.ErrorMessage = err.Error()
			_ = finishLine(out, summary)
			return err
		}
		summary.OutputPath = opts.out
	}
	return finishLine(out, summary)
}

// saveWorkflow downloads the generated document to path, or to stdout for "-".
func saveWorkflow(cmd *cobra.Command, client *api.Client, id, path string) error {
	data, err := client.Download(cmd.Context(), id)
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	getLog().Info().Str("workflow_id", id).Str("path", path).Msg("Workflow saved")
	return nil
}
