// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/noldarim/wfbuilder/internal/api"
)

var errNoDescription = errors.New("a workflow description is required")

// promptDescription asks for the description, and the model when --model was
// not given. It only runs on an interactive terminal.
func promptDescription(opts *generateOptions) (string, error) {
	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return "", errNoDescription
	}

	var description string
	fields := []huh.Field{
		huh.NewText().
			Key("description").
			Title("Workflow Description").
			Placeholder("Describe the image workflow to build...").
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errNoDescription
				}
				return nil
			}).
			Value(&description),
	}
	if opts.model == "" {
		opts.model = string(api.ModelFlux)
		fields = append(fields, huh.NewSelect[string]().
			Key("model").
			Title("Model Type").
			Options(
				huh.NewOption("Flux", string(api.ModelFlux)),
				huh.NewOption("SDXL", string(api.ModelSDXL)),
				huh.NewOption("Pony", string(api.ModelPony)),
				huh.NewOption("SD 1.5", string(api.ModelSD15)),
			).
			Value(&opts.model))
	}

	form := huh.NewForm(huh.NewGroup(fields...)).WithTheme(huh.ThemeCharm())
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", errors.New("cancelled")
		}
		return "", err
	}
	return description, nil
}
