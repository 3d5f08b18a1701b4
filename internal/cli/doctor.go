// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - Health checks for levchat.
//
// Command: doctor
//
// Checks:
//   1. Configuration is valid
//   2. Inference server is reachable
//   3. Chat database opens and can be listed
//   4. Model library holds at least one language model

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/levchat/internal/assets"
	"github.com/jeranaias/levchat/internal/config"
)

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	// CheckPass indicates the check passed successfully.
	CheckPass CheckStatus = iota
	// CheckWarn indicates the check passed with warnings.
	CheckWarn
	// CheckFail indicates the check failed.
	CheckFail
)

// String returns the string representation of the check status.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // Suggested fix
}

// Render returns a formatted string representation of the health check.
func (c *HealthCheck) Render() string {
	result := fmt.Sprintf("%s %s", RenderStatus(c.Status.String()), c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		result += "\n" + DimStyle.Render("    -> "+c.Fix)
	}
	return result
}

// =============================================================================
// HANDLE DOCTOR
// =============================================================================

func newDoctorCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the server, the chat database and the model library",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), app)
		},
	}
}

func runDoctor(ctx context.Context, app *App) error {
	checks := runAllChecks(ctx, app)

	passed, warned, failed := 0, 0, 0
	for _, check := range checks {
		switch check.Status {
		case CheckPass:
			passed++
		case CheckWarn:
			warned++
		case CheckFail:
			failed++
		}
	}

	fmt.Fprintln(app.Out, TitleStyle.Render("levchat doctor"))
	for _, check := range checks {
		fmt.Fprintln(app.Out, check.Render())
	}
	fmt.Fprintln(app.Out)

	summary := []string{fmt.Sprintf("%d passed", passed)}
	if warned > 0 {
		summary = append(summary, WarningStyle.Render(fmt.Sprintf("%d warning", warned)))
	}
	if failed > 0 {
		summary = append(summary, ErrorStyle.Render(fmt.Sprintf("%d failed", failed)))
	}
	fmt.Fprintln(app.Out, strings.Join(summary, ", "))

	if failed > 0 {
		return fmt.Errorf("%d health check(s) failed", failed)
	}
	return nil
}

// =============================================================================
// HEALTH CHECK FUNCTIONS
// =============================================================================

func runAllChecks(ctx context.Context, app *App) []*HealthCheck {
	return []*HealthCheck{
		checkConfig(app),
		checkServer(ctx, app),
		checkDatabase(ctx, app),
		checkModels(app),
	}
}

func checkConfig(app *App) *HealthCheck {
	check := &HealthCheck{Name: "config"}
	path, _ := config.ConfigPathTOML()
	switch {
	case app.ConfigErr != nil:
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Config file ignored: %v", app.ConfigErr)
		check.Fix = "Fix the file or recreate it with: levchat config init --force"
	case app.Config.Validate() != nil:
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Config invalid: %v", app.Config.Validate())
		check.Fix = "Edit " + path
	default:
		check.Status = CheckPass
		check.Message = "Config valid"
	}
	return check
}

func checkServer(ctx context.Context, app *App) *HealthCheck {
	check := &HealthCheck{Name: "server"}
	ctx, cancel := context.WithTimeout(ctx, app.Config.HandshakeTimeout())
	defer cancel()

	start := time.Now()
	if err := app.client().CheckRunning(ctx); err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Inference server not reachable at %s: %v", app.Config.Server.URL, err)
		check.Fix = "Start the inference process, or set server.url in the config"
		return check
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("Inference server reachable at %s (%s)", app.Config.Server.URL, formatDurationShort(time.Since(start)))
	return check
}

func checkDatabase(ctx context.Context, app *App) *HealthCheck {
	check := &HealthCheck{Name: "database"}
	store, err := app.openStore(ctx)
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Chat database unavailable: %v", err)
		check.Fix = "Check history.database_path and its directory permissions"
		return check
	}
	defer store.Close()

	chats, err := store.ListChats(ctx)
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Chat database unreadable: %v", err)
		return check
	}
	check.Status = CheckPass
	check.Message = fmt.Sprintf("Chat database %s (%d chats)", store.Path(), len(chats))
	return check
}

func checkModels(app *App) *HealthCheck {
	check := &HealthCheck{Name: "models"}
	lib, err := app.library()
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Model library unavailable: %v", err)
		return check
	}

	counts := make([]string, 0, len(assets.Kinds))
	languageModels := 0
	for _, k := range assets.Kinds {
		names, err := lib.List(k)
		if err != nil {
			check.Status = CheckFail
			check.Message = fmt.Sprintf("Cannot read %s: %v", lib.Dir(k), err)
			return check
		}
		if k == assets.KindLanguageModel {
			languageModels = len(names)
		}
		counts = append(counts, fmt.Sprintf("%d %ss", len(names), strings.ToLower(k.Label())))
	}

	check.Message = fmt.Sprintf("Model library %s (%s)", lib.Root, strings.Join(counts, ", "))
	if languageModels == 0 {
		check.Status = CheckWarn
		check.Fix = "Download one with: levchat models download <url> --kind languageModel"
		return check
	}
	check.Status = CheckPass
	return check
}
