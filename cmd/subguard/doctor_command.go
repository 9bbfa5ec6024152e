package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"subguard/internal/deps"
	"subguard/internal/language"
	"subguard/internal/ocr"
	"subguard/internal/status"
)

type doctorReport struct {
	Dependencies []deps.Status         `json:"dependencies"`
	OCR          bool                  `json:"ocr"`
	OCRLanguages []string              `json:"ocr_languages"`
	Database     status.DatabaseHealth `json:"database"`
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and the status database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := doctorReport{
				Dependencies: deps.CheckBinaries(cmd.Context(), deps.ForConfig(cfg)),
				OCR:          ocr.Available(),
				OCRLanguages: cfg.OCR.Languages,
			}
			var healthErr error
			err = ctx.withStore(func(store *status.Store) error {
				report.Database, healthErr = store.CheckHealth(cmd.Context())
				return nil
			})
			if err != nil {
				healthErr = err
			}
			if healthErr != nil && report.Database.Error == "" {
				report.Database.Error = healthErr.Error()
			}

			if jsonOutput {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				renderDoctor(cmd, report)
			}

			missing := deps.MissingRequired(report.Dependencies)
			switch {
			case len(missing) > 0:
				return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
			case !report.Database.Healthy():
				return fmt.Errorf("status database unhealthy")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	return cmd
}

func renderDoctor(cmd *cobra.Command, report doctorReport) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintln(out, sectionHeader("Tools", colorize))
	for _, dep := range report.Dependencies {
		kind, detail := checkOK, dep.Path
		if dep.Version != "" {
			detail = dep.Version
		}
		if !dep.Available {
			kind, detail = checkError, dep.Detail
			if dep.Optional {
				kind = checkWarn
			}
		}
		fmt.Fprintln(out, checkLine(dep.Name, kind, detail, colorize))
	}
	if report.OCR {
		names := make([]string, 0, len(report.OCRLanguages))
		for _, lang := range report.OCRLanguages {
			names = append(names, language.DisplayName(lang))
		}
		fmt.Fprintln(out, checkLine("tesseract", checkOK, "linked; "+strings.Join(names, ", "), colorize))
	} else {
		fmt.Fprintln(out, checkLine("tesseract", checkInfo, "built without OCR support", colorize))
	}

	fmt.Fprintln(out, sectionHeader("Database", colorize))
	db := report.Database
	switch {
	case db.Healthy():
		detail := fmt.Sprintf("schema v%d, %d approved, %d rejected", db.SchemaVersion, db.Stats.Approved, db.Stats.Rejected)
		fmt.Fprintln(out, checkLine("status", checkOK, detail, colorize))
	case db.Error != "":
		fmt.Fprintln(out, checkLine("status", checkError, db.Error, colorize))
	case len(db.MissingTables) > 0:
		fmt.Fprintln(out, checkLine("status", checkError, "missing tables: "+strings.Join(db.MissingTables, ", "), colorize))
	default:
		fmt.Fprintln(out, checkLine("status", checkWarn, db.DBPath, colorize))
	}
}
