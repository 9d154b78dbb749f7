package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/sounddrop/internal/engine"
)

var (
	exportFormat string
	exportOut    string
	exportType   string
	exportTheme  string
	exportSince  string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a research export of hot and archived drops",
	Long:  "Export every hot drop plus the archived drops matching the filters, deduplicated, as JSON or CSV.",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "Output format: json or csv")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default stdout)")
	exportCmd.Flags().StringVar(&exportType, "type", "", "Only drops of this type (recorded, uploaded)")
	exportCmd.Flags().StringVar(&exportTheme, "theme", "", "Only drops with this theme title")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "Only drops created on or after this date (YYYY-MM-DD)")
	exportCmd.Flags().IntVarP(&exportLimit, "limit", "n", 0, "Maximum number of drops (0 for all)")
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "json" && exportFormat != "csv" {
		return fmt.Errorf("unknown format %q, want json or csv", exportFormat)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	st, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := engine.ExportOptions{Type: exportType, Theme: exportTheme, Limit: exportLimit}
	if exportSince != "" {
		day, err := st.engine.ParseDate(exportSince)
		if err != nil {
			return err
		}
		opts.Since = day.UnixMilli()
	}

	x, err := st.engine.Export(ctx, opts)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", exportOut, err)
		}
		defer f.Close()
		w = f
	}

	if exportFormat == "csv" {
		err = x.WriteCSV(w)
	} else {
		err = x.WriteJSON(w)
	}
	if err != nil {
		return fmt.Errorf("write export: %w", err)
	}

	if exportOut != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d drops to %s\n", x.Total, exportOut)
	}
	return nil
}
