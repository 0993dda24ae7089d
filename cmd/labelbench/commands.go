package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/labelbench/internal/config"
	"github.com/kalambet/labelbench/internal/dataset"
	"github.com/kalambet/labelbench/internal/session"
	"github.com/kalambet/labelbench/internal/storage"
	"github.com/kalambet/labelbench/internal/tui"
)

// openStore opens the configured database for commands that work on the
// data directly instead of going through the HTTP API.
func openStore() (*storage.Store, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Config{}, err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("opening storage: %w", err)
	}
	return store, cfg, nil
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <files...>",
	Short: "Import samples from JSON or CSV files",
	Long: `Import samples from JSON or CSV files.

JSON files must have a top-level "samples" array; CSV files need a header
row with id, prompt, and response columns (extra columns become metadata).
Samples whose id already exists are skipped.

Examples:
  labelbench import dataset.json
  labelbench import batch1.csv batch2.csv --preview`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		preview, _ := cmd.Flags().GetBool("preview")

		res, err := dataset.ParseFiles(cmd.Context(), args)
		if err != nil {
			return err
		}

		for _, verr := range res.Invalid {
			printWarning("skipping invalid record: %v", verr)
		}
		if len(res.Samples) == 0 {
			printError("no valid samples found")
			return fmt.Errorf("nothing to import")
		}

		if preview {
			n := len(res.Samples)
			if n > 5 {
				n = 5
			}
			fmt.Printf("Preview (%d of %d):\n", n, len(res.Samples))
			for _, sm := range res.Samples[:n] {
				prompt := sm.Prompt
				if len(prompt) > 60 {
					prompt = prompt[:60] + "..."
				}
				fmt.Printf("  %s  %s\n", colorize(colorCyan, sm.ID), prompt)
			}
		}

		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		inserted, err := store.InsertSamples(res.Samples)
		if err != nil {
			return err
		}

		printSuccess("Imported %d samples (%d duplicates skipped, %d invalid)",
			inserted, len(res.Samples)-inserted, len(res.Invalid))
		return nil
	},
}

func init() {
	importCmd.Flags().Bool("preview", false, "show the first few samples before importing")
}

// --- annotate ---

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Review samples in the interactive terminal UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		store, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		mode := session.ModeUnannotated
		if all {
			mode = session.ModeAll
		}
		ctrl := session.NewController(store, mode)

		return tui.Run(store, ctrl, cfg.Annotator.ID)
	},
}

func init() {
	annotateCmd.Flags().Bool("all", false, "walk every sample instead of unannotated only")
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show acceptance statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		showErrors, _ := cmd.Flags().GetBool("errors")
		showMetadata, _ := cmd.Flags().GetBool("metadata")

		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats()
		if err != nil {
			return err
		}

		printStatus("Annotated", "%d", stats.TotalAnnotated)
		printStatus("Accepted", "%d", stats.Accepted)
		printStatus("Rejected", "%d", stats.Rejected)
		printStatus("Acceptance rate", "%s", formatRate(stats.AcceptanceRate))

		if showErrors {
			counts, err := store.ErrorDistribution()
			if err != nil {
				return err
			}
			if len(counts) == 0 {
				fmt.Println("\nNo rejections recorded.")
			} else {
				fmt.Println("\nError distribution:")
				for _, c := range counts {
					fmt.Printf("  %-22s %d\n", storage.IssueLabels[c.Issue], c.Count)
				}
			}
		}

		if showMetadata {
			breakdown, err := store.MetadataBreakdown()
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(breakdown))
			for k := range breakdown {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("\nBy %s:\n", k)
				for _, g := range breakdown[k] {
					fmt.Printf("  %-22s %d samples, %s accepted\n", g.Value, g.Total, formatRate(g.AcceptanceRate))
				}
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().Bool("errors", false, "include the issue distribution across rejections")
	statsCmd.Flags().Bool("metadata", false, "include per-metadata-key acceptance breakdowns")
}

// --- summary ---

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show annotation progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		summary, err := store.Summary()
		if err != nil {
			return err
		}

		printStatus("Samples", "%d", summary.TotalSamples)
		printStatus("Draft", "%d", summary.DraftAnnotations)
		printStatus("Final", "%d", summary.FinalAnnotations)
		printStatus("Unannotated", "%d", summary.Unannotated)
		return nil
	},
}

// --- finalize ---

var finalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Promote every draft annotation to final",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("Finalized annotations cannot be edited. Use --confirm to proceed.")
			return nil
		}

		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.FinalizeAll()
		if err != nil {
			var incomplete *storage.IncompleteError
			if errors.As(err, &incomplete) {
				printError("Cannot finalize: %d samples still unannotated", incomplete.Missing)
				return err
			}
			return err
		}

		printSuccess("Finalized %d annotations", n)
		return nil
	},
}

func init() {
	finalizeCmd.Flags().Bool("confirm", false, "confirm finalization")
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export annotated samples",
	Long: `Export annotated samples.

By default writes the full annotated dataset as JSON. With --rejected,
writes only rejected samples as CSV with their metadata columns.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		rejected, _ := cmd.Flags().GetBool("rejected")

		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		pairs, err := store.AnnotatedSamples()
		if err != nil {
			return err
		}
		if len(pairs) == 0 {
			printWarning("No annotated samples to export.")
			return nil
		}

		writer := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}

		if rejected {
			err = dataset.ExportRejectedCSV(writer, pairs)
		} else {
			err = dataset.ExportAnnotationsJSON(writer, pairs)
		}
		if err != nil {
			return err
		}

		if output != "" {
			printSuccess("Exported %d annotated samples to %s", len(pairs), output)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("output", "", "output file path (default: stdout)")
	exportCmd.Flags().Bool("rejected", false, "export only rejected samples as CSV")
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every sample and annotation",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL samples and annotations. Use --confirm to proceed.")
			return nil
		}

		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := store.ClearAll()
		if err != nil {
			return err
		}

		printSuccess("Deleted %d samples and %d annotations", res.Samples, res.Annotations)
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("confirm", false, "confirm deletion")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			if strings.Contains(err.Error(), "unknown") {
				printError("unknown key %q (valid: %s)", key, strings.Join(config.ValidKeys(), ", "))
			}
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
