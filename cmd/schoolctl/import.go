package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"schoolhub-backend/internal/bulkimport"
	"schoolhub-backend/internal/config"
	"schoolhub-backend/internal/models"
)

var importOpts models.ImportOptions

func init() {
	importCmd.Flags().StringVar(&importOpts.ClassID, "class", "", "class the students are enrolled in")
	importCmd.Flags().StringVar(&importOpts.SchoolYear, "year", "", "school year, e.g. 2025-2026")
	importCmd.Flags().BoolVar(&importOpts.UpdateExisting, "update-existing", false, "overwrite students that already exist")
	rootCmd.AddCommand(importCmd)
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a class roster",
	Long: `Upload a .csv or .xlsx roster and follow the import row by row.

The file needs student_code, first_name and last_name columns; email,
grade_level and birth_date are optional. Ctrl+C cancels the import.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := config.LoadClient()
	if cfg.Token == "" {
		return fmt.Errorf("SCHOOLHUB_TOKEN is not set; run 'schoolctl token' to mint one")
	}

	out := cmd.OutOrStdout()
	client := bulkimport.NewClient(bulkimport.Config{
		BaseURL:      cfg.APIURL,
		Token:        cfg.Token,
		IdleTimeout:  cfg.IdleTimeout,
		MaxFileBytes: cfg.MaxFileBytes,
		OnUpdate: func(s bulkimport.Snapshot) {
			if s.Total > 0 {
				fmt.Fprintf(out, "\r%s", progressLine(s))
			}
		},
	})

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-interrupts:
				client.Cancel()
			case <-stop:
				return
			}
		}
	}()

	snap, err := client.Upload(context.Background(), args[0], importOpts)
	if err != nil {
		errorColor.Fprintf(out, "✗ %v\n", err)
		return err
	}

	printImportPanel(out, snap)
	if snap.Outcome != bulkimport.OutcomeFullSuccess && snap.Outcome != bulkimport.OutcomePartialSuccess {
		return fmt.Errorf("import did not succeed")
	}
	return nil
}
