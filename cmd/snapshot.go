package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotOutput string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export the extracted database metadata as YAML",
	Long: `Connect to the database, run the same extraction pass as the audit, and
write the resulting snapshot (tables, columns, keys, views, functions,
triggers, samples) to a YAML file instead of rendering reports.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		snap, err := audit(context.Background(), cfg, logger)
		if err != nil {
			return err
		}

		out := snapshotOutput
		if out == "" {
			out = "pgxray_snapshot.yaml"
		}
		if err := snap.WriteYAML(out); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}

		fmt.Println(snap.Summary())
		fmt.Printf("\nSnapshot written to %s\n", out)
		return nil
	},
}

func init() {
	snapshotCmd.Flags().StringVarP(&snapshotOutput, "output", "o", "", "output path for snapshot YAML (default: pgxray_snapshot.yaml)")
	rootCmd.AddCommand(snapshotCmd)
}
