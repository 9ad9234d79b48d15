package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/T-6891/pgXRay/internal/config"
	"github.com/T-6891/pgXRay/internal/db"
	"github.com/T-6891/pgXRay/internal/diagram"
	"github.com/T-6891/pgXRay/internal/extract"
	"github.com/T-6891/pgXRay/internal/logging"
	"github.com/T-6891/pgXRay/internal/report"
	"github.com/T-6891/pgXRay/internal/snapshot"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"

	connStr     string
	mdPath      string
	dotPath     string
	pngPath     string
	sampleLimit int
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var rootCmd = &cobra.Command{
	Use:   "pgxray",
	Short: "PostgreSQL audit and ER diagram generator",
	Long: `pgxray connects to a PostgreSQL database, walks its catalogs to collect
tables, columns, keys, views, functions, triggers, and per-table data
samples, and renders a Graphviz DOT/PNG entity-relationship diagram plus a
Markdown audit report.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx := context.Background()

		md := firstNonEmpty(mdPath, cfg.Output.Markdown)
		dot := firstNonEmpty(dotPath, cfg.Output.DOT)
		png := firstNonEmpty(pngPath, cfg.Output.PNG)

		snap, err := audit(ctx, cfg, logger)
		if err != nil {
			return err
		}

		gen := diagram.New(snap)
		if err := gen.WriteDOT(dot); err != nil {
			return err
		}
		logger.Info("DOT ER diagram generated", "path", dot)

		if err := gen.RenderPNG(dot, png); err != nil {
			logger.Warn("PNG rendering skipped", "error", err)
		} else {
			logger.Info("PNG ER diagram generated", "path", png)
		}

		if err := report.Write(snap, md, dot, png); err != nil {
			return err
		}
		logger.Info("Markdown report generated", "path", md)

		fmt.Println()
		fmt.Println(titleStyle.Render(fmt.Sprintf("Audit of %q complete", snap.DatabaseName)))
		fmt.Println(dimStyle.Render(snap.Summary()))
		fmt.Println(successStyle.Render("Report is available at " + md))
		return nil
	},
}

// setup loads the config, applies flag overrides, and initializes logging.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	if connStr != "" {
		resolved, err := config.ResolveValue(connStr)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving connection string: %w", err)
		}
		cfg.Database.Conn = resolved
	}
	if cfg.Database.Conn == "" {
		return nil, nil, errors.New("no connection string: pass --conn or set database.conn in the config")
	}
	if sampleLimit > 0 {
		cfg.Sampling.Limit = sampleLimit
	}

	level := firstNonEmpty(logLevel, cfg.Logging.Level)
	logger, err := logging.Setup(level, cfg.Logging.Directory)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logging: %w", err)
	}
	return cfg, logger, nil
}

// audit connects to the database and runs the full extraction pass. The
// connection is released on every path once established.
func audit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*snapshot.Snapshot, error) {
	conn, err := db.Connect(ctx, cfg.Database.Conn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.Close()

	logger.Info("extracting database metadata")
	s, err := extract.New(conn, logger, cfg.Sampling.Limit).Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("extracting metadata: %w", err)
	}
	return s, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func Execute() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.pgxray/pgxray.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&connStr, "conn", "", "database connection URI (required unless set in config)")
	rootCmd.PersistentFlags().IntVar(&sampleLimit, "sample-limit", 0, "max rows sampled per table (default 10)")

	rootCmd.Flags().StringVar(&mdPath, "md", "", "Markdown report path (default audit_report.md)")
	rootCmd.Flags().StringVar(&dotPath, "dot", "", "DOT file path (default er_diagram.dot)")
	rootCmd.Flags().StringVar(&pngPath, "png", "", "PNG file path (default er_diagram.png)")
}
