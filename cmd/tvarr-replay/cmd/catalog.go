package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/tvarr-replay/internal/catalog"
	"github.com/jmylchreest/tvarr-replay/internal/config"
	"github.com/jmylchreest/tvarr-replay/internal/database"
	"github.com/jmylchreest/tvarr-replay/internal/observability"
	"github.com/jmylchreest/tvarr-replay/internal/repository"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and maintain the recording catalog",
	Long:  `Commands for listing catalog entries and reconciling them against disk.`,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries",
	RunE:  runCatalogList,
}

var catalogReconcileCmd = &cobra.Command{
	Use:   "reconcile <rootDir>",
	Short: "Scan rootDir for recordings and upsert catalog entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogReconcile,
}

var catalogPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove catalog entries whose recording directory no longer exists",
	RunE:  runCatalogPrune,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogReconcileCmd)
	catalogCmd.AddCommand(catalogPruneCmd)
}

func newCatalogService(cmd *cobra.Command) (*catalog.Service, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := observability.LoggerFromContext(cmd.Context())

	db, err := database.New(cfg.Catalog, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := runMigrations(db.DB, logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	repo := repository.NewCatalogRepository(db.DB)
	return catalog.NewService(repo).WithLogger(logger), nil
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	svc, err := newCatalogService(cmd)
	if err != nil {
		return err
	}

	entries, err := svc.List(cmd.Context(), repository.CatalogFilter{})
	if err != nil {
		return fmt.Errorf("listing catalog: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDIR\tTICKS\tDURATION(s)\tCODEC\tSIZE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.1f\t%s\t%d\n",
			e.GetID(), e.Dir, e.TotalTicks, e.TotalDuration/1000, e.Codec, e.SizeBytes)
	}
	return w.Flush()
}

func runCatalogReconcile(cmd *cobra.Command, args []string) error {
	rootDir := args[0]
	svc, err := newCatalogService(cmd)
	if err != nil {
		return err
	}

	scanned, err := svc.Reconcile(cmd.Context(), rootDir)
	if err != nil {
		return fmt.Errorf("reconciling catalog: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "scanned %d recordings under %s\n", scanned, rootDir)
	return nil
}

func runCatalogPrune(cmd *cobra.Command, args []string) error {
	svc, err := newCatalogService(cmd)
	if err != nil {
		return err
	}

	pruned, err := svc.PruneStale(cmd.Context())
	if err != nil {
		return fmt.Errorf("pruning catalog: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d stale entries\n", pruned)
	return nil
}
