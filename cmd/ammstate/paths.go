package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammstate/internal/paths"
)

func newPathsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Load a route file and print the paths starting at each pool",
		RunE:  runPaths,
	}
	cmd.Flags().String("routes", "", "route file (YAML)")
	return cmd
}

func runPaths(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Routes == "" {
		return fmt.Errorf("routes file is required")
	}
	m, err := loadPaths(cfg.Routes, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, chainID := range m.ChainIDs() {
		reg, ok := m.PathRegistry(chainID)
		if !ok {
			continue
		}
		for _, pool := range reg.Pools() {
			entry, ok := reg.PathsForPool(pool)
			if !ok {
				continue
			}
			fmt.Fprintf(out, "chain %d pool %s: %d paths, %d target chains\n", chainID, pool.Hex(), len(entry.Source.Paths), len(entry.Targets))
			for _, path := range entry.Source.Paths {
				fmt.Fprintf(out, "  %s\n", paths.FormatPathSummary(path))
			}
		}
	}
	return nil
}

// loadPaths builds a multichain registry holding every chain of the route file.
func loadPaths(file string, logger *zap.Logger) (*paths.MultichainRegistry, error) {
	routes, err := paths.LoadRoutes(file)
	if err != nil {
		return nil, err
	}
	m := paths.NewMultichainRegistry(logger.Named("paths"))
	for _, r := range routes {
		m.NewPathRegistry(r.ChainID)
	}
	if err := m.SetPaths(routes); err != nil {
		return nil, err
	}
	logger.Info("routes loaded", zap.String("file", file), zap.Int("chains", len(routes)))
	return m, nil
}
