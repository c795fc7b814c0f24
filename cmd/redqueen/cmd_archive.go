package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"redqueen/internal/archive"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <attack_archive.json>",
	Short: "Inspect a saved attack archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := archive.NewMAPElites(0)
		if err := a.Load(args[0]); err != nil {
			return err
		}

		stats := a.GetStats()
		fmt.Printf("genomes: %d across %d niches (%d evaluated, %.1f%% accepted)\n",
			stats.TotalGenomes, stats.TotalNiches, stats.TotalEvaluated, stats.AcceptanceRate*100)
		fmt.Printf("avg fitness: %.2f  avg generality: %.2f\n", stats.AvgFitness, stats.AvgGenerality)

		types := make([]string, 0, len(stats.CoverageByType))
		for at := range stats.CoverageByType {
			types = append(types, at)
		}
		sort.Strings(types)
		for _, at := range types {
			if n := stats.CoverageByType[at]; n > 0 {
				fmt.Printf("  %-15s %d\n", at, n)
			}
		}

		for _, g := range a.GetAll() {
			fmt.Printf("[%s|%s] fitness=%.2f generality=%.2f gen=%d %s\n",
				g.AttackType, g.ErrorType, g.Fitness, g.Generality(), g.Generation, g.Hash())
		}
		return nil
	},
}
