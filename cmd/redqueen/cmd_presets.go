package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"redqueen/internal/config"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the built-in run profiles",
	Run: func(cmd *cobra.Command, args []string) {
		nameStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
		dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

		for _, p := range config.Presets() {
			fmt.Println(nameStyle.Render(p.Name))
			fmt.Printf("  %d rounds x %d attacks | %s\n", p.Rounds, p.Attacks, p.CostHint)
			fmt.Println(dimStyle.Render(fmt.Sprintf("  attacker=%s defender=%s", p.Attacker, p.Defender)))
		}
	},
}
