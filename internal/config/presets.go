package config

import "fmt"

// Preset is a named run profile trading cost against thoroughness.
type Preset struct {
	Name     string
	Rounds   int
	Attacks  int
	Attacker string
	Defender string
	// CostHint is a human-facing estimate, not used in computation.
	CostHint    string
	CostPerCall float64
}

// Presets returns the built-in run profiles in display order.
func Presets() []Preset {
	return []Preset{
		{
			Name:        "quick",
			Rounds:      5,
			Attacks:     3,
			Attacker:    "openai/gpt-4o-mini",
			Defender:    "openai/gpt-4o-mini",
			CostHint:    "~$0.05",
			CostPerCall: 0.002,
		},
		{
			Name:        "standard",
			Rounds:      10,
			Attacks:     5,
			Attacker:    "openai/gpt-4o-mini",
			Defender:    "openai/gpt-4o-mini",
			CostHint:    "~$0.15",
			CostPerCall: 0.002,
		},
		{
			Name:        "thorough",
			Rounds:      15,
			Attacks:     8,
			Attacker:    "openai/gpt-4o-mini",
			Defender:    "openai/gpt-4o-mini",
			CostHint:    "~$0.40",
			CostPerCall: 0.002,
		},
		{
			Name:        "premium",
			Rounds:      10,
			Attacks:     5,
			Attacker:    "openai/gpt-4o",
			Defender:    "openai/gpt-4o",
			CostHint:    "~$1.50",
			CostPerCall: 0.01,
		},
		{
			Name:        "max",
			Rounds:      20,
			Attacks:     10,
			Attacker:    "openai/gpt-4o",
			Defender:    "openai/gpt-4o",
			CostHint:    "~$5.00",
			CostPerCall: 0.01,
		},
	}
}

// ApplyPreset overlays a named preset onto the config.
func (c *Config) ApplyPreset(name string) error {
	for _, p := range Presets() {
		if p.Name != name {
			continue
		}
		c.Run.NRounds = p.Rounds
		c.Run.AttacksPerRound = p.Attacks
		c.Agents.AttackerModel = p.Attacker
		c.Agents.DefenderModel = p.Defender
		c.Agents.CostPerCall = p.CostPerCall
		return nil
	}
	return fmt.Errorf("unknown preset %q", name)
}
