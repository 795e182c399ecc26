// Package collision keeps sibling boxes from overlapping and sizes containers to
// fit their children.
//
// The resolver works on a caller-owned map of parent-relative boxes. It repels
// overlapping siblings away from anchored nodes, clamps children inside their
// container's insets, and grows or shrinks containers bottom-up. Every resolve
// is bounded by Config.MaxCycles and is deterministic for a given node order.
package collision

import "fmt"

// Padding is the inset a container keeps around its children.
type Padding struct {
	Horizontal float64 `json:"horizontal" koanf:"horizontal"`
	Top        float64 `json:"top" koanf:"top"`
	Bottom     float64 `json:"bottom" koanf:"bottom"`
}

// Config tunes a resolve call. It is never mutated by the resolver.
type Config struct {
	OverlapGap              float64 `json:"overlapGap" koanf:"overlapgap"`
	MaxCycles               int     `json:"maxCycles" koanf:"maxcycles"`
	MaxDisplacementPerCycle float64 `json:"maxDisplacementPerCycle" koanf:"maxdisplacement"` // 0 = unbounded
	ModulePadding           Padding `json:"modulePadding" koanf:"modulepadding"`
	GroupPadding            Padding `json:"groupPadding" koanf:"grouppadding"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		OverlapGap:              24,
		MaxCycles:               40,
		MaxDisplacementPerCycle: 0,
		ModulePadding:           Padding{Horizontal: 16, Top: 48, Bottom: 16},
		GroupPadding:            Padding{Horizontal: 24, Top: 56, Bottom: 24},
	}
}

// ConfigFromMinDistance derives a config from a single spacing scalar. The gap and
// the group padding follow the distance together.
func ConfigFromMinDistance(minDistance float64) Config {
	cfg := DefaultConfig()
	if minDistance <= 0 {
		return cfg
	}
	cfg.OverlapGap = minDistance
	cfg.GroupPadding.Horizontal = minDistance
	cfg.GroupPadding.Bottom = minDistance
	if cfg.GroupPadding.Top < minDistance {
		cfg.GroupPadding.Top = minDistance
	}
	return cfg
}

// Strategy names accepted by StrategyConfig.
const (
	StrategyCompact  = "compact"
	StrategyBalanced = "balanced"
	StrategySpacious = "spacious"
	StrategyLive     = "live"
)

// StrategyConfig returns the option set for a named rendering strategy.
func StrategyConfig(name string) (Config, error) {
	cfg := DefaultConfig()
	switch name {
	case StrategyBalanced, "":
		return cfg, nil
	case StrategyCompact:
		cfg.OverlapGap = 12
		cfg.ModulePadding = Padding{Horizontal: 8, Top: 40, Bottom: 8}
		cfg.GroupPadding = Padding{Horizontal: 12, Top: 48, Bottom: 12}
		return cfg, nil
	case StrategySpacious:
		cfg.OverlapGap = 48
		cfg.MaxCycles = 60
		cfg.GroupPadding = Padding{Horizontal: 40, Top: 64, Bottom: 40}
		return cfg, nil
	case StrategyLive:
		// Small per-cycle steps keep live drags from jumping.
		cfg.MaxCycles = 12
		cfg.MaxDisplacementPerCycle = 48
		return cfg, nil
	}
	return Config{}, fmt.Errorf("unknown collision strategy %q", name)
}
