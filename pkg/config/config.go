package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/ritzau/deps-viz/pkg/collision"
	"github.com/ritzau/deps-viz/pkg/layout"
	"github.com/ritzau/deps-viz/pkg/settle"
	"github.com/ritzau/deps-viz/pkg/view"
	"github.com/ritzau/deps-viz/pkg/virtualize"
)

// DefaultFile is the optional config file read from the working directory
const DefaultFile = "deps-viz.toml"

// EnvPrefix prefixes every environment override, e.g. DEPS_VIZ_SERVER_PORT=9090
const EnvPrefix = "DEPS_VIZ_"

// Config holds all configuration for the application
type Config struct {
	Server         ServerConfig      `koanf:"server"`
	Log            LogConfig         `koanf:"log"`
	Collision      CollisionConfig   `koanf:"collision"`
	Virtualization virtualize.Config `koanf:"virtualization"`
	View           view.Options      `koanf:"view"`
	Settle         settle.Config     `koanf:"settle"`
	Layout         layout.Config     `koanf:"layout"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Port     int    `koanf:"port"`
	Document string `koanf:"document"` // Graph document served and watched
	Watch    bool   `koanf:"watch"`
}

// LogConfig selects the log level, either by name or by -v count
type LogConfig struct {
	Verbosity string `koanf:"verbosity"`
	Verbose   int    `koanf:"verbose"`
	JSON      bool   `koanf:"json"`
}

// CollisionConfig is the collision section. A strategy preset wins over
// minDistance, which wins over the explicit values.
type CollisionConfig struct {
	Strategy        string            `koanf:"strategy"`
	MinDistance     float64           `koanf:"mindistance"`
	OverlapGap      float64           `koanf:"overlapgap"`
	MaxCycles       int               `koanf:"maxcycles"`
	MaxDisplacement float64           `koanf:"maxdisplacement"`
	ModulePadding   collision.Padding `koanf:"modulepadding"`
	GroupPadding    collision.Padding `koanf:"grouppadding"`
}

// Resolve returns the resolver settings the section describes
func (c CollisionConfig) Resolve() (collision.Config, error) {
	if c.Strategy != "" {
		return collision.StrategyConfig(c.Strategy)
	}
	if c.MinDistance > 0 {
		return collision.ConfigFromMinDistance(c.MinDistance), nil
	}
	return collision.Config{
		OverlapGap:              c.OverlapGap,
		MaxCycles:               c.MaxCycles,
		MaxDisplacementPerCycle: c.MaxDisplacement,
		ModulePadding:           c.ModulePadding,
		GroupPadding:            c.GroupPadding,
	}, nil
}

// flagKeys maps command line flag names onto config keys
var flagKeys = map[string]string{
	"port":         "server.port",
	"document":     "server.document",
	"watch":        "server.watch",
	"verbosity":    "log.verbosity",
	"verbose":      "log.verbose",
	"log-json":     "log.json",
	"strategy":     "collision.strategy",
	"min-distance": "collision.mindistance",
	"engine":       "layout.engine",
	"direction":    "layout.direction",
	"level":        "view.level",
	"collapse":     "view.collapsesccs",
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return LoadFile(f, DefaultFile)
}

// LoadFile is Load with an explicit config file path
func LoadFile(f *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional)
	// A missing file is fine, a broken one is not
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// 3. Environment Variables
	// Nested keys use underscores, e.g. DEPS_VIZ_COLLISION_OVERLAPGAP=32
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.ProviderWithFlag(f, ".", k, func(fl *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[fl.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(f, fl)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if _, err := view.ParseLevel(string(cfg.View.Level)); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := cfg.Collision.Resolve(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := layout.NewEngine(cfg.Layout.Engine); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// defaults mirrors the package defaults as a nested map
func defaults() map[string]interface{} {
	col := collision.DefaultConfig()
	vz := virtualize.DefaultConfig()
	vw := view.DefaultOptions()
	st := settle.DefaultConfig()
	ly := layout.DefaultConfig()

	edgeTypes := make([]interface{}, len(vw.EnabledEdgeTypes))
	for i, t := range vw.EnabledEdgeTypes {
		edgeTypes[i] = string(t)
	}
	padding := func(p collision.Padding) map[string]interface{} {
		return map[string]interface{}{"horizontal": p.Horizontal, "top": p.Top, "bottom": p.Bottom}
	}

	return map[string]interface{}{
		"server": map[string]interface{}{
			"port":     8080,
			"document": "graph.json",
			"watch":    false,
		},
		"log": map[string]interface{}{
			"verbosity": "",
			"verbose":   0,
			"json":      false,
		},
		"collision": map[string]interface{}{
			"strategy":        "",
			"mindistance":     0.0,
			"overlapgap":      col.OverlapGap,
			"maxcycles":       col.MaxCycles,
			"maxdisplacement": col.MaxDisplacementPerCycle,
			"modulepadding":   padding(col.ModulePadding),
			"grouppadding":    padding(col.GroupPadding),
		},
		"virtualization": map[string]interface{}{
			"padding":          vz.ViewportPadding,
			"lowzoom":          vz.LowZoomThreshold,
			"verylowzoom":      vz.VeryLowZoomThreshold,
			"verylowzoomscale": vz.VeryLowZoomScale,
			"basebudget":       vz.BaseBudget,
			"percorebudget":    vz.PerCoreBudget,
			"pergbbudget":      vz.PerGBBudget,
			"minbudget":        vz.MinBudget,
			"maxbudget":        vz.MaxBudget,
			"framegap":         vz.MinFrameGap,
			"worker":           vz.UseWorker,
		},
		"view": map[string]interface{}{
			"level":           string(vw.Level),
			"edgetypes":       edgeTypes,
			"includetests":    vw.IncludeTests,
			"cluster":         vw.ClusterByFolder,
			"collapsesccs":    vw.CollapseSCCs,
			"bundlethreshold": vw.BundleThreshold,
			"hubthreshold":    vw.HubThreshold,
		},
		"settle": map[string]interface{}{
			"debounce":            st.Debounce,
			"contractiondelay":    st.ContractionDelay,
			"largegraphthreshold": st.LargeGraphThreshold,
			"recheckevery":        st.RecheckEveryNFrames,
			"stiffness":           st.Stiffness,
			"animate":             st.Animate,
		},
		"layout": map[string]interface{}{
			"engine":           ly.Engine,
			"direction":        ly.Direction,
			"nodespacing":      ly.NodeSpacing,
			"rankspacing":      ly.RankSpacing,
			"twopassthreshold": ly.TwoPassThreshold,
			"settle":           ly.Settle,
		},
	}
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
