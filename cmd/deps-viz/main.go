package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ritzau/deps-viz/pkg/config"
	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/web"
)

var (
	configPath string
	cfg        *config.Config

	rootCmd = &cobra.Command{
		Use:   "deps-viz",
		Short: "Lay out, settle and serve module dependency graphs",
		Long: `deps-viz turns a dependency document into a laid out graph view.
It serves the view pipeline, collision resolver and edge virtualization
over HTTP, or renders a single view to the console.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", config.DefaultFile, "Config file (TOML)")
	pf.String("document", "graph.json", "Dependency document to load")
	pf.String("verbosity", "", "Log level: trace, debug, info, warn or error")
	pf.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	pf.Bool("log-json", false, "Log JSON instead of the compact format")
	pf.String("level", "module", "Graph level: package, module or symbol")
	pf.Bool("collapse", true, "Collapse dependency cycles into groups")
	pf.String("engine", "grid", "Layout engine: grid or dot")
	pf.String("direction", "TB", "Layout direction: TB or LR")
	pf.String("strategy", "", "Collision preset: compact, balanced, spacious or live")
	pf.Float64("min-distance", 0, "Minimum distance between nodes, overrides the collision gap")

	rootCmd.AddCommand(serveCmd, renderCmd)
}

// loadConfig layers defaults, config file, environment and flags, then sets
// up logging before any subcommand runs
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadFile(cmd.Flags(), configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	level := logging.ParseVerbosity(cfg.Log.Verbosity, cfg.Log.Verbose)
	if cfg.Log.JSON {
		logging.SetJSONOutput(level)
	} else {
		logging.SetLevel(level)
	}
	logging.Debug("configuration loaded", "file", configPath, "document", cfg.Server.Document)
	return nil
}

// serverOptions converts the loaded config into web server defaults
func serverOptions(c *config.Config) (web.Options, error) {
	collisionCfg, err := c.Collision.Resolve()
	if err != nil {
		return web.Options{}, err
	}
	return web.Options{
		View:           c.View,
		Layout:         c.Layout,
		Collision:      collisionCfg,
		Virtualization: c.Virtualization,
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
