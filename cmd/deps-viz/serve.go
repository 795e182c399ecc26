package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ritzau/deps-viz/pkg/config"
	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/model"
	"github.com/ritzau/deps-viz/pkg/view"
	"github.com/ritzau/deps-viz/pkg/watcher"
	"github.com/ritzau/deps-viz/pkg/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the graph pipeline and live layout updates over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "Port for the web server")
	serveCmd.Flags().Bool("watch", false, "Reload the document and config when they change on disk")
}

func runServe(cmd *cobra.Command, args []string) error {
	opts, err := serverOptions(cfg)
	if err != nil {
		return err
	}
	server := web.NewServer(opts)

	path := cfg.Server.Document
	doc, err := model.LoadDocument(path)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	server.SetDocument(doc, path)
	logging.Info("document loaded", "path", path, "modules", doc.ModuleCount())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Watch {
		if err := startWatching(ctx, cmd, server, path, view.DocumentRevision(doc)); err != nil {
			// Serving still works without live reload
			logging.Warn("file watching disabled", "error", err)
		}
	}

	return server.Start(ctx, cfg.Server.Port)
}

// startWatching wires file system changes into the server: raw events are
// debounced, then the reloader pushes new documents and settings
func startWatching(ctx context.Context, cmd *cobra.Command, server *web.Server, path, revision string) error {
	fw, err := watcher.NewFileWatcher()
	if err != nil {
		return err
	}
	if err := fw.Watch(path, watcher.ChangeTypeDocument); err != nil {
		fw.Stop()
		return err
	}
	if _, err := os.Stat(configPath); err == nil {
		if err := fw.Watch(configPath, watcher.ChangeTypeConfig); err != nil {
			logging.Warn("not watching config file", "path", configPath, "error", err)
		}
	}
	fw.Start(ctx)

	debouncer := watcher.NewDebouncer(fw.Events(), 300*time.Millisecond, 2*time.Second)
	debouncer.Start(ctx)

	reloader := watcher.NewReloader(path, revision,
		func(r watcher.Reload) { server.SetDocument(r.Document, r.Path) },
		server.PublishReloadError)
	reloader.OnReconfigure(func() {
		reloaded, err := config.LoadFile(cmd.Flags(), configPath)
		if err != nil {
			logging.Warn("keeping previous settings", "error", err)
			return
		}
		opts, err := serverOptions(reloaded)
		if err != nil {
			logging.Warn("keeping previous settings", "error", err)
			return
		}
		server.SetOptions(opts)
	})

	go func() {
		reloader.Run(ctx, debouncer.Output())
		fw.Stop()
	}()

	logging.Info("watching for changes", "document", path, "config", configPath)
	return nil
}
