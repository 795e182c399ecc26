package watcher

import (
	"context"

	"github.com/ritzau/deps-viz/pkg/logging"
	"github.com/ritzau/deps-viz/pkg/model"
	"github.com/ritzau/deps-viz/pkg/view"
)

// ChangeAnalysis describes what changed and what needs to be redone
type ChangeAnalysis struct {
	NeedReload      bool // The document must be read again
	NeedReconfigure bool // The config file changed
	ChangedFiles    []string
}

// AnalyzeChanges determines what a debounced change requires
func AnalyzeChanges(event ChangeEvent) *ChangeAnalysis {
	analysis := &ChangeAnalysis{
		ChangedFiles: event.Paths,
	}

	switch event.Type {
	case ChangeTypeDocument:
		analysis.NeedReload = true
	case ChangeTypeConfig:
		// Settings feed the view and layout, so the document is rebuilt too
		analysis.NeedReconfigure = true
		analysis.NeedReload = true
	}

	return analysis
}

// Reload is a successfully re-read document
type Reload struct {
	Path     string
	Revision string
	Document *model.Document
}

// Reloader re-reads a document whenever a debounced change asks for it.
// Unchanged revisions are not reported.
type Reloader struct {
	path       string
	revision   string
	onReload   func(Reload)
	onError    func(error)
	onReconfig func()
}

// NewReloader creates a reloader for the document at path. revision is the
// revision already loaded, empty if none.
func NewReloader(path, revision string, onReload func(Reload), onError func(error)) *Reloader {
	return &Reloader{path: path, revision: revision, onReload: onReload, onError: onError}
}

// OnReconfigure registers fn to run before the reload that follows a config change
func (r *Reloader) OnReconfigure(fn func()) {
	r.onReconfig = fn
}

// Run consumes events until the channel closes or ctx is cancelled
func (r *Reloader) Run(ctx context.Context, events <-chan ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			r.handle(event)
		}
	}
}

func (r *Reloader) handle(event ChangeEvent) {
	analysis := AnalyzeChanges(event)
	logging.Debug("file change", "type", event.Type, "files", len(analysis.ChangedFiles))

	if analysis.NeedReconfigure && r.onReconfig != nil {
		r.onReconfig()
	}
	if !analysis.NeedReload {
		return
	}

	doc, err := model.LoadDocument(r.path)
	if err != nil {
		logging.Warn("failed to reload document", "path", r.path, "error", err)
		if r.onError != nil {
			r.onError(err)
		}
		return
	}

	revision := view.DocumentRevision(doc)
	if revision == r.revision && !analysis.NeedReconfigure {
		logging.Debug("document unchanged", "revision", revision)
		return
	}
	r.revision = revision

	logging.Info("document reloaded", "path", r.path, "revision", revision, "modules", doc.ModuleCount())
	if r.onReload != nil {
		r.onReload(Reload{Path: r.path, Revision: revision, Document: doc})
	}
}
