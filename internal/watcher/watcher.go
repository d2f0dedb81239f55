// Package watcher polls the object store for bot package changes and
// dispatches scripts to the compiler and documents to the indexer.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/botrt/botrt/internal/config"
	"github.com/botrt/botrt/internal/kb"
	"github.com/botrt/botrt/internal/script"
	"github.com/botrt/botrt/internal/storage"
)

// DocumentIndexer receives knowledge-base documents found by the watcher.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, tenant, category, document, text string) error
}

// TextExtractor turns a raw document into indexable text.
type TextExtractor func(name string, data []byte) (string, error)

func kbExtract(name string, data []byte) (string, error) {
	return kb.ExtractText(name, data)
}

// Watcher polls tenant buckets on an interval and reacts to etag
// changes: new or changed scripts are recompiled, new or changed
// documents are reindexed, and entries that disappear are dropped from
// the sweep state.
type Watcher struct {
	store    storage.ObjectStore
	compiler *script.Compiler
	indexer  DocumentIndexer
	extract  TextExtractor
	botCfg   *config.BotConfigService
	workDir  string
	interval time.Duration
	tenants  []string
	logger   *slog.Logger

	// seen maps tenant -> object key -> etag from the last sweep.
	seen map[string]map[string]string
}

// New creates a watcher for the given tenants. indexer may be nil when
// no vector store is configured; documents are then ignored.
func New(store storage.ObjectStore, compiler *script.Compiler, indexer DocumentIndexer,
	botCfg *config.BotConfigService,
	cfg config.WatcherConfig, workDir string, tenants []string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		store:    store,
		compiler: compiler,
		indexer:  indexer,
		extract:  kbExtract,
		botCfg:   botCfg,
		workDir:  workDir,
		interval: cfg.TickInterval,
		tenants:  tenants,
		logger:   logger,
		seen:     make(map[string]map[string]string),
	}
}

// Run polls until ctx is cancelled. The first sweep happens immediately.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("content watcher started", "interval", w.interval, "tenants", len(w.tenants))
	w.sweepAll(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("content watcher stopped")
			return
		case <-ticker.C:
			w.sweepAll(ctx)
		}
	}
}

func (w *Watcher) sweepAll(ctx context.Context) {
	for _, tenant := range w.tenants {
		if err := w.Sweep(ctx, tenant); err != nil {
			w.logger.Error("sweep failed", "tenant", tenant, "error", err)
		}
	}
}

// Sweep runs one poll cycle for a tenant. Item failures are logged and
// skipped; the sweep state is replaced wholesale at the end, so a
// failed item is retried on the next cycle only if its etag changes
// again. Objects that disappear are only dropped from the state:
// compiled artifacts, registered schedules, and index entries are left
// in place until the object reappears or is recompiled.
func (w *Watcher) Sweep(ctx context.Context, tenant string) error {
	exists, err := w.store.BucketExists(ctx, tenant)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", tenant, err)
	}
	if !exists {
		return nil
	}

	objects, err := w.store.List(ctx, tenant, "", true)
	if err != nil {
		return fmt.Errorf("list bucket %s: %w", tenant, err)
	}

	prev := w.seen[tenant]
	current := make(map[string]string)
	for _, obj := range objects {
		kind := classify(tenant, obj.Key)
		if kind == kindIgnored {
			continue
		}
		current[obj.Key] = obj.ETag
		if prev[obj.Key] == obj.ETag {
			continue
		}
		if err := w.process(ctx, tenant, kind, obj.Key); err != nil {
			w.logger.Error("process failed", "tenant", tenant, "key", obj.Key, "error", err)
		}
	}

	for key := range prev {
		if _, ok := current[key]; !ok {
			w.logger.Info("object removed, state pruned", "tenant", tenant, "key", key)
		}
	}

	w.seen[tenant] = current
	return nil
}

type objectKind int

const (
	kindIgnored objectKind = iota
	kindScript
	kindDocument
	kindBotConfig
)

// classify buckets an object into the watcher's interest groups based
// on the package directory it lives in.
func classify(tenant, key string) objectKind {
	switch {
	case strings.HasPrefix(key, tenant+".gbdialog/"):
		if strings.HasSuffix(key, ".bas") {
			return kindScript
		}
	case strings.HasPrefix(key, tenant+".gbkb/"):
		switch strings.ToLower(path.Ext(key)) {
		case ".pdf", ".txt", ".md", ".docx":
			return kindDocument
		}
	case key == tenant+".gbot/config.csv":
		return kindBotConfig
	}
	return kindIgnored
}

func (w *Watcher) process(ctx context.Context, tenant string, kind objectKind, key string) error {
	data, err := w.store.Read(ctx, tenant, key)
	if err != nil {
		return err
	}
	switch kind {
	case kindScript:
		name := strings.TrimSuffix(path.Base(key), ".bas")
		_, err := w.compiler.CompileSource(ctx, tenant, name, data, w.scriptsDir(tenant))
		if err != nil {
			return fmt.Errorf("compile %s: %w", name, err)
		}
		w.logger.Info("compiled script", "tenant", tenant, "script", name)
		return nil
	case kindDocument:
		if w.indexer == nil {
			return nil
		}
		text, err := w.extract(key, data)
		if err != nil {
			return fmt.Errorf("extract %s: %w", key, err)
		}
		category := documentCategory(tenant, key)
		if err := w.indexer.IndexDocument(ctx, tenant, category, path.Base(key), text); err != nil {
			return err
		}
		return nil
	case kindBotConfig:
		n, err := w.botCfg.SyncCSV(ctx, tenant, data)
		if err != nil {
			return err
		}
		w.logger.Info("synced bot config", "tenant", tenant, "keys", n)
		return nil
	}
	return nil
}

// documentCategory is the first folder under the kb package, or
// "default" for documents at its root.
func documentCategory(tenant, key string) string {
	rest := strings.TrimPrefix(key, tenant+".gbkb/")
	if i := strings.Index(rest, "/"); i > 0 {
		return rest[:i]
	}
	return "default"
}

// scriptsDir is where compiled artifacts for a tenant land on disk.
func (w *Watcher) scriptsDir(tenant string) string {
	return filepath.Join(w.workDir, tenant+".gbai", tenant+".gbdialog")
}
