package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smallnest/graphrag/config"
	"github.com/smallnest/graphrag/log"
	"github.com/smallnest/graphrag/rag"
	"github.com/smallnest/graphrag/rag/engine"
	"github.com/smallnest/graphrag/rag/loader"
	"github.com/spf13/cobra"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		dir      string
		schedule string
		once     bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest new and changed files of a directory on a schedule",
		Long: `Scans the input directory on a cron schedule ("@every 1m", "*/5 * * * *").
New files are ingested; a changed file replaces the document it produced
before. Pending documents left by an earlier run are resumed first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, rt *config.Runtime) error {
				if dir == "" {
					dir = rt.Config.Ingest.InputDir
				}
				if schedule == "" {
					schedule = rt.Config.Ingest.Schedule
				}
				w := newDirWatcher(rt.Engine, loader.NewDirLoader(dir, loader.WithRecursive(true)), rt.Logger)

				if _, err := rt.Engine.Resume(ctx, false); err != nil {
					return err
				}
				if once {
					_, err := w.scan(ctx)
					return err
				}
				return w.run(ctx, schedule)
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory to watch (default from config)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule of scans (default from config)")
	cmd.Flags().BoolVar(&once, "once", false, "scan a single time and exit")
	return cmd
}

// ingester is the part of the engine a dirWatcher needs
type ingester interface {
	Insert(ctx context.Context, docs ...rag.Document) ([]engine.InsertResult, error)
	DeleteDocument(ctx context.Context, id string) error
}

type fileState struct {
	modTime time.Time
	docID   string
}

type dirWatcher struct {
	engine ingester
	dir    *loader.DirLoader
	logger log.Logger

	mu    sync.Mutex
	files map[string]fileState
}

func newDirWatcher(e ingester, dir *loader.DirLoader, logger log.Logger) *dirWatcher {
	return &dirWatcher{engine: e, dir: dir, logger: log.OrDefault(logger), files: make(map[string]fileState)}
}

// run scans on every tick of schedule until ctx is done
func (w *dirWatcher) run(ctx context.Context, schedule string) error {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	c := cron.New()
	c.Schedule(sched, cron.FuncJob(func() {
		if _, err := w.scan(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("scan failed: %v", err)
		}
	}))
	c.Start()
	w.logger.Info("watching with schedule %q", schedule)

	if _, err := w.scan(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("scan failed: %v", err)
	}
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// scan ingests files that are new or modified since the previous scan.
// Scans never overlap.
func (w *dirWatcher) scan(ctx context.Context) ([]engine.InsertResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths, err := w.dir.Files()
	if err != nil {
		return nil, err
	}

	var all []engine.InsertResult
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		prev, seen := w.files[path]
		if seen && info.ModTime().Equal(prev.modTime) {
			continue
		}

		docs, err := loader.NewFileLoader(path).Load(ctx)
		if err != nil {
			w.logger.Warn("skipping %s: %v", path, err)
			continue
		}
		if len(docs) == 0 || strings.TrimSpace(docs[0].Content) == "" {
			w.files[path] = fileState{modTime: info.ModTime()}
			continue
		}
		doc := docs[0]
		doc.ID = rag.DocumentID(doc.Content)

		results, err := w.engine.Insert(ctx, doc)
		if err != nil {
			return all, err
		}
		all = append(all, results...)
		if len(results) == 1 && results[0].Outcome == engine.OutcomeError {
			w.logger.Warn("failed to ingest %s: %v", path, results[0].Err)
			continue
		}

		if seen && prev.docID != "" && prev.docID != doc.ID {
			if err := w.engine.DeleteDocument(ctx, prev.docID); err != nil && !rag.IsNotFound(err) {
				w.logger.Warn("failed to remove previous version of %s: %v", path, err)
			}
		}
		w.files[path] = fileState{modTime: info.ModTime(), docID: doc.ID}
		w.logger.Info("ingested %s as %s", path, doc.ID)
	}
	return all, nil
}
