// Package driver runs the analysis pipeline: load every configured
// module, build the codebase, then analyze modules in parallel and fold
// the results together.
package driver

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"mantis/internal/analyzer"
	"mantis/internal/ast"
	"mantis/internal/codebase"
	"mantis/internal/collector"
	"mantis/internal/config"
	"mantis/internal/dataflow"
	"mantis/internal/diag"
	"mantis/internal/observ"
	"mantis/internal/source"
	"mantis/internal/ttype"
)

// Frontend supplies parsed modules. Parsing and name resolution live
// outside the analyzer core; the driver only orchestrates.
type Frontend interface {
	Load(ctx context.Context, path string, fs *source.FileSet, in *source.Interner) (*ast.Module, []collector.Comment, error)
}

// Options tune one pipeline run.
type Options struct {
	Config *config.Config
	// Jobs caps parallelism; 0 means GOMAXPROCS.
	Jobs int
	// Cache is the optional artifact cache; nil disables caching.
	Cache *DiskCache
	// Events receives per-file progress; closed when the run finishes.
	Events chan<- Event
}

// Stage names a pipeline phase for progress reporting.
type Stage string

const (
	StageLoad    Stage = "load"
	StageAnalyze Stage = "analyze"
)

// Status is the per-file progress state within a stage.
type Status string

const (
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusCached  Status = "cached"
	StatusError   Status = "error"
)

// Event is one progress update.
type Event struct {
	File   string
	Stage  Stage
	Status Status
}

func emit(ch chan<- Event, file string, stage Stage, status Status) {
	if ch != nil {
		ch <- Event{File: file, Stage: stage, Status: status}
	}
}

// FileResult is the analysis outcome of one module.
type FileResult struct {
	Path      string
	File      source.FileID
	Issues    []diag.Issue
	Artifacts *analyzer.Artifacts
	// FromCache marks results replayed from the artifact cache.
	FromCache bool
}

// Result is the whole-run outcome.
type Result struct {
	FileSet *source.FileSet
	Files   []FileResult
	// TaintFlows are the whole-program source-to-sink findings; empty
	// unless taint analysis is enabled.
	TaintFlows []dataflow.TaintFlow
	// Timings are the per-phase durations of this run.
	Timings observ.Report
}

// HasErrors reports whether any file produced an error-level issue.
func (r *Result) HasErrors() bool {
	for _, f := range r.Files {
		for _, issue := range f.Issues {
			if issue.Level == diag.LevelError {
				return true
			}
		}
	}
	return false
}

type loadedModule struct {
	path     string
	module   *ast.Module
	comments []collector.Comment
	hash     Digest
}

// Analyze runs the full pipeline over the configured paths.
func Analyze(ctx context.Context, fe Frontend, opts Options) (*Result, error) {
	if opts.Events != nil {
		defer close(opts.Events)
	}
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("driver: nil config")
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = cfg.Analysis.Threads
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	paths, err := cfg.SourceFiles()
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	fs := source.NewFileSetWithBase(cfg.Root)
	in := source.NewInterner()
	timer := observ.NewTimer()

	phase := timer.Begin("load")
	loaded, err := loadModules(ctx, fe, fs, in, paths, jobs, opts.Events)
	if err != nil {
		return nil, err
	}
	timer.End(phase, fmt.Sprintf("%d file(s)", len(loaded)))

	phase = timer.Begin("scan")
	meta := codebase.NewMetadata(in)
	scanner := codebase.NewScanner(meta)
	var scanIssues []diag.Issue
	for _, lm := range loaded {
		for _, serr := range scanner.Scan(lm.module) {
			scanIssues = append(scanIssues, diag.Error(diag.CodeInternalError,
				source.Span{File: lm.module.File}, serr.Error()))
		}
	}
	if err := meta.Populate(); err != nil {
		return nil, fmt.Errorf("driver: populate codebase: %w", err)
	}
	meta.Freeze()
	timer.End(phase, "")

	phase = timer.Begin("analyze")
	expander := ttype.NewExpander(expanderCacheSize)
	results, err := analyzeModules(ctx, meta, fs, expander, loaded, cfg, opts.Cache, jobs, opts.Events)
	if err != nil {
		return nil, err
	}
	timer.End(phase, "")
	if len(scanIssues) > 0 && len(results) > 0 {
		results[0].Issues = append(scanIssues, results[0].Issues...)
	}

	out := &Result{FileSet: fs, Files: results}
	if cfg.Analysis.Taint {
		phase = timer.Begin("taint")
		flows, taintIssues, err := checkTaint(results)
		if err != nil {
			return nil, err
		}
		out.TaintFlows = flows
		if len(results) > 0 {
			results[len(results)-1].Issues = append(results[len(results)-1].Issues, taintIssues...)
		}
		timer.End(phase, fmt.Sprintf("%d flow(s)", len(flows)))
	}
	out.Timings = timer.Report()
	return out, nil
}

// expanderCacheSize bounds the shared type-expansion memo.
const expanderCacheSize = 4096

func loadModules(ctx context.Context, fe Frontend, fs *source.FileSet, in *source.Interner, paths []string, jobs int, events chan<- Event) ([]loadedModule, error) {
	loaded := make([]loadedModule, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range paths {
		g.Go(func() error {
			emit(events, path, StageLoad, StatusWorking)
			module, comments, err := fe.Load(gctx, path, fs, in)
			if err != nil {
				emit(events, path, StageLoad, StatusError)
				return fmt.Errorf("load %s: %w", path, err)
			}
			loaded[i] = loadedModule{
				path:     path,
				module:   module,
				comments: comments,
				hash:     hashFile(fs, module.File),
			}
			emit(events, path, StageLoad, StatusDone)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return loaded, nil
}

func analyzeModules(ctx context.Context, meta *codebase.Metadata, fs *source.FileSet, expander *ttype.Expander, loaded []loadedModule, cfg *config.Config, cache *DiskCache, jobs int, events chan<- Event) ([]FileResult, error) {
	results := make([]FileResult, len(loaded))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, lm := range loaded {
		g.Go(func() error {
			emit(events, lm.path, StageAnalyze, StatusWorking)
			if cache != nil {
				if cached, ok := cache.Get(lm.hash); ok {
					results[i] = FileResult{
						Path:      lm.path,
						File:      lm.module.File,
						Issues:    rebindIssues(cached.Issues, lm.module.File),
						Artifacts: analyzer.NewArtifacts(),
						FromCache: true,
					}
					emit(events, lm.path, StageAnalyze, StatusCached)
					return nil
				}
			}

			pragmas := collector.ExtractPragmas(lm.comments)
			sink := collector.New("analysis", fs, lm.module.File, pragmas, cfg.Analysis.Debug)
			an := analyzer.New(meta, fs, sink, expander, analyzer.Options{
				LoopPasses: cfg.Analysis.LoopPasses,
				Debug:      cfg.Analysis.Debug,
				Taint:      cfg.Analysis.Taint,
			})
			artifacts, err := an.AnalyzeModule(gctx, lm.module)
			if err != nil {
				emit(events, lm.path, StageAnalyze, StatusError)
				return err
			}
			issues := sink.Finish()
			results[i] = FileResult{
				Path:      lm.path,
				File:      lm.module.File,
				Issues:    issues,
				Artifacts: artifacts,
			}
			if cache != nil {
				// Cache write failures are not analysis failures.
				_ = cache.Put(lm.hash, &CachedResult{Issues: issues})
			}
			emit(events, lm.path, StageAnalyze, StatusDone)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// checkTaint merges every function-body graph into one whole-program
// graph and walks it for source-to-sink flows.
func checkTaint(results []FileResult) ([]dataflow.TaintFlow, []diag.Issue, error) {
	whole := dataflow.NewGraph(dataflow.WholeProgram)
	for _, r := range results {
		if r.Artifacts == nil || r.Artifacts.Graph == nil {
			continue
		}
		if err := whole.AbsorbFunctionBody(r.Artifacts.Graph); err != nil {
			return nil, nil, err
		}
	}
	flows := whole.CheckTaint()

	issues := make([]diag.Issue, 0, len(flows))
	for _, flow := range flows {
		issues = append(issues, diag.Error(diag.CodeTaintedDataToSink, flow.Sink.ID.Span,
			flow.Source.Label+" flows into "+flow.Sink.Label+" carrying "+flow.Label.String()).
			WithAnnotation(flow.Source.ID.Span, "tainted value originates here"))
	}
	return flows, issues, nil
}
