// Package pipeline drives a project build through its stages: review and
// revision, assembly, compilation, versioning, and the companion format.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bookmill/assemble"
	"bookmill/book"
	"bookmill/compile"
	"bookmill/config"
	"bookmill/epub"
	"bookmill/review"
	"bookmill/style"
	"bookmill/vstore"
)

// ErrBuildInFlight is returned when a project build is triggered while an
// earlier one is still running. Two builds of one project must never share a
// working directory.
var ErrBuildInFlight = errors.New("a build for this project is already in flight")

// Build is the handle for one build run: the project it belongs to and the
// exclusive working directory scoped to it. Passed by value through the
// stages, never read from ambient state.
type Build struct {
	ProjectID string
	WorkDir   string
}

// Pipeline owns the stage wiring and the per-project single-flight guard.
// Oracle may be nil, which disables the review stage entirely.
type Pipeline struct {
	cfg    *config.Config
	store  *vstore.Store
	oracle review.Oracle
	rpt    *config.Report
	log    *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
	jobs     chan func()
}

const workerCount = 2

func New(cfg *config.Config, store *vstore.Store, oracle review.Oracle, rpt *config.Report, log *zap.Logger) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		store:    store,
		oracle:   oracle,
		rpt:      rpt,
		log:      log,
		inFlight: make(map[string]struct{}),
		jobs:     make(chan func(), 16),
	}
	for i := 0; i < workerCount; i++ {
		go p.worker()
	}
	return p
}

func (p *Pipeline) worker() {
	for job := range p.jobs {
		job()
	}
}

func (p *Pipeline) enqueue(job func()) {
	p.wg.Add(1)
	p.jobs <- func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("Build job panicked",
					zap.Any("cause", r),
					zap.ByteString("stack", debug.Stack()))
			}
		}()
		job()
	}
}

// Trigger starts a background build and returns its handle immediately. The
// final outcome is read back from the store, not from the handle.
func (p *Pipeline) Trigger(ctx context.Context, meta book.Meta, frags []book.Fragment, note string) (Build, error) {
	p.mu.Lock()
	if _, busy := p.inFlight[meta.ProjectID]; busy {
		p.mu.Unlock()
		return Build{}, fmt.Errorf("project %s: %w", meta.ProjectID, ErrBuildInFlight)
	}
	p.inFlight[meta.ProjectID] = struct{}{}
	p.mu.Unlock()

	workRoot := p.cfg.Compile.WorkRoot
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	workDir := filepath.Join(workRoot, uuid.NewString())
	if err := os.MkdirAll(workDir, 0700); err != nil {
		p.release(meta.ProjectID)
		return Build{}, fmt.Errorf("unable to create build directory: %w", err)
	}
	b := Build{ProjectID: meta.ProjectID, WorkDir: workDir}

	// the build must survive the triggering request
	jobCtx := context.WithoutCancel(ctx)
	p.enqueue(func() {
		defer p.release(b.ProjectID)
		if err := p.run(jobCtx, b, meta, frags, note); err != nil {
			p.log.Error("Build failed",
				zap.String("project", b.ProjectID),
				zap.Error(err))
		}
	})
	return b, nil
}

// Run triggers a build and blocks until all queued work has drained, then
// reports the outcome from the persisted version ledger.
func (p *Pipeline) Run(ctx context.Context, meta book.Meta, frags []book.Fragment, note string) (*vstore.BookVersion, error) {
	before, err := p.store.Latest(ctx, meta.ProjectID)
	if err != nil {
		return nil, err
	}

	if _, err := p.Trigger(ctx, meta, frags, note); err != nil {
		return nil, err
	}
	p.Wait()

	after, err := p.store.Latest(ctx, meta.ProjectID)
	if err != nil {
		return nil, err
	}
	if after == nil || (before != nil && after.Version == before.Version) {
		return nil, errors.New("build failed, no new version was recorded")
	}
	return after, nil
}

// Wait blocks until every queued build and companion job has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Shutdown drains queued work and stops the workers. The pipeline must not
// be used afterwards.
func (p *Pipeline) Shutdown() {
	p.wg.Wait()
	close(p.jobs)
}

// Status reports the latest recorded version of a project.
func (p *Pipeline) Status(ctx context.Context, projectID string) (*vstore.BookVersion, error) {
	return p.store.Latest(ctx, projectID)
}

func (p *Pipeline) release(projectID string) {
	p.mu.Lock()
	delete(p.inFlight, projectID)
	p.mu.Unlock()
}

// run executes the sequential stages of one build.
func (p *Pipeline) run(ctx context.Context, b Build, meta book.Meta, frags []book.Fragment, note string) error {
	log := p.log.With(zap.String("project", b.ProjectID))

	if p.oracle != nil && p.cfg.Review.Enable {
		p.reviewStage(ctx, &meta, frags, log)
	}

	styleCfg, err := style.Resolve(meta.Preset, meta.Colors)
	if err != nil {
		return fmt.Errorf("unable to resolve style: %w", err)
	}
	doc, err := assemble.Build(meta, styleCfg, frags)
	if err != nil {
		return fmt.Errorf("unable to assemble document: %w", err)
	}

	job := compile.Job{ProjectID: b.ProjectID, WorkDir: b.WorkDir, InputFile: "book.tex"}
	if err := os.WriteFile(job.DocPath(), []byte(doc), 0600); err != nil {
		return fmt.Errorf("unable to write assembled document: %w", err)
	}

	result, err := p.compileStage(ctx, job, log)
	if err != nil {
		return err
	}

	version, err := p.publishStage(ctx, b, meta, doc, result, note)
	if err != nil {
		return err
	}
	log.Info("Build succeeded",
		zap.Int("version", version.Version),
		zap.Int("attempts", result.Attempts))

	// companion generation is independent; its failure never invalidates the
	// recorded version
	p.enqueue(func() {
		p.companionStage(ctx, meta, frags, version, log)
	})

	os.RemoveAll(b.WorkDir)
	return nil
}

// reviewStage mutates fragment contents in place. A broken oracle degrades to
// no edits, it never fails the build.
func (p *Pipeline) reviewStage(ctx context.Context, meta *book.Meta, frags []book.Fragment, log *zap.Logger) {
	engine := review.NewEngine(p.oracle, log)
	res, err := engine.Review(ctx, meta, frags)
	if err != nil {
		log.Warn("Review unavailable, continuing without revision", zap.Error(err))
		return
	}
	if !res.NeedsSurgery() {
		log.Info("No revision needed", zap.Int("score", res.Score))
		return
	}
	final, applied, err := engine.Revise(ctx, meta, frags, res)
	if err != nil {
		log.Warn("Revision incomplete, continuing with current text", zap.Error(err))
		return
	}
	log.Info("Revision pass finished",
		zap.Int("edits_applied", applied),
		zap.Int("initial_score", res.Score),
		zap.Int("final_score", final.Score))
}

func (p *Pipeline) compileStage(ctx context.Context, job compile.Job, log *zap.Logger) (*compile.Result, error) {
	runner := compile.NewExecRunner(p.cfg.Compile.Command, p.cfg.Compile.PassTimeout(), log)
	counter := &compile.ExecPageCounter{Command: p.cfg.Compile.PageCountCommand}
	engine := compile.NewEngine(runner, counter, log,
		compile.WithMaxAttempts(p.cfg.Compile.MaxAttempts),
		compile.WithLogTailBytes(p.cfg.Compile.LogTailBytes))

	result, err := engine.Compile(ctx, job)
	if err != nil {
		if p.rpt != nil {
			// the same project may fail more than once per debug session,
			// copies are versioned per capture
			if er := p.rpt.StoreCopy("compile-"+job.ProjectID+".log", job.LogPath()); er != nil {
				log.Warn("Unable to capture compiler log", zap.Error(er))
			}
			if er := p.rpt.StoreCopy("compile-"+job.ProjectID+".tex", job.DocPath()); er != nil {
				log.Warn("Unable to capture assembled document", zap.Error(er))
			}
		}
		return nil, fmt.Errorf("compilation of %s failed: %w", job.ProjectID, err)
	}
	return result, nil
}

func (p *Pipeline) publishStage(ctx context.Context, b Build, meta book.Meta, doc string, result *compile.Result, note string) (*vstore.BookVersion, error) {
	pdf, err := os.Open(result.ArtifactPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open build artifact: %w", err)
	}
	defer pdf.Close()

	version, err := p.store.Publish(ctx, vstore.PublishInput{
		ProjectID: b.ProjectID,
		Title:     meta.Title,
		PDF:       pdf,
		Source:    bytes.NewReader([]byte(doc)),
		Pages:     result.Pages,
		Note:      note,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to record version: %w", err)
	}
	return version, nil
}

func (p *Pipeline) companionStage(ctx context.Context, meta book.Meta, frags []book.Fragment, version *vstore.BookVersion, log *zap.Logger) {
	var buf bytes.Buffer
	if err := epub.Generate(meta, frags, &buf, log); err != nil {
		log.Warn("Companion generation failed", zap.Error(err))
		return
	}
	key, err := p.store.AttachCompanion(ctx, version.ProjectID, version.Version, meta.Title, &buf)
	if err != nil {
		log.Warn("Unable to attach companion", zap.Error(err))
		return
	}
	log.Info("Companion stored", zap.String("key", key))
}
