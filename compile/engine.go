// Package compile drives the external typesetting compiler with bounded
// retries and log-based automatic repair of the assembled document.
package compile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"bookmill/common"
)

const (
	// MaxAttempts is the default retry budget per build.
	MaxAttempts = 3
	// PassesPerAttempt - second pass resolves cross-references and the TOC.
	PassesPerAttempt = 2
	// DefaultLogTail bounds how much of the compiler log is kept around.
	DefaultLogTail = 16 * 1024
)

// ErrFatal is wrapped into the error returned when the retry budget is
// exhausted without an output artifact.
var ErrFatal = errors.New("compilation failed fatally")

// Job is a per-project exclusive compilation workspace, passed by value
// through the pipeline. WorkDir may be assumed private to this build.
type Job struct {
	ProjectID string
	WorkDir   string
	InputFile string // document source, relative to WorkDir
}

// DocPath is the absolute path of the document source.
func (j Job) DocPath() string {
	return filepath.Join(j.WorkDir, j.InputFile)
}

// ArtifactPath is where a successful pass leaves the typeset output.
func (j Job) ArtifactPath() string {
	base := j.InputFile[:len(j.InputFile)-len(filepath.Ext(j.InputFile))]
	return filepath.Join(j.WorkDir, base+".pdf")
}

// LogPath is where the compiler writes its log.
func (j Job) LogPath() string {
	base := j.InputFile[:len(j.InputFile)-len(filepath.Ext(j.InputFile))]
	return filepath.Join(j.WorkDir, base+".log")
}

// Runner invokes the external compiler for a single pass inside the job's
// working directory. A non-nil error only signals invocation-level failure;
// whether the pass produced an artifact is observed on disk.
type Runner interface {
	Run(ctx context.Context, job Job, pass int) error
}

// PageCounter extracts a page count from the produced artifact. Best effort -
// any error means the count is simply unknown.
type PageCounter interface {
	Count(ctx context.Context, artifact string) (int, error)
}

// Result describes a successful compilation.
type Result struct {
	ArtifactPath string
	Outcome      common.CompileOutcome
	Attempts     int
	FixesApplied int
	Pages        *int // nil when extraction was not possible
	LogTail      string
}

type Engine struct {
	runner      Runner
	pages       PageCounter // may be nil
	maxAttempts int
	logTail     int
	log         *zap.Logger
}

func NewEngine(runner Runner, pages PageCounter, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		runner:      runner,
		pages:       pages,
		maxAttempts: MaxAttempts,
		logTail:     DefaultLogTail,
		log:         log.Named("compile"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type Option func(*Engine)

func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func WithLogTailBytes(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.logTail = n
		}
	}
}

// Compile runs the retry state machine until the job either produces an
// artifact or exhausts the attempt budget. Transient pass failures are not
// surfaced individually - the caller sees success or a single fatal error
// carrying the last log tail.
func (e *Engine) Compile(ctx context.Context, job Job) (*Result, error) {
	var (
		attempt  int
		fixCount int
		lastLog  string
	)

	for {
		attempt++
		e.log.Debug("Compilation attempt starting",
			zap.String("project", job.ProjectID), zap.Int("attempt", attempt))

		lastLog = e.runPasses(ctx, job)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch outcome := e.classify(job, attempt); outcome {
		case common.CompileOutcomeSuccess:
			res := &Result{
				ArtifactPath: job.ArtifactPath(),
				Outcome:      outcome,
				Attempts:     attempt,
				FixesApplied: fixCount,
				LogTail:      lastLog,
			}
			if e.pages != nil {
				if n, err := e.pages.Count(ctx, res.ArtifactPath); err == nil && n > 0 {
					res.Pages = &n
				} else if err != nil {
					e.log.Debug("Page count extraction failed",
						zap.String("project", job.ProjectID), zap.Error(err))
				}
			}
			e.log.Info("Compilation succeeded",
				zap.String("project", job.ProjectID), zap.Int("attempts", attempt), zap.Int("fixes", fixCount))
			return res, nil

		case common.CompileOutcomeFatal:
			e.log.Error("Compilation failed, attempt budget exhausted",
				zap.String("project", job.ProjectID), zap.Int("attempts", attempt))
			return nil, fmt.Errorf("%w after %d attempts, last log tail:\n%s", ErrFatal, attempt, lastLog)

		case common.CompileOutcomeRecoverable:
			if changed, name := e.tryFix(job, lastLog); changed {
				fixCount++
				e.log.Info("Applied automatic fix",
					zap.String("project", job.ProjectID), zap.String("fix", name), zap.Int("attempt", attempt))
			} else {
				// No recognized signature. Proceeding to the next attempt
				// unchanged is intentional - a straight retry is the last
				// resort and aborting early would change observable retry
				// behavior.
				e.log.Debug("No fix signature matched, retrying unchanged",
					zap.String("project", job.ProjectID), zap.Int("attempt", attempt))
			}
		}
	}
}

// classify maps the on-disk state after an attempt to its outcome. An
// artifact wins regardless of warnings; without one the attempt budget
// decides whether another round is allowed.
func (e *Engine) classify(job Job, attempt int) common.CompileOutcome {
	if artifactExists(job) {
		return common.CompileOutcomeSuccess
	}
	if attempt >= e.maxAttempts {
		return common.CompileOutcomeFatal
	}
	return common.CompileOutcomeRecoverable
}

// runPasses performs up to PassesPerAttempt compiler invocations and returns
// the captured log tail. The first pass writes the artifact, the second
// resolves cross-references; once an artifact exists a failing second pass is
// irrelevant.
func (e *Engine) runPasses(ctx context.Context, job Job) string {
	for pass := 1; pass <= PassesPerAttempt; pass++ {
		if ctx.Err() != nil {
			break
		}
		if err := e.runner.Run(ctx, job, pass); err != nil {
			e.log.Debug("Compiler pass failed",
				zap.String("project", job.ProjectID), zap.Int("pass", pass), zap.Error(err))
			if !artifactExists(job) {
				// nothing to resolve references against
				break
			}
		}
	}
	return e.readLogTail(job)
}

// tryFix applies the first matching auto-fix to the document on disk.
func (e *Engine) tryFix(job Job, logTail string) (bool, string) {
	data, err := os.ReadFile(job.DocPath())
	if err != nil {
		e.log.Warn("Unable to read document for repair", zap.Error(err))
		return false, ""
	}
	fixed, name, ok := autoFix(string(data), logTail)
	if !ok {
		return false, ""
	}
	if err := os.WriteFile(job.DocPath(), []byte(fixed), 0644); err != nil {
		e.log.Warn("Unable to write repaired document", zap.Error(err))
		return false, ""
	}
	return true, name
}

func (e *Engine) readLogTail(job Job) string {
	data, err := os.ReadFile(job.LogPath())
	if err != nil {
		return ""
	}
	return tail(string(data), e.logTail)
}

func artifactExists(job Job) bool {
	fi, err := os.Stat(job.ArtifactPath())
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}
