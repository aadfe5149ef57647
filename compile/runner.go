package compile

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DefaultPassTimeout bounds a single compiler pass. Cancellation mid-pass is
// not supported, timeout-triggered failure is the only recourse.
const DefaultPassTimeout = 2 * time.Minute

// cap on captured process output so a pathological log cannot grow memory
// without bound
const maxCapturedOutput = 256 * 1024

// ExecRunner shells out to a LaTeX-style compiler. The compiler must support
// non-interactive operation and write output and log files into the working
// directory.
type ExecRunner struct {
	Command string
	Timeout time.Duration
	Log     *zap.Logger
}

var _ Runner = (*ExecRunner)(nil)

func NewExecRunner(command string, timeout time.Duration, log *zap.Logger) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultPassTimeout
	}
	return &ExecRunner{Command: command, Timeout: timeout, Log: log.Named("runner")}
}

func (r *ExecRunner) Run(ctx context.Context, job Job, pass int) error {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Command,
		"-interaction=nonstopmode",
		"-file-line-error",
		job.InputFile)
	cmd.Dir = job.WorkDir

	out := &cappedBuffer{limit: maxCapturedOutput}
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	err := cmd.Run()
	r.Log.Debug("Compiler pass finished",
		zap.String("project", job.ProjectID),
		zap.Int("pass", pass),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("truncated", out.truncated),
		zap.Error(err))
	if err != nil {
		return fmt.Errorf("compiler pass %d failed: %w", pass, err)
	}
	return nil
}

// cappedBuffer keeps at most limit bytes and silently drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	orig := len(p)
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return orig, nil
	}
	if len(p) > room {
		b.truncated = true
		p = p[:room]
	}
	if _, err := b.buf.Write(p); err != nil {
		return 0, err
	}
	return orig, nil
}

// ExecPageCounter extracts the page count with a pdfinfo-style external
// tool. Everything about it is best effort.
type ExecPageCounter struct {
	Command string
}

var _ PageCounter = (*ExecPageCounter)(nil)

var pagesRx = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)

func (p *ExecPageCounter) Count(ctx context.Context, artifact string) (int, error) {
	if p.Command == "" {
		return 0, fmt.Errorf("page count tool is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, p.Command, artifact).Output()
	if err != nil {
		return 0, fmt.Errorf("page count tool failed: %w", err)
	}
	m := pagesRx.FindSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("no page count in tool output")
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("malformed page count %q", m[1])
	}
	return n, nil
}
