// Package executor runs generated code in a subprocess with a timeout.
// It is gated by configuration and supports a dry-run mode that reports
// success without executing anything.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeanpaul/autopilot/internal/textutil"
)

// Output streams are truncated to this many characters in the result.
const outputCap = 5000

var extensions = map[string]string{
	"python": ".py",
	"node":   ".js",
	"bash":   ".sh",
	"sh":     ".sh",
}

// Result is the outcome of one execution attempt.
type Result struct {
	Success    bool   `json:"success"`
	Output     string `json:"output"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"return_code"`
	DryRun     bool   `json:"dry_run"`
}

type Executor struct {
	enabled bool
	timeout time.Duration
	log     *logrus.Entry

	mu         sync.Mutex
	history    []Result
	successful int
	failed     int
}

type Stats struct {
	Total       int    `json:"total"`
	Successful  int    `json:"successful"`
	Failed      int    `json:"failed"`
	SuccessRate string `json:"success_rate"`
}

func New(enabled bool, timeout time.Duration, logger *logrus.Logger) *Executor {
	return &Executor{
		enabled: enabled,
		timeout: timeout,
		log:     logger.WithField("component", "executor"),
	}
}

// Execute writes code to a temp file and runs it with the language's
// interpreter, bounded by the configured timeout. When dryRun is true, or
// execution is disabled by configuration, it reports success without
// running anything.
func (e *Executor) Execute(ctx context.Context, code, language string, dryRun bool) Result {
	if dryRun || !e.enabled {
		res := Result{Success: true, DryRun: true}
		e.record(res)
		return res
	}

	res := e.run(ctx, code, language)
	e.record(res)
	return res
}

func (e *Executor) run(ctx context.Context, code, language string) Result {
	ext, ok := extensions[language]
	if !ok {
		return Result{Stderr: fmt.Sprintf("unsupported language: %s", language), ReturnCode: -1}
	}

	dir, err := os.MkdirTemp("", "autopilot-exec-")
	if err != nil {
		return Result{Stderr: err.Error(), ReturnCode: -1}
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "snippet"+ext)
	if err := os.WriteFile(file, []byte(code), 0600); err != nil {
		return Result{Stderr: err.Error(), ReturnCode: -1}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, interpreter(language), file)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	res := Result{
		Output: textutil.Truncate(stdout.String(), outputCap),
		Stderr: textutil.Truncate(stderr.String(), outputCap),
	}
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		res.Stderr = fmt.Sprintf("execution timed out after %s", e.timeout)
		res.ReturnCode = -1
	case err != nil:
		res.ReturnCode = -1
		if cmd.ProcessState != nil {
			res.ReturnCode = cmd.ProcessState.ExitCode()
		}
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
	default:
		res.Success = true
	}
	return res
}

func interpreter(language string) string {
	switch language {
	case "python":
		return "python3"
	case "sh":
		return "sh"
	case "bash":
		return "bash"
	}
	return language
}

func (e *Executor) record(res Result) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, res)
	if res.Success {
		e.successful++
	} else {
		e.failed++
		e.log.WithField("stderr", textutil.Truncate(res.Stderr, 200)).Warn("execution failed")
	}
}

// History returns a copy of every recorded result, oldest first.
func (e *Executor) History() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Result, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := len(e.history)
	rate := "0.0%"
	if total > 0 {
		rate = fmt.Sprintf("%.1f%%", float64(e.successful)/float64(total)*100)
	}
	return Stats{Total: total, Successful: e.successful, Failed: e.failed, SuccessRate: rate}
}
