package executor

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Malformed-input errors. These signal caller bugs; every runtime outcome
// (timeout, crash, bad exit) comes back as a RunResult status instead.
var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrPayloadTooLarge     = errors.New("payload too large")
)

type Status string

const (
	StatusOK            Status = "ok"
	StatusTimedOut      Status = "timed_out"
	StatusFaulted       Status = "faulted"
	StatusCompileFailed Status = "compile_failed"
)

type RunSpec struct {
	Code      []byte
	Language  string
	Input     []byte
	TimeLimit time.Duration
}

type RunResult struct {
	Status   Status
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

type Config struct {
	// Workers caps concurrently running sandbox processes.
	Workers int64
	// WorkDir is where per-run temp dirs are created; "" means the OS
	// default.
	WorkDir        string
	MaxCodeBytes   int
	MaxInputBytes  int
	MaxOutputBytes int64
	CompileTimeout time.Duration
}

// Executor runs untrusted code one process per call, each call in its own
// temp dir, each run bounded by the spec's time limit. Nothing is shared
// between calls.
type Executor struct {
	cfg      Config
	profiles map[string]Profile
	sem      *semaphore.Weighted
	log      *zap.Logger
}

func New(cfg Config, profiles map[string]Profile, log *zap.Logger) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 1 << 20
	}
	if cfg.CompileTimeout <= 0 {
		cfg.CompileTimeout = 10 * time.Second
	}
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		cfg:      cfg,
		profiles: profiles,
		sem:      semaphore.NewWeighted(cfg.Workers),
		log:      log,
	}
}

// Run executes spec.Code against spec.Input. The only returned errors are
// for malformed input or a cancelled ctx; everything the untrusted process
// does resolves into a definite RunResult.
func (e *Executor) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	prof, ok := e.profiles[spec.Language]
	if !ok {
		return RunResult{}, errors.Wrap(ErrUnsupportedLanguage, spec.Language)
	}
	if e.cfg.MaxCodeBytes > 0 && len(spec.Code) > e.cfg.MaxCodeBytes {
		return RunResult{}, errors.Wrap(ErrPayloadTooLarge, "code")
	}
	if e.cfg.MaxInputBytes > 0 && len(spec.Input) > e.cfg.MaxInputBytes {
		return RunResult{}, errors.Wrap(ErrPayloadTooLarge, "input")
	}

	// Bounded wait: a cancelled ctx is the forced-cancel path, the
	// caller never blocks on a saturated executor forever.
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return RunResult{}, errors.Wrap(err, "executor saturated")
	}
	defer e.sem.Release(1)

	dir, err := os.MkdirTemp(e.cfg.WorkDir, "run-*")
	if err != nil {
		return RunResult{}, errors.Wrap(err, "create workdir")
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, prof.SourceFile), spec.Code, 0o644); err != nil {
		return RunResult{}, errors.Wrap(err, "write source")
	}

	if len(prof.CompileCmd) > 0 {
		if res, failed := e.compile(ctx, dir, prof); failed {
			return res, nil
		}
	}

	return e.execute(ctx, dir, prof, spec), nil
}

func (e *Executor) compile(ctx context.Context, dir string, prof Profile) (RunResult, bool) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CompileTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, prof.CompileCmd[0], prof.CompileCmd[1:]...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = newLimitWriter(&stderr, e.cfg.MaxOutputBytes)

	if err := cmd.Run(); err != nil {
		return RunResult{
			Status: StatusCompileFailed,
			Stderr: stderr.String(),
		}, true
	}
	return RunResult{}, false
}

func (e *Executor) execute(ctx context.Context, dir string, prof Profile, spec RunSpec) RunResult {
	rctx, cancel := context.WithTimeout(ctx, spec.TimeLimit)
	defer cancel()

	cmd := exec.CommandContext(rctx, prof.RunCmd[0], prof.RunCmd[1:]...)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(spec.Input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = newLimitWriter(&stdout, e.cfg.MaxOutputBytes)
	cmd.Stderr = newLimitWriter(&stderr, e.cfg.MaxOutputBytes)

	// Give the submission its own process group so that killing it on
	// timeout also takes down anything it spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	start := time.Now()
	err := cmd.Run()
	res := RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case rctx.Err() == context.DeadlineExceeded:
		res.Status = StatusTimedOut
	case err == nil:
		res.Status = StatusOK
	default:
		// Non-zero exit, fatal signal, or a process that could not
		// even start: all runtime faults, never propagated.
		res.Status = StatusFaulted
		res.ExitCode = exitCode(err)
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
		e.log.Debug("sandbox run faulted",
			zap.String("language", spec.Language),
			zap.Int("exit_code", res.ExitCode),
		)
	}
	return res
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return -1
}
