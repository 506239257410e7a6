package isolation

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"www.github.com/Wanderer0074348/HybridInfer/src/config"
	"www.github.com/Wanderer0074348/HybridInfer/src/metrics"
	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

const (
	DefaultTimeout = 300 * time.Second
	outputLimit    = 64 << 10
	pipeDrainDelay = 5 * time.Second
)

// Spawn describes how the worker program is started. Runtime activation is
// expressed as environment data, never as shell syntax.
type Spawn struct {
	Path       string
	Args       []string
	Dir        string
	Env        map[string]string
	InheritEnv bool
}

// Envelope is the per-call record of one exchange.
type Envelope struct {
	RequestPath      string
	ResponsePath     string
	WorkerPath       string
	WorkingDirectory string
	Timeout          time.Duration
}

// ExchangeError classifies a failed exchange. errors.Is matches its Kind sentinel.
type ExchangeError struct {
	Kind     error
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExchangeError) Error() string {
	msg := e.Kind.Error()
	if e.ExitCode != 0 {
		msg = fmt.Sprintf("%s (exit code %d)", msg, e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExchangeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Runner executes one request per call in a fresh child process.
type Runner struct {
	spawn    Spawn
	tempRoot string
	timeout  time.Duration
	logger   logrus.FieldLogger
	metrics  *metrics.Collector
}

func NewRunner(cfg *config.IsolationConfig, logger logrus.FieldLogger, m *metrics.Collector) *Runner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		spawn: Spawn{
			Path:       cfg.WorkerPath,
			Args:       cfg.Args,
			Dir:        cfg.WorkingDirectory,
			Env:        cfg.Env,
			InheritEnv: cfg.InheritEnv,
		},
		tempRoot: cfg.TempRoot,
		timeout:  timeout,
		logger:   logger.WithField("component", "isolated_runner"),
		metrics:  m,
	}
}

// Check verifies the worker program exists and is a regular file.
func (r *Runner) Check() error {
	info, err := os.Stat(r.spawn.Path)
	if err != nil {
		return fmt.Errorf("worker program: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("worker program %s is a directory", r.spawn.Path)
	}
	return nil
}

// Run performs one exchange. img may be nil for text tasks.
func (r *Runner) Run(ctx context.Context, req *WorkerRequest, img *models.Image) (*WorkerResponse, error) {
	resp, err := r.run(ctx, req, img)
	outcome := "ok"
	if err != nil {
		outcome = models.FailureKind(err)
	}
	r.metrics.ObserveIsolatedRun(string(req.TaskType), outcome)
	return resp, err
}

func (r *Runner) run(ctx context.Context, req *WorkerRequest, img *models.Image) (*WorkerResponse, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	req.SchemaVersion = SchemaVersion

	dir, err := os.MkdirTemp(r.tempRoot, "isolated-"+req.RequestID+"-")
	if err != nil {
		return nil, &ExchangeError{Kind: models.ErrProcessLaunchFailed, Err: fmt.Errorf("work dir: %w", err)}
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.WithError(err).WithField("dir", dir).Warn("failed to remove isolated work dir")
		}
	}()

	env := Envelope{
		RequestPath:      filepath.Join(dir, RequestFileName),
		ResponsePath:     filepath.Join(dir, ResponseFileName),
		WorkerPath:       r.spawn.Path,
		WorkingDirectory: dir,
		Timeout:          r.timeout,
	}
	if r.spawn.Dir != "" {
		env.WorkingDirectory = r.spawn.Dir
	}

	if img != nil {
		imagePath := filepath.Join(dir, ImageFileName)
		if err := WriteImage(imagePath, img); err != nil {
			return nil, &ExchangeError{Kind: models.ErrProcessLaunchFailed, Err: err}
		}
		req.Image = &ImageRef{Path: imagePath, Width: img.Width, Height: img.Height, Channels: img.Channels}
	}
	if err := WriteRequest(env.RequestPath, req); err != nil {
		return nil, &ExchangeError{Kind: models.ErrProcessLaunchFailed, Err: err}
	}

	return r.exchange(ctx, env, dir, req)
}

func (r *Runner) exchange(ctx context.Context, env Envelope, dir string, req *WorkerRequest) (*WorkerResponse, error) {
	runCtx, cancel := context.WithTimeout(ctx, env.Timeout)
	defer cancel()

	args := append(append([]string{}, r.spawn.Args...),
		"--request", env.RequestPath,
		"--response", env.ResponsePath,
		"--workdir", dir,
	)
	cmd := exec.CommandContext(runCtx, env.WorkerPath, args...)
	cmd.Dir = env.WorkingDirectory
	cmd.Env = r.environment()
	cmd.WaitDelay = pipeDrainDelay

	stdout := &tailBuffer{limit: outputLimit}
	stderr := &tailBuffer{limit: outputLimit}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	log := r.logger.WithFields(logrus.Fields{
		"task":       req.TaskType,
		"request_id": req.RequestID,
		"worker":     env.WorkerPath,
	})

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &ExchangeError{Kind: models.ErrProcessLaunchFailed, Err: err}
	}
	waitErr := cmd.Wait()
	log = log.WithField("duration", time.Since(start))
	r.relayStderr(log, stderr.String())
	if out := stdout.String(); out != "" {
		log.WithField("stdout", out).Debug("worker stdout")
	}

	// the caller's own deadline is not a worker timeout
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("isolated call abandoned: %w", err)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, &ExchangeError{
			Kind:   models.ErrProcessTimeout,
			Stderr: stderr.String(),
			Err:    fmt.Errorf("no response after %s", env.Timeout),
		}
	}

	if waitErr != nil {
		exitErr := &exec.ExitError{}
		if errors.As(waitErr, &exitErr) {
			xerr := &ExchangeError{
				Kind:     models.ErrProcessNonZeroExit,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}
			if resp, err := ReadResponse(env.ResponsePath); err == nil && resp.Message != "" {
				xerr.Err = errors.New(resp.Message)
			}
			return nil, xerr
		}
		return nil, &ExchangeError{Kind: models.ErrProcessNonZeroExit, Stderr: stderr.String(), Err: waitErr}
	}

	resp, err := ReadResponse(env.ResponsePath)
	if err != nil {
		return nil, &ExchangeError{Kind: models.ErrMalformedResponse, Stderr: stderr.String(), Err: err}
	}
	if resp.Status == StatusError {
		return nil, &ExchangeError{
			Kind: models.ErrMalformedResponse,
			Err:  fmt.Errorf("worker exited 0 but reported error: %s", resp.Message),
		}
	}

	log.Debug("isolated exchange completed")
	return resp, nil
}

// environment merges the activation map over the inherited environment.
// Overlay values may reference ${VAR} from other overlay keys in any order;
// a key referring to itself, or caught in a cycle, sees the inherited value.
func (r *Runner) environment() []string {
	inherited := map[string]string{}
	if r.spawn.InheritEnv {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				inherited[k] = v
			}
		}
	}
	base := func(name string) string {
		if v, ok := inherited[name]; ok {
			return v
		}
		return os.Getenv(name)
	}

	active := map[string]bool{}
	var resolve func(name string) string
	resolve = func(name string) string {
		raw, ok := r.spawn.Env[name]
		if !ok || active[name] {
			return base(name)
		}
		active[name] = true
		v := os.Expand(raw, resolve)
		delete(active, name)
		return v
	}

	overlay := make(map[string]string, len(r.spawn.Env))
	for k := range r.spawn.Env {
		overlay[k] = resolve(k)
	}
	vars := inherited
	for k, v := range overlay {
		vars[k] = v
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}

// relayStderr forwards worker log lines at a level guessed from their prefix.
func (r *Runner) relayStderr(log logrus.FieldLogger, output string) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		head := strings.ToUpper(line)
		if len(head) > 64 {
			head = head[:64]
		}
		entry := log.WithField("source", "worker")
		switch {
		case strings.Contains(head, "ERROR"), strings.Contains(head, "FATAL"):
			entry.Error(line)
		case strings.Contains(head, "WARN"):
			entry.Warn(line)
		case strings.Contains(head, "DEBUG"):
			entry.Debug(line)
		default:
			entry.Info(line)
		}
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > b.limit {
		p = p[len(p)-b.limit:]
	}
	if over := b.buf.Len() + len(p) - b.limit; over > 0 {
		b.buf.Next(over)
	}
	b.buf.Write(p)
	return n, nil
}

func (b *tailBuffer) String() string {
	return b.buf.String()
}
