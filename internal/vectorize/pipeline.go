package vectorize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"potrace-svg/internal/config"
	"potrace-svg/internal/domain"
	"potrace-svg/internal/logging"
)

// Stage names the pipeline step a failure belongs to.
type Stage string

const (
	StageTempFile  Stage = "temp_file_creation"
	StageRasterize Stage = "rasterize"
	StageTrace     Stage = "trace"
)

// FailureKind separates a tool that never started from one that failed.
type FailureKind string

const (
	KindLaunchFailed FailureKind = "launch_failed"
	KindNonzeroExit  FailureKind = "nonzero_exit"
)

const (
	// intermediatePattern names the grayscale bitmap handed from convert to potrace.
	intermediatePattern = "potrace_input_*.pgm"
	stderrTailLimit     = 4 << 10
)

// ErrToolNotConfigured is wrapped by NewPipeline when the tracer path is empty.
var ErrToolNotConfigured = errors.New("tool path is not set")

// Request describes one conversion. Callbacks are optional.
type Request struct {
	InputPath  string
	OutputPath string
	OnStage    func(stage domain.JobStatus)
	OnStatus   func(text string)
	OnLog      func(log CommandLog)
}

// Result is returned only when both tools exited with status 0.
type Result struct {
	OutputPath       string
	Message          string
	IntermediatePath string
	Logs             []CommandLog
}

// CommandLog captures one external command invocation result.
// A process killed by a signal has ExitCode -1 and Signal set.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Signal   int      `json:"signal,omitempty"`
	Stderr   string   `json:"stderr,omitempty"`
}

// PipelineError is a stage-aware error with optional command context.
// Kind is empty for temp file failures.
type PipelineError struct {
	Stage      Stage       `json:"stage"`
	Kind       FailureKind `json:"kind,omitempty"`
	Message    string      `json:"message"`
	CommandLog CommandLog  `json:"commandLog"`
	Err        error       `json:"-"`
}

// Error formats pipeline failures for logs and UI.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExitCode returns the tool exit status, or -1 when it never ran or was
// killed by a signal.
func (e *PipelineError) ExitCode() int {
	if e == nil || e.Kind != KindNonzeroExit {
		return -1
	}
	return e.CommandLog.ExitCode
}

// commandResult is an internal process execution response.
type commandResult struct {
	ExitCode int
	Signal   int
	Stderr   string
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// exitCoder matches *exec.ExitError and test doubles for a started process.
type exitCoder interface {
	ExitCode() int
}

// execRunner executes commands via os/exec. Stdin is empty, stdout is
// discarded, and only the tail of stderr is kept.
type execRunner struct{}

// Run executes one command and waits for it to exit.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := newTailBuffer(stderrTailLimit)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = stderr

	err := cmd.Run()
	result := commandResult{Stderr: strings.TrimSpace(stderr.String())}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			result.Signal = terminatingSignal(exitErr)
		}
		return result, err
	}

	return result, nil
}

// terminatingSignal returns the signal that killed the process, or 0.
func terminatingSignal(exitErr *exec.ExitError) int {
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return 0
	}
	return int(status.Signal())
}

// Pipeline runs the rasterizer and then the tracer over a temp bitmap.
type Pipeline struct {
	tools      config.Tools
	tempDir    string
	logger     *logging.Logger
	runner     commandRunner
	createTemp func(dir, pattern string) (*os.File, error)
	remove     func(name string) error
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTempDir places intermediate files in dir instead of os.TempDir.
func WithTempDir(dir string) Option {
	return func(p *Pipeline) {
		p.tempDir = dir
	}
}

// NewPipeline constructs the production pipeline with OS dependencies.
// The tracer path is required; a missing one is a configuration error.
func NewPipeline(tools config.Tools, opts ...Option) (*Pipeline, error) {
	if strings.TrimSpace(tools.TracerPath) == "" {
		return nil, &config.ConfigurationError{Tool: "potrace", Err: ErrToolNotConfigured}
	}
	if strings.TrimSpace(tools.RasterizerPath) == "" {
		tools.RasterizerPath = config.DefaultRasterizer
	}
	if !filepath.IsAbs(tools.TracerPath) {
		abs, err := filepath.Abs(tools.TracerPath)
		if err != nil {
			return nil, &config.ConfigurationError{Tool: "potrace", Err: err}
		}
		tools.TracerPath = abs
	}

	p := &Pipeline{
		tools:      tools,
		logger:     logging.Nop(),
		runner:     &execRunner{},
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Tools returns the tool locations this pipeline runs.
func (p *Pipeline) Tools() config.Tools {
	return p.tools
}

// Convert rasterizes req.InputPath into a temporary bitmap, traces it into
// req.OutputPath and removes the bitmap on every exit path. It blocks until
// both tools have exited.
func (p *Pipeline) Convert(ctx context.Context, req Request) (Result, error) {
	log := p.logger.With("input", req.InputPath, "output", req.OutputPath)

	emitStage(req.OnStage, domain.JobStatusCreatingTemp)
	intermediate, err := p.allocateIntermediate()
	if err != nil {
		log.Error("create intermediate bitmap", "error", err)
		return Result{}, &PipelineError{
			Stage:   StageTempFile,
			Message: "failed to create temporary file",
			Err:     err,
		}
	}
	defer p.discard(intermediate, log)
	log = log.With("intermediate", intermediate)

	emitStage(req.OnStage, domain.JobStatusRasterizing)
	emitStatus(req.OnStatus, domain.StatusConverting)
	rasterArgs := buildRasterizeArgs(req.InputPath, intermediate)
	rasterLog, err := p.run(ctx, StageRasterize, p.tools.RasterizerPath, rasterArgs, req.OnLog, log)
	if err != nil {
		return Result{}, err
	}

	emitStage(req.OnStage, domain.JobStatusTracing)
	emitStatus(req.OnStatus, domain.StatusTracing)
	traceArgs := buildTraceArgs(intermediate, req.OutputPath)
	traceLog, err := p.run(ctx, StageTrace, p.tools.TracerPath, traceArgs, req.OnLog, log)
	if err != nil {
		return Result{}, err
	}

	log.Info("conversion finished")
	return Result{
		OutputPath:       req.OutputPath,
		Message:          SuccessMessage(req.OutputPath),
		IntermediatePath: intermediate,
		Logs:             []CommandLog{rasterLog, traceLog},
	}, nil
}

// allocateIntermediate creates a uniquely named, empty .pgm file.
func (p *Pipeline) allocateIntermediate() (string, error) {
	file, err := p.createTemp(p.tempDir, intermediatePattern)
	if err != nil {
		return "", err
	}

	name := file.Name()
	if err := file.Close(); err != nil {
		_ = p.remove(name)
		return "", err
	}
	return name, nil
}

// discard removes the intermediate bitmap. Failures are logged only.
func (p *Pipeline) discard(path string, log *logging.Logger) {
	if err := p.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug("remove intermediate bitmap", "error", err)
	}
}

// run executes one tool and classifies its failure.
func (p *Pipeline) run(
	ctx context.Context,
	stage Stage,
	name string,
	args []string,
	onLog func(CommandLog),
	log *logging.Logger,
) (CommandLog, error) {
	log.Debug("command starting", "stage", stage, "command", name, "args", args)
	res, runErr := p.runner.Run(ctx, name, args...)
	cmdLog := CommandLog{
		Command:  name,
		Args:     args,
		ExitCode: res.ExitCode,
		Signal:   res.Signal,
		Stderr:   res.Stderr,
	}

	if runErr == nil {
		emitLog(onLog, cmdLog)
		log.Info("command finished", "stage", stage, "command", name, "exit_code", cmdLog.ExitCode)
		return cmdLog, nil
	}

	var coder exitCoder
	if errors.As(runErr, &coder) {
		cmdLog.ExitCode = coder.ExitCode()
		emitLog(onLog, cmdLog)
		log.Error("command exited with error", "stage", stage, "command", name,
			"exit_code", cmdLog.ExitCode, "signal", cmdLog.Signal)
		message := fmt.Sprintf("%s exited with code %d", filepath.Base(name), cmdLog.ExitCode)
		if cmdLog.Signal != 0 {
			message = fmt.Sprintf("%s killed by signal %d", filepath.Base(name), cmdLog.Signal)
		}
		return cmdLog, &PipelineError{
			Stage:      stage,
			Kind:       KindNonzeroExit,
			Message:    message,
			CommandLog: cmdLog,
			Err:        runErr,
		}
	}

	cmdLog.ExitCode = -1
	emitLog(onLog, cmdLog)
	log.Error("command failed to start", "stage", stage, "command", name, "error", runErr)
	return cmdLog, &PipelineError{
		Stage:      stage,
		Kind:       KindLaunchFailed,
		Message:    fmt.Sprintf("failed to run %s", name),
		CommandLog: cmdLog,
		Err:        runErr,
	}
}

// emitStage forwards stage updates when callback is configured.
func emitStage(cb func(domain.JobStatus), stage domain.JobStatus) {
	if cb != nil {
		cb(stage)
	}
}

// emitStatus forwards status text when callback is configured.
func emitStatus(cb func(string), text string) {
	if cb != nil {
		cb(text)
	}
}

// emitLog forwards command logs when callback is configured.
func emitLog(cb func(CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// buildRasterizeArgs builds `convert <input> <intermediate>` arguments.
func buildRasterizeArgs(inputPath, intermediatePath string) []string {
	return []string{inputPath, intermediatePath}
}

// buildTraceArgs builds potrace arguments for SVG output.
func buildTraceArgs(intermediatePath, outputPath string) []string {
	return []string{intermediatePath, "-s", "-o", outputPath}
}

// SuggestedOutputName returns the input base name with an .svg extension.
func SuggestedOutputName(inputPath string) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "image"
	}
	return name + ".svg"
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	tools config.Tools,
	runner commandRunner,
	createTemp func(dir, pattern string) (*os.File, error),
	remove func(name string) error,
) *Pipeline {
	return &Pipeline{
		tools:      tools,
		logger:     logging.Nop(),
		runner:     runner,
		createTemp: createTemp,
		remove:     remove,
	}
}
