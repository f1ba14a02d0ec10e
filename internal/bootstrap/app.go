package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"potrace-svg/internal/config"
	"potrace-svg/internal/diagnostics"
	"potrace-svg/internal/domain"
	"potrace-svg/internal/jobs"
	"potrace-svg/internal/logging"
	"potrace-svg/internal/vectorize"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// Wails event names pushed to the frontend.
const (
	eventStatus = "conversion:status"
	eventJob    = "job:event"
)

// App wires configuration, jobs, pipeline, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Tools       config.Tools
	ToolsErr    error
	Jobs        *jobs.Manager
	Pipeline    pipelineRunner
	Dialogs     Dialogs
	Diagnostics domain.DiagnosticReport
	Logger      *logging.Logger
	assets      fs.FS
	checker     *diagnostics.Checker
	executable  func() (string, error)

	mu         sync.Mutex
	events     *jobs.EventBus
	runtimeCtx context.Context
}

// pipelineRunner isolates the conversion pipeline behind an interface.
type pipelineRunner interface {
	Convert(ctx context.Context, req vectorize.Request) (vectorize.Result, error)
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	store := config.NewJSONStore(config.SettingsPath())
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	effective := config.Overlay(config.NewViper(), settings)

	logger, err := logging.NewLogger(config.LogDir(), effective.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	app := &App{
		Store:      store,
		Jobs:       jobs.NewManager(),
		Logger:     logger,
		assets:     assets,
		checker:    diagnostics.NewChecker(),
		executable: os.Executable,
		events:     jobs.NewEventBus(200),
	}
	app.Dialogs = &wailsDialogs{runtime: app.runtimeContext}
	app.reconfigure(settings)

	logger.Info("application configured",
		"settings", store.Path(),
		"rasterizer", app.Tools.RasterizerPath,
		"tracer", app.Tools.TracerPath,
		"diagnostic_failures", app.Diagnostics.HasFailures,
	)
	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:         "Potrace SVG Converter",
		Width:         560,
		Height:        420,
		DisableResize: true,
		AssetServer:   assetOptions,
		OnStartup:     a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			a.runtimeCtx = nil
			a.mu.Unlock()
			_ = a.logger().Close()
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for dialogs and push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// reconfigure takes stored settings, applies flag and environment
// overrides, and rebuilds tools, pipeline, and diagnostics from the result.
// Overrides live only in a.Settings and are never written to the store.
func (a *App) reconfigure(stored domain.Settings) domain.DiagnosticReport {
	settings := config.Overlay(config.NewViper(), stored)
	tools, toolsErr := config.ResolveTools(settings, a.executable)

	var pipeline pipelineRunner
	if toolsErr == nil {
		p, err := vectorize.NewPipeline(tools, vectorize.WithLogger(a.logger()))
		if err != nil {
			toolsErr = err
		} else {
			pipeline = p
		}
	}
	if toolsErr != nil {
		a.logger().Error("tool configuration failed", "error", toolsErr)
	}

	var report domain.DiagnosticReport
	if a.checker != nil {
		report = a.checker.Run(tools)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	a.Tools = tools
	a.ToolsErr = toolsErr
	a.Pipeline = pipeline
	if a.checker != nil {
		a.Diagnostics = report
	}
	return a.Diagnostics
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings, reruns dependency checks, and clears
// a finished job so the UI starts from idle.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	report := a.reconfigure(settings)
	a.clearFinishedJob()
	return report, nil
}

// clearFinishedJob returns the job manager to idle unless a job is running.
func (a *App) clearFinishedJob() {
	if err := a.Jobs.Reset(); err != nil {
		a.logger().Debug("job not reset", "error", err)
	}
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// SaveSettings normalizes and persists settings, then re-resolves tools.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := config.Normalize(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.reconfigure(normalized)
	return normalized, nil
}

// SuggestOutputName returns the default SVG filename for an input image.
func (a *App) SuggestOutputName(inputPath string) string {
	return vectorize.SuggestedOutputName(inputPath)
}

// ConvertImage runs the interactive flow: pick an image, pick the SVG
// destination, convert, and report. Cancelling either dialog does nothing.
// Conversion failures are reported through a modal message and the returned
// job status, not the error.
func (a *App) ConvertImage() (domain.Job, error) {
	pipeline, err := a.pipeline()
	if err != nil {
		a.showNotice(vectorize.Describe(err))
		a.publishStatus("", domain.JobStatusFailed, domain.StatusFailed)
		return a.Jobs.Current(), nil
	}
	if a.Jobs.IsRunning() {
		return a.Jobs.Current(), jobs.ErrJobAlreadyRunning
	}

	a.mu.Lock()
	settings := a.Settings
	a.mu.Unlock()

	inputPath, err := a.Dialogs.PickInput(settings.LastInputDir)
	if err != nil {
		return a.Jobs.Current(), fmt.Errorf("select image: %w", err)
	}
	if inputPath == "" {
		return a.Jobs.Current(), nil
	}

	outputDir := settings.LastOutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(inputPath)
	}
	outputPath, err := a.Dialogs.PickOutput(outputDir, vectorize.SuggestedOutputName(inputPath))
	if err != nil {
		return a.Jobs.Current(), fmt.Errorf("select output: %w", err)
	}
	if outputPath == "" {
		return a.Jobs.Current(), nil
	}

	a.rememberDirectories(inputPath, outputPath)

	job, err := a.startJob(inputPath, outputPath)
	if err != nil {
		return a.Jobs.Current(), err
	}

	result, err := a.runConversionJob(context.Background(), pipeline, job)
	if err != nil {
		a.showNotice(vectorize.Describe(err))
	} else {
		a.showNotice(vectorize.SuccessNotice(result))
	}
	return a.Jobs.Current(), nil
}

// StartConversion runs the pipeline for already chosen paths in the
// background and reports progress through job events.
func (a *App) StartConversion(inputPath, outputPath string) (domain.Job, error) {
	inputPath = strings.TrimSpace(inputPath)
	outputPath = strings.TrimSpace(outputPath)
	if inputPath == "" || outputPath == "" {
		return domain.Job{}, fmt.Errorf("input and output paths are required")
	}

	pipeline, err := a.pipeline()
	if err != nil {
		return domain.Job{}, err
	}

	job, err := a.startJob(inputPath, outputPath)
	if err != nil {
		return domain.Job{}, err
	}

	go func() {
		_, _ = a.runConversionJob(context.Background(), pipeline, job)
	}()
	return job, nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// OpenOutputFolder opens the folder containing path in the file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.Jobs.Current().OutputPath
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// startJob registers a new conversion with the job manager.
func (a *App) startJob(inputPath, outputPath string) (domain.Job, error) {
	job := domain.Job{
		ID:         "job-" + uuid.NewString(),
		InputPath:  inputPath,
		OutputPath: outputPath,
	}
	if err := a.Jobs.Start(job); err != nil {
		return domain.Job{}, err
	}
	return a.Jobs.Current(), nil
}

// runConversionJob executes the pipeline and maps outcomes to job events.
func (a *App) runConversionJob(ctx context.Context, pipeline pipelineRunner, job domain.Job) (vectorize.Result, error) {
	log := a.logger().WithJob(job.ID)
	log.Info("conversion started", "input", job.InputPath, "output", job.OutputPath)

	req := vectorize.Request{
		InputPath:  job.InputPath,
		OutputPath: job.OutputPath,
		OnStage: func(stage domain.JobStatus) {
			if err := a.Jobs.Transition(stage); err != nil {
				log.Warn("job transition rejected", "stage", stage, "error", err)
			}
		},
		OnStatus: func(text string) {
			a.publishStatus(job.ID, a.Jobs.Current().Status, text)
		},
		OnLog: func(cmd vectorize.CommandLog) {
			a.publishEvent(jobs.Event{
				JobID:    job.ID,
				Type:     jobs.EventTypeLog,
				Message:  "Command completed",
				Command:  cmd.Command,
				Args:     cmd.Args,
				ExitCode: cmd.ExitCode,
				Stderr:   cmd.Stderr,
			})
		},
	}

	result, err := pipeline.Convert(ctx, req)
	if err != nil {
		_ = a.Jobs.Fail()
		log.Error("conversion failed", "error", err)

		event := jobs.Event{
			JobID:   job.ID,
			Type:    jobs.EventTypeError,
			Status:  domain.JobStatusFailed,
			Message: err.Error(),
		}
		var pipelineErr *vectorize.PipelineError
		if errors.As(err, &pipelineErr) {
			event.Stage = string(pipelineErr.Stage)
			event.Command = pipelineErr.CommandLog.Command
			event.ExitCode = pipelineErr.CommandLog.ExitCode
			event.Stderr = pipelineErr.CommandLog.Stderr
		}
		a.publishEvent(event)
		a.publishStatus(job.ID, domain.JobStatusFailed, domain.StatusFailed)
		return result, err
	}

	if err := a.Jobs.Transition(domain.JobStatusDone); err != nil {
		log.Warn("job transition rejected", "stage", domain.JobStatusDone, "error", err)
	}
	a.publishEvent(jobs.Event{
		JobID:      job.ID,
		Type:       jobs.EventTypeResult,
		Status:     domain.JobStatusDone,
		Message:    result.Message,
		OutputPath: result.OutputPath,
	})
	a.publishStatus(job.ID, domain.JobStatusDone, domain.StatusCompleted)
	log.Info("conversion completed", "output", result.OutputPath)
	return result, nil
}

// pipeline returns the configured pipeline or the configuration error.
func (a *App) pipeline() (pipelineRunner, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Pipeline != nil {
		return a.Pipeline, nil
	}
	if a.ToolsErr != nil {
		return nil, a.ToolsErr
	}
	return nil, &config.ConfigurationError{Tool: "potrace", Err: vectorize.ErrToolNotConfigured}
}

// rememberDirectories stores the last used folders for the next dialogs.
// Only the two folders are written back, on top of the stored settings, so
// flag and environment overrides held in a.Settings stay out of the file.
func (a *App) rememberDirectories(inputPath, outputPath string) {
	inputDir := filepath.Dir(inputPath)
	outputDir := filepath.Dir(outputPath)

	a.mu.Lock()
	a.Settings.LastInputDir = inputDir
	a.Settings.LastOutputDir = outputDir
	a.mu.Unlock()

	if a.Store == nil {
		return
	}
	stored, err := a.Store.Load()
	if err != nil {
		a.logger().Warn("load settings for last directories", "error", err)
		return
	}
	stored.LastInputDir = inputDir
	stored.LastOutputDir = outputDir
	if err := a.Store.Save(stored); err != nil {
		a.logger().Warn("save last directories", "error", err)
	}
}

// showNotice displays a modal message; dialog failures are only logged.
func (a *App) showNotice(notice domain.Notice) {
	if a.Dialogs == nil {
		return
	}
	if err := a.Dialogs.ShowMessage(notice); err != nil {
		a.logger().Warn("show message", "title", notice.Title, "error", err)
	}
}

// publishStatus sends a status line to the UI and the event history.
func (a *App) publishStatus(jobID string, status domain.JobStatus, text string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: text,
	})

	if ctx := a.currentRuntime(); ctx != nil {
		wailsruntime.EventsEmit(ctx, eventStatus, text)
	}
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	if ctx := a.currentRuntime(); ctx != nil {
		wailsruntime.EventsEmit(ctx, eventJob, published)
	}
}

func (a *App) currentRuntime() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runtimeCtx
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	ctx := a.currentRuntime()
	if ctx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return ctx, nil
}

func (a *App) logger() *logging.Logger {
	if a.Logger == nil {
		return logging.Nop()
	}
	return a.Logger
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
