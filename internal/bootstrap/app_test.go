package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"potrace-svg/internal/config"
	"potrace-svg/internal/domain"
	"potrace-svg/internal/jobs"
	"potrace-svg/internal/vectorize"
)

// fakeStore keeps settings in memory for App tests.
type fakeStore struct {
	mu       sync.Mutex
	settings domain.Settings
	saves    int
}

// Load returns the stored settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

// Save records the settings.
func (s *fakeStore) Save(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.saves++
	return nil
}

// fakePipeline allows injecting custom convert behavior per test.
type fakePipeline struct {
	mu    sync.Mutex
	calls []vectorize.Request
	run   func(ctx context.Context, req vectorize.Request) (vectorize.Result, error)
}

// Convert records the request and delegates to the injected function.
func (p *fakePipeline) Convert(ctx context.Context, req vectorize.Request) (vectorize.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()
	if p.run == nil {
		return vectorize.Result{OutputPath: req.OutputPath, Message: vectorize.SuccessMessage(req.OutputPath)}, nil
	}
	return p.run(ctx, req)
}

func (p *fakePipeline) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// fakeDialogs returns canned paths and records shown notices.
type fakeDialogs struct {
	input         string
	output        string
	inputErr      error
	inputCalls    int
	outputCalls   int
	outputDir     string
	suggestedName string
	notices       []domain.Notice
}

func (d *fakeDialogs) PickInput(string) (string, error) {
	d.inputCalls++
	return d.input, d.inputErr
}

func (d *fakeDialogs) PickOutput(defaultDir, suggestedName string) (string, error) {
	d.outputCalls++
	d.outputDir = defaultDir
	d.suggestedName = suggestedName
	return d.output, nil
}

func (d *fakeDialogs) ShowMessage(notice domain.Notice) error {
	d.notices = append(d.notices, notice)
	return nil
}

// stagedSuccess drives the callbacks the way the real pipeline does.
func stagedSuccess(ctx context.Context, req vectorize.Request) (vectorize.Result, error) {
	req.OnStage(domain.JobStatusCreatingTemp)
	req.OnStage(domain.JobStatusRasterizing)
	req.OnStatus(domain.StatusConverting)
	req.OnLog(vectorize.CommandLog{Command: "convert", Args: []string{req.InputPath, "/tmp/x.pgm"}})
	req.OnStage(domain.JobStatusTracing)
	req.OnStatus(domain.StatusTracing)
	req.OnLog(vectorize.CommandLog{Command: "/opt/app/potrace", Args: []string{"/tmp/x.pgm", "-s", "-o", req.OutputPath}})
	return vectorize.Result{OutputPath: req.OutputPath, Message: vectorize.SuccessMessage(req.OutputPath)}, nil
}

func newTestApp(pipeline pipelineRunner, dialogs Dialogs) (*App, *fakeStore) {
	store := &fakeStore{settings: config.DefaultSettings()}
	return &App{
		Settings: config.DefaultSettings(),
		Store:    store,
		Jobs:     jobs.NewManager(),
		Pipeline: pipeline,
		Dialogs:  dialogs,
		events:   jobs.NewEventBus(100),
	}, store
}

func TestConvertImageSuccess(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "in", "photo.png")
	output := filepath.Join(root, "out", "photo.svg")

	pipeline := &fakePipeline{run: stagedSuccess}
	dialogs := &fakeDialogs{input: input, output: output}
	app, store := newTestApp(pipeline, dialogs)

	job, err := app.ConvertImage()
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusDone, job.Status)
	assert.Equal(t, input, job.InputPath)
	assert.Equal(t, output, job.OutputPath)
	assert.Equal(t, "photo.svg", dialogs.suggestedName)
	assert.Equal(t, filepath.Join(root, "in"), dialogs.outputDir)

	require.Len(t, dialogs.notices, 1)
	assert.Equal(t, domain.SeverityInfo, dialogs.notices[0].Severity)
	assert.Equal(t, "Success", dialogs.notices[0].Title)
	assert.Equal(t, "SVG successfully saved to:\n"+output, dialogs.notices[0].Body)

	last, ok := app.events.Last(jobs.EventTypeStatus)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCompleted, last.Message)
	assert.Equal(t, []string{domain.StatusConverting, domain.StatusTracing, domain.StatusCompleted}, statusMessages(app.JobEvents(0)))

	assert.Equal(t, filepath.Join(root, "in"), store.settings.LastInputDir)
	assert.Equal(t, filepath.Join(root, "out"), store.settings.LastOutputDir)
}

func TestConvertImageCancelledInputRunsNothing(t *testing.T) {
	pipeline := &fakePipeline{}
	dialogs := &fakeDialogs{}
	app, store := newTestApp(pipeline, dialogs)

	job, err := app.ConvertImage()
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusIdle, job.Status)
	assert.Zero(t, dialogs.outputCalls)
	assert.Zero(t, pipeline.callCount())
	assert.Empty(t, dialogs.notices)
	assert.Empty(t, app.JobEvents(0))
	assert.Zero(t, store.saves)
}

func TestConvertImageCancelledOutputRunsNothing(t *testing.T) {
	pipeline := &fakePipeline{}
	dialogs := &fakeDialogs{input: "/pics/photo.png"}
	app, _ := newTestApp(pipeline, dialogs)

	job, err := app.ConvertImage()
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusIdle, job.Status)
	assert.Equal(t, 1, dialogs.outputCalls)
	assert.Zero(t, pipeline.callCount())
	assert.Empty(t, dialogs.notices)
}

func TestConvertImageInputDialogError(t *testing.T) {
	pipeline := &fakePipeline{}
	dialogs := &fakeDialogs{inputErr: errors.New("runtime context is not initialized")}
	app, _ := newTestApp(pipeline, dialogs)

	_, err := app.ConvertImage()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "select image")
	assert.Zero(t, pipeline.callCount())
}

func TestConvertImageFailureShowsErrorNotice(t *testing.T) {
	pipeline := &fakePipeline{run: func(ctx context.Context, req vectorize.Request) (vectorize.Result, error) {
		req.OnStage(domain.JobStatusCreatingTemp)
		req.OnStage(domain.JobStatusRasterizing)
		req.OnStatus(domain.StatusConverting)
		req.OnStage(domain.JobStatusTracing)
		req.OnStatus(domain.StatusTracing)
		return vectorize.Result{}, &vectorize.PipelineError{
			Stage:      vectorize.StageTrace,
			Kind:       vectorize.KindNonzeroExit,
			Message:    "potrace exited with code 2",
			CommandLog: vectorize.CommandLog{Command: "/opt/app/potrace", ExitCode: 2, Stderr: "bad header"},
		}
	}}
	dialogs := &fakeDialogs{input: "/pics/photo.png", output: "/pics/photo.svg"}
	app, _ := newTestApp(pipeline, dialogs)

	job, err := app.ConvertImage()
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)

	require.Len(t, dialogs.notices, 1)
	assert.Equal(t, domain.SeverityError, dialogs.notices[0].Severity)
	assert.Equal(t, "Potrace Error", dialogs.notices[0].Title)
	assert.Equal(t, "Potrace exited with an error:\nChild process exited with code 2\n\nbad header", dialogs.notices[0].Body)

	last, ok := app.events.Last(jobs.EventTypeStatus)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, last.Message)

	errEvent, ok := app.events.Last(jobs.EventTypeError)
	require.True(t, ok)
	assert.Equal(t, string(vectorize.StageTrace), errEvent.Stage)
	assert.Equal(t, 2, errEvent.ExitCode)
	assert.Equal(t, "bad header", errEvent.Stderr)
}

func TestConvertImageConfigurationErrorShowsModal(t *testing.T) {
	dialogs := &fakeDialogs{input: "/pics/photo.png", output: "/pics/photo.svg"}
	app, _ := newTestApp(nil, dialogs)
	app.ToolsErr = &config.ConfigurationError{Tool: "potrace", Err: vectorize.ErrToolNotConfigured}

	_, err := app.ConvertImage()
	require.NoError(t, err)

	assert.Zero(t, dialogs.inputCalls)
	require.Len(t, dialogs.notices, 1)
	assert.Equal(t, "Potrace not configured", dialogs.notices[0].Title)
	assert.Equal(t, "Internal error: Potrace path is not set.", dialogs.notices[0].Body)
	assert.Equal(t, []string{domain.StatusFailed}, statusMessages(app.JobEvents(0)))
}

func TestConvertImageDoesNotPersistEnvironmentOverrides(t *testing.T) {
	t.Setenv("POTRACE_SVG_TRACER", "/env/potrace")
	root := t.TempDir()
	input := filepath.Join(root, "in", "photo.png")
	output := filepath.Join(root, "out", "photo.svg")

	dialogs := &fakeDialogs{input: input, output: output}
	app, store := newTestApp(nil, dialogs)
	app.reconfigure(store.settings)
	require.Equal(t, "/env/potrace", app.Settings.TracerPath)
	app.Pipeline = &fakePipeline{run: stagedSuccess}

	_, err := app.ConvertImage()
	require.NoError(t, err)

	assert.Equal(t, 1, store.saves)
	assert.Empty(t, store.settings.TracerPath)
	assert.Equal(t, filepath.Join(root, "in"), store.settings.LastInputDir)
	assert.Equal(t, filepath.Join(root, "out"), store.settings.LastOutputDir)
	assert.Equal(t, "/env/potrace", app.Settings.TracerPath)
	assert.Equal(t, filepath.Join(root, "in"), app.Settings.LastInputDir)
}

func TestSettingsChangesKeepEnvironmentOverrides(t *testing.T) {
	t.Setenv("POTRACE_SVG_TRACER", "/env/potrace")
	app, store := newTestApp(&fakePipeline{}, &fakeDialogs{})
	app.executable = func() (string, error) { return "/opt/app/potrace-svg", nil }
	app.reconfigure(store.settings)
	require.Equal(t, "/env/potrace", app.Tools.TracerPath)

	_, err := app.InstallOrFixDiagnostic(domain.DiagnosticTempDir)
	require.NoError(t, err)
	assert.Equal(t, "/env/potrace", app.Tools.TracerPath)

	saved, err := app.SaveSettings(domain.Settings{RasterizerCommand: "magick"})
	require.NoError(t, err)
	assert.Empty(t, saved.TracerPath)
	assert.Empty(t, store.settings.TracerPath)
	assert.Equal(t, "/env/potrace", app.Tools.TracerPath)
	assert.Equal(t, "magick", app.Tools.RasterizerPath)

	_, err = app.RefreshDiagnostics()
	require.NoError(t, err)
	assert.Equal(t, "/env/potrace", app.Tools.TracerPath)
}

func TestRefreshDiagnosticsClearsFinishedJob(t *testing.T) {
	pipeline := &fakePipeline{run: func(ctx context.Context, req vectorize.Request) (vectorize.Result, error) {
		req.OnStage(domain.JobStatusCreatingTemp)
		return vectorize.Result{}, &vectorize.PipelineError{Stage: vectorize.StageTempFile, Err: errors.New("disk full")}
	}}
	dialogs := &fakeDialogs{input: "/pics/photo.png", output: "/pics/photo.svg"}
	app, _ := newTestApp(pipeline, dialogs)

	job, err := app.ConvertImage()
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusFailed, job.Status)

	_, err = app.RefreshDiagnostics()
	require.NoError(t, err)
	assert.Equal(t, domain.Job{Status: domain.JobStatusIdle}, app.CurrentJob())
}

func TestRefreshDiagnosticsKeepsRunningJob(t *testing.T) {
	release := make(chan struct{})
	pipeline := &fakePipeline{run: func(ctx context.Context, req vectorize.Request) (vectorize.Result, error) {
		req.OnStage(domain.JobStatusCreatingTemp)
		<-release
		return stagedSuccess(ctx, req)
	}}
	app, _ := newTestApp(pipeline, &fakeDialogs{})

	job, err := app.StartConversion("/pics/a.png", "/pics/a.svg")
	require.NoError(t, err)

	_, err = app.RefreshDiagnostics()
	require.NoError(t, err)
	assert.Equal(t, job.ID, app.CurrentJob().ID)
	assert.True(t, app.Jobs.IsRunning())

	close(release)
	waitForStatus(t, app, domain.JobStatusDone)
}

func TestConvertImageTwiceRunsTwoJobs(t *testing.T) {
	pipeline := &fakePipeline{run: stagedSuccess}
	dialogs := &fakeDialogs{input: "/pics/photo.png", output: "/pics/photo.svg"}
	app, _ := newTestApp(pipeline, dialogs)

	first, err := app.ConvertImage()
	require.NoError(t, err)
	second, err := app.ConvertImage()
	require.NoError(t, err)

	assert.Equal(t, 2, pipeline.callCount())
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, domain.JobStatusDone, second.Status)
}

// TestStartConversionEnforcesSingleRunningJob checks single-job guard.
func TestStartConversionEnforcesSingleRunningJob(t *testing.T) {
	release := make(chan struct{})
	pipeline := &fakePipeline{run: func(ctx context.Context, req vectorize.Request) (vectorize.Result, error) {
		req.OnStage(domain.JobStatusCreatingTemp)
		<-release
		return stagedSuccess(ctx, req)
	}}
	app, _ := newTestApp(pipeline, &fakeDialogs{})

	_, err := app.StartConversion("/pics/a.png", "/pics/a.svg")
	require.NoError(t, err)

	_, err = app.StartConversion("/pics/b.png", "/pics/b.svg")
	assert.ErrorIs(t, err, jobs.ErrJobAlreadyRunning)

	close(release)
	waitForStatus(t, app, domain.JobStatusDone)
	assertEventTypeExists(t, app.JobEvents(0), jobs.EventTypeResult)
	assertEventTypeExists(t, app.JobEvents(0), jobs.EventTypeLog)
}

func TestStartConversionPublishesFailureEvents(t *testing.T) {
	pipeline := &fakePipeline{run: func(ctx context.Context, req vectorize.Request) (vectorize.Result, error) {
		req.OnStage(domain.JobStatusCreatingTemp)
		return vectorize.Result{}, &vectorize.PipelineError{
			Stage:   vectorize.StageTempFile,
			Message: "failed to create temporary file",
			Err:     errors.New("disk full"),
		}
	}}
	app, _ := newTestApp(pipeline, &fakeDialogs{})

	_, err := app.StartConversion("/pics/a.png", "/pics/a.svg")
	require.NoError(t, err)

	waitForStatus(t, app, domain.JobStatusFailed)
	events := app.JobEvents(0)
	assertEventTypeExists(t, events, jobs.EventTypeError)
	assert.Equal(t, []string{domain.StatusFailed}, statusMessages(events))
}

func TestStartConversionValidatesPaths(t *testing.T) {
	app, _ := newTestApp(&fakePipeline{}, &fakeDialogs{})

	_, err := app.StartConversion(" ", "/pics/a.svg")
	require.Error(t, err)

	app.Pipeline = nil
	_, err = app.StartConversion("/pics/a.png", "/pics/a.svg")
	assert.ErrorIs(t, err, vectorize.ErrToolNotConfigured)
}

func TestSaveSettingsNormalizesAndPersists(t *testing.T) {
	app, store := newTestApp(&fakePipeline{}, &fakeDialogs{})
	app.executable = func() (string, error) { return "/opt/app/potrace-svg", nil }

	saved, err := app.SaveSettings(domain.Settings{RasterizerCommand: "  magick ", LogLevel: "debug"})
	require.NoError(t, err)

	assert.Equal(t, "magick", saved.RasterizerCommand)
	assert.Equal(t, "DEBUG", saved.LogLevel)
	assert.Equal(t, saved, store.settings)
	assert.Equal(t, "magick", app.Tools.RasterizerPath)
	assert.NoError(t, app.ToolsErr)
	assert.NotNil(t, app.Pipeline)
}

func TestSuggestOutputName(t *testing.T) {
	app, _ := newTestApp(&fakePipeline{}, &fakeDialogs{})
	assert.Equal(t, "scan.svg", app.SuggestOutputName("/pics/scan.tiff"))
}

func statusMessages(events []jobs.Event) []string {
	var out []string
	for _, event := range events {
		if event.Type == jobs.EventTypeStatus {
			out = append(out, event.Message)
		}
	}
	return out
}

// waitForStatus polls until job reaches desired status or times out.
func waitForStatus(t *testing.T, app *App, want domain.JobStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return app.CurrentJob().Status == want
	}, 2*time.Second, 10*time.Millisecond, "status = %s, want %s", app.CurrentJob().Status, want)
}

// assertEventTypeExists verifies at least one event of given type exists.
func assertEventTypeExists(t *testing.T, events []jobs.Event, want jobs.EventType) {
	t.Helper()
	for _, event := range events {
		if event.Type == want {
			return
		}
	}
	t.Fatalf("event type %s not found", want)
}
