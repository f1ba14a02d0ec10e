package vectorize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"potrace-svg/internal/config"
	"potrace-svg/internal/domain"
)

func TestDescribe(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantTitle string
		wantBody  string
	}{
		{
			name:      "configuration",
			err:       &config.ConfigurationError{Tool: "potrace", Err: ErrToolNotConfigured},
			wantTitle: "Potrace not configured",
			wantBody:  "Internal error: Potrace path is not set.",
		},
		{
			name:      "temp file",
			err:       &PipelineError{Stage: StageTempFile, Err: errors.New("no space left on device")},
			wantTitle: "Error",
			wantBody:  "Failed to create temporary file:\nno space left on device",
		},
		{
			name: "rasterize launch",
			err: &PipelineError{
				Stage:      StageRasterize,
				Kind:       KindLaunchFailed,
				CommandLog: CommandLog{Command: "convert", ExitCode: -1},
				Err:        errors.New("executable file not found in $PATH"),
			},
			wantTitle: "Error",
			wantBody:  "Failed to run ImageMagick 'convert':\nexecutable file not found in $PATH",
		},
		{
			name: "rasterize exit",
			err: &PipelineError{
				Stage:      StageRasterize,
				Kind:       KindNonzeroExit,
				CommandLog: CommandLog{Command: "/usr/bin/magick", ExitCode: 1, Stderr: "no decode delegate"},
			},
			wantTitle: "Convert Error",
			wantBody:  "ImageMagick 'magick' exited with an error:\nChild process exited with code 1\n\nno decode delegate",
		},
		{
			name: "trace killed by signal",
			err: &PipelineError{
				Stage:      StageTrace,
				Kind:       KindNonzeroExit,
				CommandLog: CommandLog{Command: "/opt/app/potrace", ExitCode: -1, Signal: 9},
			},
			wantTitle: "Potrace Error",
			wantBody:  "Potrace exited with an error:\nChild process killed by signal 9",
		},
		{
			name: "trace launch",
			err: &PipelineError{
				Stage:      StageTrace,
				Kind:       KindLaunchFailed,
				CommandLog: CommandLog{Command: "/opt/app/potrace", ExitCode: -1},
				Err:        errors.New("no such file or directory"),
			},
			wantTitle: "Error",
			wantBody:  "Failed to run Potrace at:\n/opt/app/potrace\n\nError: no such file or directory",
		},
		{
			name: "trace exit",
			err: &PipelineError{
				Stage:      StageTrace,
				Kind:       KindNonzeroExit,
				CommandLog: CommandLog{Command: "/opt/app/potrace", ExitCode: 2},
			},
			wantTitle: "Potrace Error",
			wantBody:  "Potrace exited with an error:\nChild process exited with code 2",
		},
		{
			name:      "other",
			err:       errors.New("job already running"),
			wantTitle: "Error",
			wantBody:  "job already running",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notice := Describe(tc.err)
			assert.Equal(t, domain.SeverityError, notice.Severity)
			assert.Equal(t, tc.wantTitle, notice.Title)
			assert.Equal(t, tc.wantBody, notice.Body)
		})
	}
}

func TestSuccessNotice(t *testing.T) {
	notice := SuccessNotice(Result{Message: SuccessMessage("/out/photo.svg")})
	assert.Equal(t, domain.SeverityInfo, notice.Severity)
	assert.Equal(t, "Success", notice.Title)
	assert.Equal(t, "SVG successfully saved to:\n/out/photo.svg", notice.Body)
}

func TestPipelineErrorFormatting(t *testing.T) {
	err := &PipelineError{
		Stage:      StageTrace,
		Kind:       KindNonzeroExit,
		Message:    "potrace exited with code 2",
		CommandLog: CommandLog{Command: "/opt/potrace", ExitCode: 2},
	}
	assert.Equal(t, "trace: potrace exited with code 2 (cmd=/opt/potrace exit=2)", err.Error())

	tempErr := &PipelineError{Stage: StageTempFile, Message: "failed to create temporary file", Err: errors.New("denied")}
	assert.Equal(t, "temp_file_creation: failed to create temporary file: denied", tempErr.Error())
	assert.Equal(t, -1, tempErr.ExitCode())

	var nilErr *PipelineError
	assert.Empty(t, nilErr.Error())
	assert.NoError(t, nilErr.Unwrap())
}
