package vectorize

import (
	"errors"
	"fmt"
	"path/filepath"

	"potrace-svg/internal/config"
	"potrace-svg/internal/domain"
)

// SuccessMessage is the modal body shown after a completed conversion.
func SuccessMessage(outputPath string) string {
	return fmt.Sprintf("SVG successfully saved to:\n%s", outputPath)
}

// Describe maps a conversion error to the modal message shown to the user.
func Describe(err error) domain.Notice {
	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return domain.Notice{
			Severity: domain.SeverityError,
			Title:    "Potrace not configured",
			Body:     "Internal error: Potrace path is not set.",
		}
	}

	var pErr *PipelineError
	if !errors.As(err, &pErr) {
		return domain.Notice{
			Severity: domain.SeverityError,
			Title:    "Error",
			Body:     errorText(err),
		}
	}

	switch {
	case pErr.Stage == StageTempFile:
		return domain.Notice{
			Severity: domain.SeverityError,
			Title:    "Error",
			Body:     fmt.Sprintf("Failed to create temporary file:\n%s", errorText(pErr.Err)),
		}
	case pErr.Stage == StageRasterize && pErr.Kind == KindLaunchFailed:
		return domain.Notice{
			Severity: domain.SeverityError,
			Title:    "Error",
			Body: fmt.Sprintf("Failed to run ImageMagick '%s':\n%s",
				filepath.Base(pErr.CommandLog.Command), errorText(pErr.Err)),
		}
	case pErr.Stage == StageRasterize:
		return domain.Notice{
			Severity: domain.SeverityError,
			Title:    "Convert Error",
			Body: fmt.Sprintf("ImageMagick '%s' exited with an error:\n%s",
				filepath.Base(pErr.CommandLog.Command), exitDetail(pErr.CommandLog)),
		}
	case pErr.Stage == StageTrace && pErr.Kind == KindLaunchFailed:
		return domain.Notice{
			Severity: domain.SeverityError,
			Title:    "Error",
			Body: fmt.Sprintf("Failed to run Potrace at:\n%s\n\nError: %s",
				pErr.CommandLog.Command, errorText(pErr.Err)),
		}
	default:
		return domain.Notice{
			Severity: domain.SeverityError,
			Title:    "Potrace Error",
			Body:     fmt.Sprintf("Potrace exited with an error:\n%s", exitDetail(pErr.CommandLog)),
		}
	}
}

// SuccessNotice is the modal message for a completed conversion.
func SuccessNotice(res Result) domain.Notice {
	return domain.Notice{
		Severity: domain.SeverityInfo,
		Title:    "Success",
		Body:     res.Message,
	}
}

func exitDetail(log CommandLog) string {
	detail := fmt.Sprintf("Child process exited with code %d", log.ExitCode)
	if log.Signal != 0 {
		detail = fmt.Sprintf("Child process killed by signal %d", log.Signal)
	}
	if log.Stderr != "" {
		detail += "\n\n" + log.Stderr
	}
	return detail
}

func errorText(err error) string {
	if err == nil {
		return "Unknown error"
	}
	return err.Error()
}
