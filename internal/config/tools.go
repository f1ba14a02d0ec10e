package config

import (
	"errors"
	"fmt"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"potrace-svg/internal/domain"
)

// Tools holds the external executables used by the conversion pipeline.
// It is resolved once at startup and passed to the pipeline by value.
type Tools struct {
	// RasterizerPath is a command name looked up on PATH at run time.
	RasterizerPath string
	// TracerPath is an absolute location that is never searched on PATH.
	TracerPath string
}

// ConfigurationError reports a tool path that could not be resolved.
type ConfigurationError struct {
	Tool string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s is not configured", e.Tool)
	}
	return fmt.Sprintf("%s is not configured: %v", e.Tool, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TracerExecutableName returns the fixed potrace filename for an OS.
func TracerExecutableName(goos string) string {
	if goos == "windows" {
		return "potrace.exe"
	}
	return "potrace"
}

// ResolveTools resolves both tool locations. Without an override, the tracer
// lives next to the running program; executable is normally os.Executable.
func ResolveTools(settings domain.Settings, executable func() (string, error)) (Tools, error) {
	settings = Normalize(settings)
	tools := Tools{RasterizerPath: settings.RasterizerCommand}

	tracer := settings.TracerPath
	if tracer == "" {
		if executable == nil {
			return tools, &ConfigurationError{Tool: "potrace", Err: errors.New("program location is unknown")}
		}
		exe, err := executable()
		if err != nil {
			return tools, &ConfigurationError{Tool: "potrace", Err: fmt.Errorf("locate running program: %w", err)}
		}
		if strings.TrimSpace(exe) == "" {
			return tools, &ConfigurationError{Tool: "potrace", Err: errors.New("program location is empty")}
		}
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		tracer = filepath.Join(filepath.Dir(exe), TracerExecutableName(goruntime.GOOS))
	}

	abs, err := filepath.Abs(tracer)
	if err != nil {
		return tools, &ConfigurationError{Tool: "potrace", Err: fmt.Errorf("make tracer path absolute: %w", err)}
	}
	tools.TracerPath = abs
	return tools, nil
}
