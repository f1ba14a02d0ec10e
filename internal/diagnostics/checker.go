package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	goruntime "runtime"
	"strings"
	"time"

	"potrace-svg/internal/config"
	"potrace-svg/internal/domain"
)

// Checker validates external tools and the temp directory.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	tempDir    func() string
	goos       string
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		tempDir:    os.TempDir,
		goos:       goruntime.GOOS,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(tools config.Tools) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkRasterizer(tools.RasterizerPath),
		c.checkTracer(tools.TracerPath),
		c.checkTempDir(),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkRasterizer verifies the ImageMagick command is on PATH.
func (c *Checker) checkRasterizer(name string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   domain.DiagnosticRasterizer,
		Name: "ImageMagick",
	}

	if strings.TrimSpace(name) == "" {
		name = config.DefaultRasterizer
	}
	path, err := c.lookPath(name)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Tool not found in PATH: %s", name)
		item.Hint = "Install ImageMagick and ensure the binary is available on PATH before converting."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkTracer verifies potrace exists at its fixed location and can run.
func (c *Checker) checkTracer(path string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   domain.DiagnosticTracer,
		Name: "Potrace",
		Hint: "Place potrace in the same folder as this program, or set a tracer path in settings.",
	}

	if strings.TrimSpace(path) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Potrace path is not set."
		return item
	}

	info, err := c.stat(path)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Potrace not found at %s", path)
		} else {
			item.Message = fmt.Sprintf("Cannot access Potrace at %s", path)
		}
		return item
	}

	if info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Potrace path is a directory: %s", path)
		return item
	}

	if c.goos != "windows" && info.Mode().Perm()&0o111 == 0 {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Potrace is not executable: %s", path)
		item.Hint = "Mark the file as executable (chmod +x)."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	item.Hint = ""
	return item
}

// checkTempDir validates that intermediate bitmaps can be created.
func (c *Checker) checkTempDir() domain.DiagnosticItem {
	dir := c.tempDir()
	item := domain.DiagnosticItem{
		ID:   domain.DiagnosticTempDir,
		Name: "Temporary directory",
	}

	tmpFile, err := c.createTemp(dir, ".potrace-svg-probe-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Temporary directory is not writable: %s", dir)
		item.Hint = "Free disk space or point TMPDIR (TEMP on Windows) at a writable directory."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	createTemp func(string, string) (*os.File, error),
	tempDir func() string,
	goos string,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		createTemp: createTemp,
		remove:     os.Remove,
		tempDir:    tempDir,
		goos:       goos,
	}
}
