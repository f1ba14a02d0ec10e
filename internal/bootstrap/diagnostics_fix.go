package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"potrace-svg/internal/config"
	"potrace-svg/internal/domain"
)

const installCommandTimeout = 45 * time.Minute

type installOption struct {
	manager  string
	commands [][]string
}

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	effective := config.Overlay(config.NewViper(), settings)

	a.mu.Lock()
	tools := a.Tools
	a.mu.Unlock()

	var fixErr error
	switch id {
	case domain.DiagnosticRasterizer:
		fixErr = installRasterizerForCurrentOS(effective.RasterizerCommand)
	case domain.DiagnosticTracer:
		fixErr = installTracerForCurrentOS(tools.TracerPath)
	case domain.DiagnosticTempDir:
		fixErr = fixTempDir(os.TempDir())
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	report := a.reconfigure(settings)
	a.clearFinishedJob()
	if fixErr != nil {
		a.logger().Warn("diagnostic fix failed", "item", id, "error", fixErr)
		return report, fixErr
	}
	a.logger().Info("diagnostic fixed", "item", id)
	return report, nil
}

func ensureLocalBinOnPATH(homeDir string) error {
	binDir := localBinDir(homeDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	entries := filepath.SplitList(current)
	for _, entry := range entries {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(homeDir string) string {
	return filepath.Join(homeDir, ".potrace-svg", "bin")
}

// imageMagickInstallOptions lists package manager commands per OS.
func imageMagickInstallOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{manager: "winget", commands: [][]string{
				{"winget", "install", "--id", "ImageMagick.ImageMagick", "--exact", "--accept-source-agreements", "--accept-package-agreements"},
			}},
			{manager: "choco", commands: [][]string{{"choco", "install", "imagemagick", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "imagemagick"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "imagemagick"}}},
		}
	default:
		return []installOption{
			{manager: "apt-get", commands: [][]string{
				{"apt-get", "update"},
				{"apt-get", "install", "-y", "imagemagick"},
			}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ImageMagick"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "imagemagick"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ImageMagick"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "imagemagick"}}},
		}
	}
}

// potraceInstallOptions lists package manager commands per OS.
func potraceInstallOptions(goos string) []installOption {
	switch goos {
	case "windows":
		return []installOption{
			{manager: "choco", commands: [][]string{{"choco", "install", "potrace", "-y"}}},
			{manager: "scoop", commands: [][]string{{"scoop", "install", "potrace"}}},
		}
	case "darwin":
		return []installOption{
			{manager: "brew", commands: [][]string{{"brew", "install", "potrace"}}},
		}
	default:
		return []installOption{
			{manager: "apt-get", commands: [][]string{
				{"apt-get", "update"},
				{"apt-get", "install", "-y", "potrace"},
			}},
			{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "potrace"}}},
			{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "potrace"}}},
			{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "potrace"}}},
			{manager: "brew", commands: [][]string{{"brew", "install", "potrace"}}},
		}
	}
}

// installRasterizerForCurrentOS makes the configured rasterizer command
// resolvable on PATH. ImageMagick 7 ships only "magick", so a "convert"
// alias is written into the local bin directory when needed.
func installRasterizerForCurrentOS(command string) error {
	if strings.TrimSpace(command) == "" {
		command = config.DefaultRasterizer
	}
	if filepath.IsAbs(command) {
		return fmt.Errorf("rasterizer is set to an absolute path (%s); install ImageMagick there or clear the setting", command)
	}
	if err := requireToolsOnPath(command); err == nil {
		return nil
	}

	installErr := runFirstSuccessfulInstall(imageMagickInstallOptions(goruntime.GOOS))
	if err := requireToolsOnPath(command); err == nil {
		return nil
	}

	magick, lookErr := exec.LookPath("magick")
	if lookErr != nil {
		if installErr != nil {
			return fmt.Errorf("install ImageMagick: %w", installErr)
		}
		return fmt.Errorf("verify %s on PATH: %w", command, lookErr)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return err
	}
	if _, err := writeCommandAlias(localBinDir(homeDir), command, magick, []string{command}, goruntime.GOOS); err != nil {
		return fmt.Errorf("create %s alias: %w", command, err)
	}
	if err := requireToolsOnPath(command); err != nil {
		return fmt.Errorf("verify %s on PATH: %w", command, err)
	}
	return nil
}

// installTracerForCurrentOS installs potrace and places it at the fixed
// path the pipeline executes.
func installTracerForCurrentOS(target string) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("tracer path is not resolved")
	}
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		if goruntime.GOOS == "windows" || info.Mode().Perm()&0o111 != 0 {
			return nil
		}
		return os.Chmod(target, info.Mode().Perm()|0o755)
	}

	source, err := exec.LookPath("potrace")
	if err != nil {
		if installErr := runFirstSuccessfulInstall(potraceInstallOptions(goruntime.GOOS)); installErr != nil {
			return fmt.Errorf("install potrace: %w", installErr)
		}
		source, err = exec.LookPath("potrace")
		if err != nil {
			return fmt.Errorf("verify potrace on PATH: %w", err)
		}
	}

	if err := placeTracer(target, source, goruntime.GOOS); err != nil {
		return fmt.Errorf("place potrace at %s: %w", target, err)
	}
	return nil
}

// placeTracer makes target run source. Windows cannot execute a script
// named potrace.exe, so the binary is copied there instead of wrapped.
func placeTracer(target, source, goos string) error {
	if filepath.Clean(target) == filepath.Clean(source) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if goos == "windows" {
		return copyExecutable(source, target)
	}
	return writeLauncherScript(target, source, nil)
}

// writeCommandAlias writes a launcher named name into binDir that runs
// source with the given leading args.
func writeCommandAlias(binDir, name, source string, args []string, goos string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", fmt.Errorf("source executable path is empty")
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return "", fmt.Errorf("create local bin directory: %w", err)
	}

	if goos == "windows" {
		aliasPath := filepath.Join(binDir, name+".cmd")
		content := fmt.Sprintf("@echo off\r\n\"%s\" %s%%*\r\n", source, joinArgs(args))
		if err := os.WriteFile(aliasPath, []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("write alias file: %w", err)
		}
		return aliasPath, nil
	}

	aliasPath := filepath.Join(binDir, name)
	if err := writeLauncherScript(aliasPath, source, args); err != nil {
		return "", err
	}
	return aliasPath, nil
}

func writeLauncherScript(path, source string, args []string) error {
	escaped := strings.ReplaceAll(source, "\"", "\\\"")
	content := fmt.Sprintf("#!/usr/bin/env sh\nexec \"%s\" %s\"$@\"\n", escaped, joinArgs(args))
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return fmt.Errorf("write launcher script: %w", err)
	}
	return os.Chmod(path, 0o755)
}

func joinArgs(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.Join(args, " ") + " "
}

func copyExecutable(source, target string) error {
	src, err := os.Open(source)
	if err != nil {
		return err
	}
	defer src.Close()

	tmpPath := target + ".download"
	dst, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write destination file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}

	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("remove old destination file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move file into place: %w", err)
	}
	return nil
}

// fixTempDir recreates a missing temp directory.
func fixTempDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("temporary directory is not set")
	}
	if err := os.MkdirAll(dir, 0o1777); err != nil {
		return fmt.Errorf("create temporary directory %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".potrace-svg-probe-*")
	if err != nil {
		return fmt.Errorf("temporary directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

func runFirstSuccessfulInstall(options []installOption) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", goruntime.GOOS)
	}

	errorsByManager := make([]string, 0, len(options))
	atLeastOneManager := false

	for _, option := range options {
		if !commandAvailable(option.manager) {
			continue
		}
		atLeastOneManager = true
		if err := runInstallCommands(option.commands); err == nil {
			return nil
		} else {
			errorsByManager = append(errorsByManager, fmt.Sprintf("%s: %v", option.manager, err))
		}
	}

	if !atLeastOneManager {
		return fmt.Errorf("no supported package manager found for %s", goruntime.GOOS)
	}
	return errors.New(strings.Join(errorsByManager, " | "))
}

func runInstallCommands(commands [][]string) error {
	for _, command := range commands {
		if err := runCommandWithPossibleElevation(command); err != nil {
			return err
		}
	}
	return nil
}

func runCommandWithPossibleElevation(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}

	candidates := [][]string{command}
	if goruntime.GOOS == "linux" && requiresElevation(command[0]) {
		if commandAvailable("pkexec") {
			candidates = append(candidates, append([]string{"pkexec"}, command...))
		}
		if commandAvailable("sudo") {
			candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
		}
	}

	attemptErrors := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		if err := runCommand(candidate[0], candidate[1:]...); err == nil {
			return nil
		} else {
			attemptErrors = append(attemptErrors, err.Error())
		}
	}

	return errors.New(strings.Join(attemptErrors, " | "))
}

func runCommand(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", formatCommand(name, args), installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", formatCommand(name, args), err)
	}
	return fmt.Errorf("%s failed: %w (%s)", formatCommand(name, args), err, trimmed)
}

func formatCommand(name string, args []string) string {
	parts := append([]string{name}, args...)
	return strings.Join(parts, " ")
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func requireToolsOnPath(names ...string) error {
	missing := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}
