package config

import (
	"os"
	"path/filepath"

	"potrace-svg/internal/domain"
)

// DefaultRasterizer is the ImageMagick command looked up on PATH.
const DefaultRasterizer = "convert"

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		RasterizerCommand: DefaultRasterizer,
		LogLevel:          "INFO",
	}
}

// AppDir returns the per-user directory holding settings, logs, and launchers.
func AppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".potrace-svg")
}

// SettingsPath returns the default settings file location.
func SettingsPath() string {
	return filepath.Join(AppDir(), "settings.json")
}

// LogDir returns the default log directory for the desktop app.
func LogDir() string {
	return filepath.Join(AppDir(), "logs")
}
