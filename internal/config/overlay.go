package config

import (
	"strings"

	"github.com/spf13/viper"

	"potrace-svg/internal/domain"
)

// Viper keys recognised by Overlay.
const (
	KeyRasterizer = "rasterizer"
	KeyTracer     = "tracer"
	KeyLogLevel   = "log-level"
)

// EnvPrefix is the environment variable prefix, e.g. POTRACE_SVG_TRACER.
const EnvPrefix = "POTRACE_SVG"

// NewViper returns a viper instance reading POTRACE_SVG_* variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Overlay applies non-empty viper values (flags, env, config file) on top of
// stored settings.
func Overlay(v *viper.Viper, settings domain.Settings) domain.Settings {
	if v == nil {
		return Normalize(settings)
	}
	if value := strings.TrimSpace(v.GetString(KeyRasterizer)); value != "" {
		settings.RasterizerCommand = value
	}
	if value := strings.TrimSpace(v.GetString(KeyTracer)); value != "" {
		settings.TracerPath = value
	}
	if value := strings.TrimSpace(v.GetString(KeyLogLevel)); value != "" {
		settings.LogLevel = value
	}
	return Normalize(settings)
}

// Normalize trims user inputs and fills defaults for empty fields.
func Normalize(settings domain.Settings) domain.Settings {
	settings.RasterizerCommand = strings.TrimSpace(settings.RasterizerCommand)
	settings.TracerPath = strings.TrimSpace(settings.TracerPath)
	settings.LogLevel = strings.ToUpper(strings.TrimSpace(settings.LogLevel))
	settings.LastInputDir = strings.TrimSpace(settings.LastInputDir)
	settings.LastOutputDir = strings.TrimSpace(settings.LastOutputDir)

	defaults := DefaultSettings()
	if settings.RasterizerCommand == "" {
		settings.RasterizerCommand = defaults.RasterizerCommand
	}
	if settings.LogLevel == "" {
		settings.LogLevel = defaults.LogLevel
	}
	return settings
}
