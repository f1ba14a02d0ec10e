// Package main is the command-line entry point for potrace-svg. It runs the
// same raster-to-SVG pipeline as the desktop app without any dialogs.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"potrace-svg/internal/config"
	"potrace-svg/internal/domain"
	"potrace-svg/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the potrace-svg CLI.
var rootCmd = &cobra.Command{
	Use:   "potrace-svg",
	Short: "Convert raster images to SVG with ImageMagick and Potrace",
	Long: `potrace-svg rasterizes an image into a temporary PGM bitmap with
ImageMagick and traces it into an SVG with Potrace.

Potrace is expected next to this program unless --tracer or the
POTRACE_SVG_TRACER environment variable points elsewhere. ImageMagick's
convert command is looked up on PATH.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.potrace-svg/config.yaml)")
	flags.String(config.KeyRasterizer, "", "ImageMagick command or path (default: convert)")
	flags.String(config.KeyTracer, "", "absolute path to potrace (default: next to this program)")
	flags.String(config.KeyLogLevel, "", "log level: DEBUG, INFO, WARN, or ERROR")

	for _, key := range []string{config.KeyRasterizer, config.KeyTracer, config.KeyLogLevel} {
		_ = viper.BindPFlag(key, flags.Lookup(key))
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.AppDir())
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// resolveSettings layers flags, environment, and the config file over the
// settings saved by the desktop app.
func resolveSettings(store config.Store, v *viper.Viper) (domain.Settings, error) {
	settings, err := store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return config.Overlay(v, settings), nil
}

// loadEnvironment resolves settings, tools, and the logger for a command.
func loadEnvironment() (domain.Settings, config.Tools, *logging.Logger, error) {
	settings, err := resolveSettings(config.NewJSONStore(config.SettingsPath()), viper.GetViper())
	if err != nil {
		return domain.Settings{}, config.Tools{}, nil, err
	}

	logger, err := logging.NewLogger(config.LogDir(), settings.LogLevel)
	if err != nil {
		logger = logging.Nop()
	}

	tools, err := config.ResolveTools(settings, os.Executable)
	return settings, tools, logger, err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
