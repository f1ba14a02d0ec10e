package bootstrap

import (
	"context"
	"os"
	"strings"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"potrace-svg/internal/domain"
)

var imageDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Image files",
		Pattern:     "*.png;*.jpg;*.jpeg;*.bmp;*.gif;*.tif;*.tiff;*.ppm;*.pgm;*.pbm",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

var svgDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "SVG files",
		Pattern:     "*.svg",
	},
}

// Dialogs prompts the user for paths and shows modal messages.
// An empty path with a nil error means the user cancelled.
type Dialogs interface {
	PickInput(defaultDir string) (string, error)
	PickOutput(defaultDir, suggestedName string) (string, error)
	ShowMessage(notice domain.Notice) error
}

// wailsDialogs implements Dialogs with native Wails dialogs.
type wailsDialogs struct {
	runtime func() (context.Context, error)
}

// PickInput opens a native file dialog for image selection.
func (d *wailsDialogs) PickInput(defaultDir string) (string, error) {
	ctx, err := d.runtime()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:            "Select image",
		DefaultDirectory: existingDir(defaultDir),
		Filters:          imageDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickOutput opens a native save dialog. The platform dialog asks before
// replacing an existing file.
func (d *wailsDialogs) PickOutput(defaultDir, suggestedName string) (string, error) {
	ctx, err := d.runtime()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.SaveFileDialog(ctx, wailsruntime.SaveDialogOptions{
		Title:                "Save SVG as",
		DefaultDirectory:     existingDir(defaultDir),
		DefaultFilename:      suggestedName,
		Filters:              svgDialogFilter,
		CanCreateDirectories: true,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// ShowMessage blocks until the user dismisses the message box.
func (d *wailsDialogs) ShowMessage(notice domain.Notice) error {
	ctx, err := d.runtime()
	if err != nil {
		return err
	}

	_, err = wailsruntime.MessageDialog(ctx, wailsruntime.MessageDialogOptions{
		Type:    dialogType(notice.Severity),
		Title:   notice.Title,
		Message: notice.Body,
	})
	return err
}

func dialogType(severity domain.Severity) wailsruntime.DialogType {
	if severity == domain.SeverityError {
		return wailsruntime.ErrorDialog
	}
	return wailsruntime.InfoDialog
}

// existingDir drops remembered directories that no longer exist.
func existingDir(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return ""
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return ""
	}
	return dir
}
