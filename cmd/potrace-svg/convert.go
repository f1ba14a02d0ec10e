package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"potrace-svg/internal/vectorize"
)

// errOutputExists is returned when the destination exists and --force is unset.
var errOutputExists = errors.New("output file already exists (use --force to overwrite)")

var convertCmd = &cobra.Command{
	Use:   "convert <image>",
	Short: "Convert one raster image to SVG",
	Long: `Convert rasterizes the image to a temporary PGM bitmap with ImageMagick,
traces the bitmap with Potrace, and writes the SVG. The temporary bitmap is
always removed. Without --output the SVG is written next to the image.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		force, _ := cmd.Flags().GetBool("force")

		_, tools, logger, err := loadEnvironment()
		defer func() { _ = logger.Close() }()
		if err != nil {
			return reportFailure(cmd.ErrOrStderr(), err)
		}

		log := logger.WithJob("cli-" + uuid.NewString())
		pipeline, err := vectorize.NewPipeline(tools, vectorize.WithLogger(log))
		if err != nil {
			return reportFailure(cmd.ErrOrStderr(), err)
		}

		return convertFile(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), pipeline, args[0], output, force)
	},
}

func init() {
	convertCmd.Flags().StringP("output", "o", "", "SVG destination (default: <image name>.svg next to the image)")
	convertCmd.Flags().BoolP("force", "f", false, "overwrite an existing output file")

	rootCmd.AddCommand(convertCmd)
}

// converter is satisfied by *vectorize.Pipeline.
type converter interface {
	Convert(ctx context.Context, req vectorize.Request) (vectorize.Result, error)
}

// convertFile runs one conversion, printing status lines to out and a
// human-readable failure to errOut.
func convertFile(ctx context.Context, out, errOut io.Writer, pipeline converter, input, output string, force bool) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return fmt.Errorf("image path is required")
	}
	output = defaultOutputPath(input, output)

	if !force {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("%s: %w", output, errOutputExists)
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	result, err := pipeline.Convert(ctx, vectorize.Request{
		InputPath:  input,
		OutputPath: output,
		OnStatus: func(text string) {
			fmt.Fprintln(out, text)
		},
	})
	if err != nil {
		return reportFailure(errOut, err)
	}

	fmt.Fprintln(out, result.Message)
	return nil
}

// defaultOutputPath places <base>.svg next to the input when output is empty.
func defaultOutputPath(input, output string) string {
	if output = strings.TrimSpace(output); output != "" {
		return output
	}
	return filepath.Join(filepath.Dir(input), vectorize.SuggestedOutputName(input))
}

// reportFailure prints the same message the desktop app shows in its error
// dialog and returns err for cobra's exit status.
func reportFailure(w io.Writer, err error) error {
	notice := vectorize.Describe(err)
	fmt.Fprintf(w, "%s: %s\n", notice.Title, notice.Body)
	return &reportedError{err: err}
}

// reportedError marks errors already printed to the user.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }
