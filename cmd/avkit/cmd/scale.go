package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/avkit/internal/config"
	"github.com/jmylchreest/avkit/internal/media"
	"github.com/jmylchreest/avkit/internal/observability"
	"github.com/jmylchreest/avkit/internal/transcode"
)

const scaleUsage = `Usage: avkit scale output_file output_size
API example program to show how to scale an image with libswscale.
This program generates a series of pictures, rescales them to the given output_size and saves them to an output file named output_file.
`

var scaleCmd = &cobra.Command{
	Use:   "scale <output_file> <output_size>",
	Short: "Scale a synthetic picture series to RGB24",
	Long:  scaleUsage,
	RunE:  runScale,
}

func init() {
	scaleCmd.Flags().String("engine", "", "scaling engine, ffmpeg or native (default from scale.engine)")
	bindFlag(scaleCmd, "scale.engine", "engine")
	rootCmd.AddCommand(scaleCmd)
}

// newFrameScaler returns the scaler for the configured engine.
func newFrameScaler(ctx context.Context, cfg *config.Config, ffmpegPath string, dst media.Size, logger *slog.Logger) (transcode.FrameScaler, error) {
	if cfg.Scale.Engine == config.EngineNative {
		return transcode.NewNativeScaler(dst.Width, dst.Height)
	}
	return transcode.NewScaler(ctx, ffmpegPath, transcode.ScalerConfig{
		SrcWidth:  cfg.Scale.SourceWidth,
		SrcHeight: cfg.Scale.SourceHeight,
		SrcFormat: media.PixFmtYUV420P,
		DstWidth:  dst.Width,
		DstHeight: dst.Height,
		DstFormat: media.PixFmtRGB24,
		Flags:     "bilinear",
		LogLevel:  cfg.FFmpeg.LogLevel,
		Logger:    logger,
	})
}

func runScale(cmd *cobra.Command, args []string) (err error) {
	if len(args) < 2 {
		fmt.Fprint(cmd.ErrOrStderr(), scaleUsage)
		return errUsage
	}
	output, sizeArg := args[0], args[1]

	dst, err := media.ParseVideoSize(sizeArg)
	if err != nil {
		return fmt.Errorf("Invalid size '%s', must be in the form WxH or a valid size abbreviation", sizeArg) //nolint:staticcheck // user facing message
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel, logger := commandContext(cmd, cfg, "scale")
	defer cancel()
	defer observability.TimedOperationWithError(ctx, logger, "scale", &err)()

	var ffmpegPath string
	if cfg.Scale.Engine != config.EngineNative {
		_, info, err := detectBinaries(ctx, cfg)
		if err != nil {
			return err
		}
		ffmpegPath = info.FFmpegPath
	}

	out, err := os.Create(output) //nolint:gosec // user supplied output
	if err != nil {
		return fmt.Errorf("could not open destination file %s: %w", output, err)
	}
	defer out.Close()
	dstWriter := bufio.NewWriter(out)

	var srcWriter *bufio.Writer
	if cfg.Scale.SourceOutput != "" {
		f, err := os.Create(cfg.Scale.SourceOutput) //nolint:gosec // configured output
		if err != nil {
			return fmt.Errorf("could not open source file %s: %w", cfg.Scale.SourceOutput, err)
		}
		defer f.Close()
		srcWriter = bufio.NewWriter(f)
	}

	scaler, err := newFrameScaler(ctx, cfg, ffmpegPath, dst, logger)
	if err != nil {
		return err
	}
	defer scaler.Close()

	src, err := media.NewVideoFrame(cfg.Scale.SourceWidth, cfg.Scale.SourceHeight, media.PixFmtYUV420P, 16)
	if err != nil {
		return err
	}

	written := 0
	writeAll := func(frames []*media.VideoFrame) error {
		for _, f := range frames {
			if _, err := f.WriteTo(dstWriter); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			written++
		}
		return nil
	}

	for i := 0; i < cfg.Scale.Frames; i++ {
		if err := media.FillPattern(src, i, media.PatternScale); err != nil {
			return err
		}
		if srcWriter != nil {
			if _, err := src.WriteTo(srcWriter); err != nil {
				return fmt.Errorf("writing %s: %w", cfg.Scale.SourceOutput, err)
			}
		}
		frames, err := scaler.Scale(src)
		if err != nil {
			return err
		}
		if err := writeAll(frames); err != nil {
			return err
		}
	}
	rest, err := scaler.Flush()
	if err != nil {
		return err
	}
	if err := writeAll(rest); err != nil {
		return err
	}

	for _, w := range []*bufio.Writer{dstWriter, srcWriter} {
		if w == nil {
			continue
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	logger.Debug("scaled frames", slog.Int("frames", written), slog.String("engine", cfg.Scale.Engine))

	printScaleDone(cmd.ErrOrStderr(), dst, output)
	return nil
}

func printScaleDone(w io.Writer, dst media.Size, output string) {
	fmt.Fprintf(w, "Scaling succeeded. Play the output file with the command:\n"+
		"ffplay -f rawvideo -pix_fmt rgb24 -video_size %dx%d %s\n", dst.Width, dst.Height, output)
}
