package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/avkit/internal/ffmpeg"
	"github.com/jmylchreest/avkit/internal/media"
	"github.com/jmylchreest/avkit/internal/observability"
	"github.com/jmylchreest/avkit/internal/transcode"
)

var extractFramesCmd = &cobra.Command{
	Use:   "extract-frames <input>",
	Short: "Save the first video frames of a file as PPM images",
	Long: `Decode the best video stream of a media file, convert it to RGB24 and
save the first frames.count frames as frame1.ppm, frame2.ppm, ...`,
	Args: cobra.ExactArgs(1),
	RunE: runExtractFrames,
}

func init() {
	extractFramesCmd.Flags().Int("count", 0, "number of frames to save (default from frames.count)")
	bindFlag(extractFramesCmd, "frames.count", "count")
	rootCmd.AddCommand(extractFramesCmd)
}

func runExtractFrames(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel, logger := commandContext(cmd, cfg, "extract_frames")
	defer cancel()
	defer observability.TimedOperationWithError(ctx, logger, "extract_frames", &err)()

	_, info, err := detectBinaries(ctx, cfg)
	if err != nil {
		return err
	}

	input := args[0]
	probe, err := ffmpeg.NewProber(info.FFprobePath).Probe(ctx, input)
	if err != nil {
		return fmt.Errorf("couldn't open input stream: %w", err)
	}
	stream, err := probe.BestVideoStream()
	if err != nil {
		return fmt.Errorf("didn't find a video stream: %w", err)
	}
	logger.Info("decoding video stream",
		slog.String("input", input),
		slog.Int("stream", stream.Index),
		slog.String("codec", stream.CodecName),
		slog.Int("width", stream.Width),
		slog.Int("height", stream.Height))

	dec, err := transcode.NewFileVideoDecoder(ctx, info.FFmpegPath, transcode.FileVideoDecoderConfig{
		Input:       input,
		StreamIndex: stream.Index,
		Width:       stream.Width,
		Height:      stream.Height,
		PixelFormat: media.PixFmtRGB24,
		MaxFrames:   cfg.Frames.Count,
		LogLevel:    cfg.FFmpeg.LogLevel,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer dec.Close()

	saved := 0
	for saved < cfg.Frames.Count {
		frame, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		saved++
		name := fmt.Sprintf("%s%d.ppm", cfg.Frames.Prefix, saved)
		if err := media.SavePPM(name, frame); err != nil {
			return err
		}
	}

	logger.Info("frames saved", slog.Int("count", saved))
	return nil
}
