package cmd

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/avkit/internal/config"
	"github.com/jmylchreest/avkit/internal/media"
	"github.com/jmylchreest/avkit/internal/observability"
	"github.com/jmylchreest/avkit/internal/transcode"
)

var encodePictureCmd = &cobra.Command{
	Use:   "encode-picture [input] [output]",
	Short: "Encode one raw YUV420P picture to JPEG",
	Long: `Encode a single yuv420p picture to JPEG, with ffmpeg's mjpeg encoder
or, with picture.engine set to native, the Go image/jpeg encoder.

Defaults: cuc_view_480x272.yuv to cuc_view_encode.jpg.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runEncodePicture,
}

func init() {
	encodePictureCmd.Flags().String("engine", "", "encoder engine, ffmpeg or native (default from picture.engine)")
	encodePictureCmd.Flags().Int("quality", 0, "JPEG quality 1-100 (default from picture.quality)")
	bindFlag(encodePictureCmd, "picture.engine", "engine")
	bindFlag(encodePictureCmd, "picture.quality", "quality")
	rootCmd.AddCommand(encodePictureCmd)
}

func runEncodePicture(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel, logger := commandContext(cmd, cfg, "encode_picture")
	defer cancel()
	defer observability.TimedOperationWithError(ctx, logger, "encode_picture", &err)()

	input := argOr(args, 0, cfg.Picture.Input)
	output := argOr(args, 1, cfg.Picture.Output)

	in, err := os.Open(input) //nolint:gosec // user supplied input
	if err != nil {
		return fmt.Errorf("couldn't open input file: %w", err)
	}
	defer in.Close()

	frame, err := media.NewVideoFrame(cfg.Picture.Width, cfg.Picture.Height, media.PixFmtYUV420P, 1)
	if err != nil {
		return err
	}
	if err := frame.ReadFull(in); err != nil {
		return fmt.Errorf("failed to read raw data: %w", err)
	}

	var data []byte
	switch cfg.Picture.Engine {
	case config.EngineNative:
		var buf bytes.Buffer
		if err := media.EncodeJPEG(&buf, frame, cfg.Picture.Quality); err != nil {
			return fmt.Errorf("encode error: %w", err)
		}
		data = buf.Bytes()
	default:
		_, info, err := detectBinaries(ctx, cfg)
		if err != nil {
			return err
		}
		enc, err := transcode.NewPictureEncoder(info.FFmpegPath, transcode.PictureEncoderConfig{
			Width:    cfg.Picture.Width,
			Height:   cfg.Picture.Height,
			Quality:  cfg.Picture.Quality,
			LogLevel: cfg.FFmpeg.LogLevel,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		pkt, err := enc.Encode(ctx, frame)
		if err != nil {
			return fmt.Errorf("encode error: %w", err)
		}
		data = pkt.Data
	}

	if err := os.WriteFile(output, data, 0o644); err != nil { //nolint:gosec // output is meant to be readable
		return fmt.Errorf("couldn't open output file: %w", err)
	}
	logger.Debug("picture written", slog.String("output", output), slog.Int("size", len(data)))
	fmt.Fprintln(cmd.OutOrStdout(), "Encode Successful.")
	return nil
}
