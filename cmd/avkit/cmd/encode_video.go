package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/avkit/internal/codec"
	"github.com/jmylchreest/avkit/internal/config"
	"github.com/jmylchreest/avkit/internal/media"
	"github.com/jmylchreest/avkit/internal/observability"
	"github.com/jmylchreest/avkit/internal/transcode"
)

var encodeVideoCmd = &cobra.Command{
	Use:   "encode-video [input] [output]",
	Short: "Encode raw YUV420P video",
	Long: `Encode a raw yuv420p file. The output format is guessed from the file
name: .h264 and .hevc write elementary streams packet by packet, .m1v writes
MPEG-1 video, container extensions (.mp4, .mkv, .ts, .flv) are muxed by ffmpeg.

Defaults: ds_480x272.yuv to ds.h264.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runEncodeVideo,
}

func init() {
	encodeVideoCmd.Flags().Int("width", 0, "input width (default from video.width)")
	encodeVideoCmd.Flags().Int("height", 0, "input height (default from video.height)")
	encodeVideoCmd.Flags().Int("frames", 0, "maximum frames to encode (default from video.frames)")
	encodeVideoCmd.Flags().Int("bitrate", 0, "bitrate in bits per second (default from video.bitrate)")
	bindFlag(encodeVideoCmd, "video.width", "width")
	bindFlag(encodeVideoCmd, "video.height", "height")
	bindFlag(encodeVideoCmd, "video.frames", "frames")
	bindFlag(encodeVideoCmd, "video.bitrate", "bitrate")
	rootCmd.AddCommand(encodeVideoCmd)
}

// videoEncoderOptions returns the private options each encoder is run with.
func videoEncoderOptions(v codec.Video) []transcode.Option {
	switch v {
	case codec.VideoH264:
		return []transcode.Option{{Key: "preset", Value: "slow"}, {Key: "tune", Value: "zerolatency"}}
	case codec.VideoH265:
		return []transcode.Option{{Key: "preset", Value: "ultrafast"}, {Key: "tune", Value: "zerolatency"}}
	}
	return nil
}

// videoEncoderConfig resolves the output file name into an encoder setup.
func videoEncoderConfig(vc config.VideoConfig, output string, logger *slog.Logger) (transcode.VideoEncoderConfig, error) {
	format, err := codec.GuessFormat(output)
	if err != nil {
		return transcode.VideoEncoderConfig{}, fmt.Errorf("could not deduce output format from file extension: %w", err)
	}

	cfg := transcode.VideoEncoderConfig{
		Width:       vc.Width,
		Height:      vc.Height,
		TimeBaseNum: 1,
		TimeBaseDen: vc.FrameRate,
		Bitrate:     vc.Bitrate,
		GOPSize:     vc.GOPSize,
		MaxBFrames:  vc.MaxBFrames,
		QMin:        vc.QMin,
		QMax:        vc.QMax,
		Logger:      logger,
	}

	switch {
	case format.Container:
		cfg.Codec = codec.VideoH264
		cfg.Output = output
		cfg.Format = format.Name
	case format.Video != "":
		cfg.Codec = format.Video
	default:
		return cfg, fmt.Errorf("%s is an audio format: %w", output, codec.ErrUnsupportedCodec)
	}
	cfg.Options = videoEncoderOptions(cfg.Codec)
	return cfg, nil
}

func runEncodeVideo(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel, logger := commandContext(cmd, cfg, "encode_video")
	defer cancel()
	defer observability.TimedOperationWithError(ctx, logger, "encode_video", &err)()

	input := argOr(args, 0, cfg.Video.Input)
	output := argOr(args, 1, cfg.Video.Output)

	_, info, err := detectBinaries(ctx, cfg)
	if err != nil {
		return err
	}

	encCfg, err := videoEncoderConfig(cfg.Video, output, logger)
	if err != nil {
		return err
	}
	encCfg.LogLevel = cfg.FFmpeg.LogLevel
	if !info.HasEncoder(encCfg.Codec.Encoder()) {
		return fmt.Errorf("can not find encoder %s: %w", encCfg.Codec.Encoder(), codec.ErrUnsupportedCodec)
	}

	in, err := os.Open(input) //nolint:gosec // user supplied input
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	var out *bufio.Writer
	if encCfg.Output == "" {
		f, err := os.Create(output) //nolint:gosec // user supplied output
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		defer f.Close()
		out = bufio.NewWriter(f)
	}

	enc, err := transcode.NewVideoEncoder(ctx, info.FFmpegPath, encCfg)
	if err != nil {
		return err
	}
	defer enc.Close()

	frame, err := media.NewVideoFrame(encCfg.Width, encCfg.Height, media.PixFmtYUV420P, 32)
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	frameCount := 0
	for i := 0; i < cfg.Video.Frames; i++ {
		ok, err := readRawFrame(frame, in, i)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		frame.PTS = int64(i)

		packets, err := enc.Encode(frame)
		if err != nil {
			return err
		}
		for _, p := range packets {
			fmt.Fprintf(stdout, "Succeed to encode frame: %5d\tsize:%5d\n", frameCount, p.Size())
			frameCount++
			if err := writePacket(out, p); err != nil {
				return err
			}
		}
	}

	rest, err := enc.Flush()
	if err != nil {
		return err
	}
	for _, p := range rest {
		if enc.HasDelay() {
			fmt.Fprintf(stdout, "Flush Encoder: Succeed to encode 1 frame!\tsize:%5d\n", p.Size())
		} else {
			fmt.Fprintf(stdout, "Succeed to encode frame: %5d\tsize:%5d\n", frameCount, p.Size())
		}
		frameCount++
		if err := writePacket(out, p); err != nil {
			return err
		}
	}

	if out != nil {
		if err := out.Flush(); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
	}

	stats := enc.Stats()
	logger.Debug("encoder finished",
		slog.String("session_id", stats.SessionID),
		slog.Uint64("frames", stats.ItemsIn),
		slog.Uint64("packets", stats.ItemsOut),
		slog.Uint64("bytes_out", stats.BytesOut))
	return nil
}

// readRawFrame reads picture i of a raw yuv file. It reports false at end of
// input, dropping a trailing partial picture. An input without a single byte
// of picture data is an error.
func readRawFrame(frame *media.VideoFrame, r io.Reader, i int) (bool, error) {
	err := frame.ReadFull(r)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, media.ErrShortFrame), errors.Is(err, io.EOF) && i > 0:
		return false, nil
	}
	return false, fmt.Errorf("failed to read raw data: %w", err)
}

// writePacket appends a packet to w; a nil writer means ffmpeg owns the output.
func writePacket(w *bufio.Writer, p transcode.Packet) error {
	if w == nil {
		return nil
	}
	if _, err := w.Write(p.Data); err != nil {
		return fmt.Errorf("writing packet: %w", err)
	}
	return nil
}
