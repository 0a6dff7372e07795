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
	"github.com/jmylchreest/avkit/internal/media"
	"github.com/jmylchreest/avkit/internal/observability"
	"github.com/jmylchreest/avkit/internal/transcode"
)

var encodeAudioCmd = &cobra.Command{
	Use:   "encode-audio [input] [output]",
	Short: "Encode raw PCM audio",
	Long: `Encode raw interleaved s16le PCM (44100 Hz stereo by default) to AAC
in ADTS framing, or to MP2 when audio.codec is mp2.

Defaults: tdjm.pcm to tdjm.aac.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runEncodeAudio,
}

func init() {
	encodeAudioCmd.Flags().String("codec", "", "audio codec, aac or mp2 (default from audio.codec)")
	encodeAudioCmd.Flags().Int("bitrate", 0, "bitrate in bits per second (default from audio.bitrate)")
	encodeAudioCmd.Flags().Int("frames", 0, "maximum frames to encode (default from audio.frames)")
	bindFlag(encodeAudioCmd, "audio.codec", "codec")
	bindFlag(encodeAudioCmd, "audio.bitrate", "bitrate")
	bindFlag(encodeAudioCmd, "audio.frames", "frames")
	rootCmd.AddCommand(encodeAudioCmd)
}

func runEncodeAudio(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel, logger := commandContext(cmd, cfg, "encode_audio")
	defer cancel()
	defer observability.TimedOperationWithError(ctx, logger, "encode_audio", &err)()

	input := argOr(args, 0, cfg.Audio.Input)
	output := argOr(args, 1, cfg.Audio.Output)

	ac, err := codec.LookupAudio(cfg.Audio.Codec)
	if err != nil {
		return err
	}
	frameSize, err := audioFrameSize(ac)
	if err != nil {
		return err
	}

	_, info, err := detectBinaries(ctx, cfg)
	if err != nil {
		return err
	}
	if !info.HasEncoder(ac.Encoder()) {
		return fmt.Errorf("can not find encoder %s: %w", ac.Encoder(), codec.ErrUnsupportedCodec)
	}

	in, err := os.Open(input) //nolint:gosec // user supplied input
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	f, err := os.Create(output) //nolint:gosec // user supplied output
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}
	defer f.Close()
	out := bufio.NewWriter(f)

	layout := media.LayoutForChannels(cfg.Audio.Channels)
	enc, err := transcode.NewAudioEncoder(ctx, info.FFmpegPath, transcode.AudioEncoderConfig{
		Codec:      ac,
		SampleRate: cfg.Audio.SampleRate,
		Layout:     layout,
		Bitrate:    cfg.Audio.Bitrate,
		LogLevel:   cfg.FFmpeg.LogLevel,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer enc.Close()

	stdout := cmd.OutOrStdout()
	frameCount := 0
	write := func(packets []transcode.Packet, flushing bool) error {
		for _, p := range packets {
			if flushing && enc.HasDelay() {
				fmt.Fprintf(stdout, "Flush Encoder: Succeed to encode 1 frame!\tsize:%5d\n", p.Size())
			} else {
				fmt.Fprintf(stdout, "Succeed to encode frame: %5d\tsize:%5d\n", frameCount, p.Size())
			}
			frameCount++
			if err := writePacket(out, p); err != nil {
				return err
			}
		}
		return nil
	}

	for i := 0; i < cfg.Audio.Frames; i++ {
		frame, err := media.NewAudioFrame(media.SampleFmtS16, layout, cfg.Audio.SampleRate, frameSize)
		if err != nil {
			return err
		}
		if err := frame.ReadFull(in); err != nil {
			if errors.Is(err, io.EOF) && i > 0 {
				break
			}
			return fmt.Errorf("failed to read raw data: %w", err)
		}
		frame.PTS = int64(i * frameSize)

		packets, err := enc.Encode(frame)
		if err != nil {
			return err
		}
		if err := write(packets, false); err != nil {
			return err
		}
		// a short frame is the end of the input
		if frame.NbSamples < frameSize {
			break
		}
	}

	rest, err := enc.Flush()
	if err != nil {
		return err
	}
	if err := write(rest, true); err != nil {
		return err
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}

	stats := enc.Stats()
	logger.Debug("encoder finished",
		slog.String("session_id", stats.SessionID),
		slog.Uint64("bytes_in", stats.BytesIn),
		slog.Uint64("packets", stats.ItemsOut))
	return nil
}

// audioFrameSize returns the samples per channel the encoder consumes per frame.
func audioFrameSize(ac codec.Audio) (int, error) {
	n := ac.FrameSize()
	if n <= 0 {
		return 0, fmt.Errorf("%s has no fixed frame size: %w", ac, codec.ErrUnsupportedCodec)
	}
	return n, nil
}
