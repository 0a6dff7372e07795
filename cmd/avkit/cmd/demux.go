package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/avkit/internal/codec"
	"github.com/jmylchreest/avkit/internal/config"
	"github.com/jmylchreest/avkit/internal/demux"
	"github.com/jmylchreest/avkit/internal/observability"
)

var demuxCmd = &cobra.Command{
	Use:   "demux [input]",
	Short: "Split a file into elementary video and audio streams",
	Long: `Write the first video stream of a file as an elementary stream (Annex B
for H.264/HEVC) and the first audio stream as ADTS AAC or bare MPEG audio
frames.

MPEG-TS input is demuxed in Go. Other containers (mp4, flv, mkv) are stream
copied by ffmpeg with h264_mp4toannexb applied to H.264 video.

Default input: cuc_ieschool.ts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDemux,
}

func init() {
	demuxCmd.Flags().String("video-output", "", "video output file (default derived from the input name)")
	demuxCmd.Flags().String("audio-output", "", "audio output file (default derived from the input name)")
	demuxCmd.Flags().Bool("dump", true, "print the input and output stream tables")
	bindFlag(demuxCmd, "demux.video_output", "video-output")
	bindFlag(demuxCmd, "demux.audio_output", "audio-output")
	bindFlag(demuxCmd, "demux.dump", "dump")
	rootCmd.AddCommand(demuxCmd)
}

func runDemux(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel, logger := commandContext(cmd, cfg, "demux")
	defer cancel()
	defer observability.TimedOperationWithError(ctx, logger, "demux", &err)()

	input := argOr(args, 0, cfg.Demux.Input)
	if !isTransportStream(input) {
		return runFFmpegDemux(ctx, cmd, cfg, input, logger)
	}

	f, err := os.Open(input) //nolint:gosec // user supplied input
	if err != nil {
		return fmt.Errorf("could not open input file: %w", err)
	}
	defer f.Close()

	stdout := cmd.OutOrStdout()
	var videoOut, audioOut *demux.ElementaryWriter

	d, err := demux.NewTSDemuxer(f, demux.TSDemuxerConfig{
		Logger:     logger,
		BufferSize: cfg.Demux.BufferSize.Int(),
		OnVideo: func(p demux.Packet) error {
			fmt.Fprintf(stdout, "Write Video Packet. size:%d\tpts:%d\n", len(p.Data), p.PTS)
			return videoOut.WritePacket(p)
		},
		OnAudio: func(p demux.Packet) error {
			fmt.Fprintf(stdout, "Write Audio Packet. size:%d\tpts:%d\n", len(p.Data), p.PTS)
			return audioOut.WritePacket(p)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to retrieve input stream information: %w", err)
	}

	if s := d.Video(); s != nil {
		videoOut, err = demux.CreateElementaryWriter(outputPath(cfg.Demux.VideoOutput, input, s))
		if err != nil {
			return err
		}
		defer closeWriter(videoOut, &err)
	}
	if s := d.Audio(); s != nil {
		audioOut, err = demux.CreateElementaryWriter(outputPath(cfg.Demux.AudioOutput, input, s))
		if err != nil {
			return err
		}
		defer closeWriter(audioOut, &err)
	}

	for _, s := range []*demux.Stream{d.Video(), d.Audio()} {
		if s != nil {
			fmt.Fprintln(stdout, s.CodecName())
		}
	}
	if cfg.Demux.Dump {
		dumpTSStreams(stdout, input, d.Tracks(), videoOut, audioOut)
	}

	stats, err := d.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("demux finished",
		slog.Uint64("video_packets", stats.VideoPackets),
		slog.String("video_bytes", humanize.IBytes(stats.VideoBytes)),
		slog.Uint64("audio_packets", stats.AudioPackets),
		slog.String("audio_bytes", humanize.IBytes(stats.AudioBytes)),
		slog.Uint64("decode_errors", stats.DecodeErrors))
	return nil
}

// outputPath returns the configured name or one derived from the input.
func outputPath(configured, input string, s *demux.Stream) string {
	if configured != "" {
		return configured
	}
	return demux.OutputName(input, s.Extension())
}

func closeWriter(w *demux.ElementaryWriter, err *error) {
	if cerr := w.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

func dumpTSStreams(w io.Writer, input string, tracks []*mpegts.Track, outputs ...*demux.ElementaryWriter) {
	fmt.Fprintln(w, "==============Input Video=============")
	fmt.Fprintf(w, "Input #0, mpegts, from '%s':\n", input)
	for i, t := range tracks {
		name := "unsupported"
		if v, a := codec.FromTrack(t.Codec); v != "" {
			name = "Video: " + v.String()
		} else if a != "" {
			name = "Audio: " + a.String()
		}
		fmt.Fprintf(w, "  Stream #0:%d[0x%x]: %s\n", i, t.PID, name)
	}
	fmt.Fprintln(w, "==============Output Video============")
	n := 0
	for _, o := range outputs {
		if o == nil {
			continue
		}
		fmt.Fprintf(w, "Output #%d, to '%s'\n", n, o.Path())
		n++
	}
	fmt.Fprintln(w, "======================================")
}

// runFFmpegDemux stream copies non-TS inputs with ffmpeg.
func runFFmpegDemux(ctx context.Context, cmd *cobra.Command, cfg *config.Config, input string, logger *slog.Logger) error {
	_, info, err := detectBinaries(ctx, cfg)
	if err != nil {
		return err
	}

	d := demux.NewFFmpegDemuxer(demux.FFmpegDemuxerConfig{
		FFmpegPath:  info.FFmpegPath,
		FFprobePath: info.FFprobePath,
		LogLevel:    cfg.FFmpeg.LogLevel,
		Logger:      logger,
	})
	outputs, err := d.Extract(ctx, input, ".")
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	for _, o := range outputs {
		path := o.Path
		configured := cfg.Demux.AudioOutput
		if o.Stream.Kind == demux.KindVideo {
			configured = cfg.Demux.VideoOutput
		}
		if configured != "" && configured != path {
			if err := os.Rename(path, configured); err != nil {
				return fmt.Errorf("renaming %s: %w", path, err)
			}
			path = configured
		}
		fmt.Fprintln(stdout, o.Stream.CodecName())
		logger.Info("stream extracted",
			slog.String("kind", string(o.Stream.Kind)),
			slog.String("output", path),
			slog.String("size", humanize.IBytes(uint64(o.Bytes)))) //nolint:gosec // sizes are non-negative
	}
	if len(outputs) == 0 {
		return errors.New("no stream could be extracted")
	}
	return nil
}
