package demux

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmylchreest/avkit/internal/codec"
	"github.com/jmylchreest/avkit/internal/ffmpeg"
)

// FFmpegDemuxerConfig configures an ffmpeg stream copy.
type FFmpegDemuxerConfig struct {
	FFmpegPath  string
	FFprobePath string
	LogLevel    string
	Logger      *slog.Logger
}

// Output is one elementary file produced by a stream copy.
type Output struct {
	Stream Stream
	Path   string
	Bytes  int64
}

// FFmpegDemuxer extracts the first video and audio stream of any container
// ffmpeg reads, used for inputs the Go TS demuxer does not handle.
type FFmpegDemuxer struct {
	config FFmpegDemuxerConfig
	prober *ffmpeg.Prober
}

// NewFFmpegDemuxer returns a demuxer using the given binaries.
func NewFFmpegDemuxer(config FFmpegDemuxerConfig) *FFmpegDemuxer {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &FFmpegDemuxer{config: config, prober: ffmpeg.NewProber(config.FFprobePath)}
}

// copyPlan is one stream selected for extraction.
type copyPlan struct {
	stream   Stream
	selector string // -map specifier
	muxer    string
	bsf      ffmpeg.BitstreamFilterInfo
}

// plan probes input and picks the first video and first audio stream with an
// elementary muxer.
func (d *FFmpegDemuxer) plan(ctx context.Context, input string) ([]copyPlan, error) {
	result, err := d.prober.Probe(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", input, err)
	}

	var plans []copyPlan
	for i, s := range result.StreamsByType("video") {
		if s.Disposition.AttachedPic == 1 {
			continue
		}
		v, ok := codec.ParseVideo(s.CodecName)
		if !ok || v.RawMuxer() == "" {
			d.config.Logger.Debug("skipping video stream",
				slog.Int("index", s.Index), slog.String("codec", s.CodecName))
			continue
		}
		plans = append(plans, copyPlan{
			stream:   Stream{PID: uint16(s.Index), Kind: KindVideo, Video: v}, //nolint:gosec // stream index
			selector: fmt.Sprintf("0:v:%d", i),
			muxer:    v.RawMuxer(),
			bsf:      ffmpeg.AnnexBFilter(s.CodecName, result.Format.FormatName),
		})
		break
	}
	for i, s := range result.StreamsByType("audio") {
		a, ok := codec.ParseAudio(s.CodecName)
		if !ok || a.RawMuxer() == "" {
			d.config.Logger.Debug("skipping audio stream",
				slog.Int("index", s.Index), slog.String("codec", s.CodecName))
			continue
		}
		plans = append(plans, copyPlan{
			stream: Stream{
				PID:        uint16(s.Index), //nolint:gosec // stream index
				Kind:       KindAudio,
				Audio:      a,
				SampleRate: s.SampleRateHz(),
				Channels:   s.Channels,
			},
			selector: fmt.Sprintf("0:a:%d", i),
			muxer:    a.RawMuxer(),
		})
		break
	}

	if len(plans) == 0 {
		return nil, ErrNoStreams
	}
	return plans, nil
}

func (d *FFmpegDemuxer) buildCopyCommand(input, output string, p copyPlan) *ffmpeg.Command {
	b := ffmpeg.NewCommandBuilder(d.config.FFmpegPath).
		LogLevel(d.config.LogLevel).
		HideBanner().
		NoStdin().
		Overwrite().
		Input(input).
		Map(p.selector)
	if p.stream.Kind == KindVideo {
		b.CopyCodec("v")
	} else {
		b.CopyCodec("a")
	}
	ffmpeg.ApplyBitstreamFilters(b, p.bsf)
	return b.OutputFormat(p.muxer).Output(output).Build()
}

// Extract writes each selected stream of input to dir, named after the input
// with the stream's elementary extension.
func (d *FFmpegDemuxer) Extract(ctx context.Context, input, dir string) ([]Output, error) {
	plans, err := d.plan(ctx, input)
	if err != nil {
		return nil, err
	}

	outputs := make([]Output, 0, len(plans))
	for _, p := range plans {
		path := OutputName(input, p.stream.Extension())
		if dir != "" {
			path = filepath.Join(dir, path)
		}

		cmd := d.buildCopyCommand(input, path, p)
		d.config.Logger.Debug("copying stream",
			slog.String("codec", p.stream.CodecName()),
			slog.String("output", path),
			slog.String("command", cmd.String()))
		if err := cmd.Run(ctx); err != nil {
			return outputs, fmt.Errorf("copying %s stream: %w", p.stream.Kind, err)
		}

		out := Output{Stream: p.stream, Path: path}
		if fi, err := os.Stat(path); err == nil {
			out.Bytes = fi.Size()
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}
