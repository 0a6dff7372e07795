package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmylchreest/avkit/internal/codec"
	"github.com/jmylchreest/avkit/internal/ffmpeg"
	"github.com/jmylchreest/avkit/internal/media"
)

// Option is an encoder private option such as preset or tune.
type Option struct {
	Key   string
	Value string
}

// VideoEncoderConfig configures a VideoEncoder.
type VideoEncoderConfig struct {
	// Codec selects the encoder, muxer and packet parser.
	Codec codec.Video

	// Encoder overrides the registry's ffmpeg encoder name.
	Encoder string

	Width  int
	Height int

	// InputFormat is the pixel format of the frames handed to Encode.
	// Default: yuv420p.
	InputFormat media.PixelFormat

	// PixelFormat is what the encoder is fed after ffmpeg converts.
	// Default: the codec's pixel format.
	PixelFormat media.PixelFormat

	// Time base as a fraction of a second per frame, e.g. 1/25.
	TimeBaseNum int
	TimeBaseDen int

	Bitrate    int // bits per second, 0 leaves the encoder default
	GOPSize    int
	MaxBFrames int // negative leaves the encoder default
	QMin       int
	QMax       int

	// Options are encoder private options in command line order.
	Options []Option

	// Output, when set, makes ffmpeg write the file itself. Encode then
	// returns no packets and progress is logged instead.
	Output string
	// Format forces the muxer for Output. Default: guessed by ffmpeg.
	Format string

	// LogLevel is ffmpeg's -loglevel. Default: error.
	LogLevel string
	// ExtraOptions are appended to the output arguments verbatim.
	ExtraOptions string

	// Logger for structured logging. Default: the context logger.
	Logger *slog.Logger
}

func (c *VideoEncoderConfig) applyDefaults() {
	if c.InputFormat == "" {
		c.InputFormat = media.PixFmtYUV420P
	}
	if c.PixelFormat == "" {
		c.PixelFormat = c.Codec.PixelFormat()
	}
	if c.Encoder == "" {
		c.Encoder = c.Codec.Encoder()
	}
	if c.TimeBaseNum <= 0 || c.TimeBaseDen <= 0 {
		c.TimeBaseNum, c.TimeBaseDen = 1, 25
	}
}

func (c *VideoEncoderConfig) validate() error {
	if c.Encoder == "" {
		return fmt.Errorf("video codec %q: %w", c.Codec, codec.ErrUnsupportedCodec)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid video size %dx%d", c.Width, c.Height)
	}
	if c.Output == "" && (c.Codec.RawMuxer() == "" || c.Codec.Splitter() == nil) {
		return fmt.Errorf("video codec %q has no elementary stream parser, set an output file", c.Codec)
	}
	return nil
}

// hasOption reports whether key is among opts.
func hasOption(opts []Option, key string) bool {
	for _, o := range opts {
		if o.Key == key {
			return true
		}
	}
	return false
}

// buildVideoEncoderCommand turns the config into an ffmpeg command reading raw
// frames from stdin.
func buildVideoEncoderCommand(ffmpegPath string, cfg VideoEncoderConfig) *ffmpeg.Command {
	frameRate := 0
	if cfg.TimeBaseDen%cfg.TimeBaseNum == 0 {
		frameRate = cfg.TimeBaseDen / cfg.TimeBaseNum
	}

	b := ffmpeg.NewCommandBuilder(ffmpegPath).
		LogLevel(cfg.LogLevel).
		HideBanner().
		RawVideoInput(string(cfg.InputFormat), cfg.Width, cfg.Height, frameRate).
		Input(ffmpeg.PipeInput).
		VideoCodec(cfg.Encoder).
		PixelFormat(string(cfg.PixelFormat)).
		VideoBitrate(cfg.Bitrate).
		GOPSize(cfg.GOPSize).
		MaxBFrames(cfg.MaxBFrames).
		QuantizerRange(cfg.QMin, cfg.QMax).
		TimeBase(cfg.TimeBaseNum, cfg.TimeBaseDen)

	for _, o := range cfg.Options {
		b.PrivateOption(o.Key, o.Value)
	}
	// x265 prints its own banner unless told otherwise
	if cfg.Codec == codec.VideoH265 && !hasOption(cfg.Options, "x265-params") {
		b.PrivateOption("x265-params", "log-level=error")
	}
	b.ApplyCustomOutputOptions(cfg.ExtraOptions)

	if cfg.Output == "" {
		return b.OutputFormat(cfg.Codec.RawMuxer()).
			FlushPackets().
			Output(ffmpeg.PipeOutput).
			Build()
	}
	if cfg.Format != "" {
		b.OutputFormat(cfg.Format)
	}
	return b.Overwrite().Stats().Output(cfg.Output).Build()
}

// VideoEncoder feeds raw frames to an ffmpeg encoder and returns the encoded
// packets cut from its output.
type VideoEncoder struct {
	cfg     VideoEncoderConfig
	session *session
	packets *queue[Packet]

	frameSize    int
	progress     chan ffmpeg.Progress
	progressOnce sync.Once
}

// NewVideoEncoder starts an encoder session.
func NewVideoEncoder(ctx context.Context, ffmpegPath string, cfg VideoEncoderConfig) (*VideoEncoder, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cmd := buildVideoEncoderCommand(ffmpegPath, cfg)
	enc := &VideoEncoder{
		cfg:       cfg,
		frameSize: cfg.InputFormat.FrameSize(cfg.Width, cfg.Height),
	}

	if cfg.Output != "" {
		enc.progress = make(chan ffmpeg.Progress, 16)
		proc, err := cmd.StartWithProgress(ctx, enc.progress)
		if err != nil {
			return nil, err
		}
		enc.session = newSession(ctx, proc, cfg.Logger, "video_encoder")
		go logProgress(enc.session.logger, enc.progress)
		return enc, nil
	}

	s, err := startSession(ctx, cmd, cfg.Logger, "video_encoder")
	if err != nil {
		return nil, err
	}
	enc.session = s
	enc.packets = newQueue[Packet]()
	attach(s, enc.packets)
	go readPackets(s, s.proc.Stdout(), cfg.Codec.Splitter(), cfg.Codec.IsKeyframe, enc.packets)

	s.logger.Debug("video encoder ready",
		slog.String("encoder", cfg.Encoder),
		slog.Int("width", cfg.Width),
		slog.Int("height", cfg.Height),
		slog.String("pix_fmt", string(cfg.PixelFormat)))
	return enc, nil
}

// Encode sends one frame and returns the packets that have come out so far.
// Encoders with delay return nothing for the first frames; Flush collects them.
func (e *VideoEncoder) Encode(frame *media.VideoFrame) ([]Packet, error) {
	if frame.Width != e.cfg.Width || frame.Height != e.cfg.Height || frame.Format != e.cfg.InputFormat {
		return nil, fmt.Errorf("frame %s %dx%d does not match encoder input %s %dx%d",
			frame.Format, frame.Width, frame.Height, e.cfg.InputFormat, e.cfg.Width, e.cfg.Height)
	}
	if err := e.session.write(frame.Bytes()); err != nil {
		return nil, err
	}
	return e.pending(), nil
}

// Flush signals end of input and returns the delayed packets.
func (e *VideoEncoder) Flush() ([]Packet, error) {
	if e.session.closed.Load() {
		return nil, ErrClosed
	}
	err := e.session.finish()
	e.stopProgress()
	if e.packets == nil {
		return nil, err
	}
	rest, rerr := e.packets.wait()
	e.packets.take()
	return rest, errors.Join(rerr, err)
}

// Close stops the encoder, discarding pending output.
func (e *VideoEncoder) Close() error {
	e.session.kill()
	e.stopProgress()
	return nil
}

// stopProgress ends the progress logger once the child has been reaped.
func (e *VideoEncoder) stopProgress() {
	if e.progress != nil {
		e.progressOnce.Do(func() { close(e.progress) })
	}
}

// FrameSize returns the raw frame size the encoder reads.
func (e *VideoEncoder) FrameSize() int {
	return e.frameSize
}

// HasDelay reports whether the codec holds frames back until Flush.
func (e *VideoEncoder) HasDelay() bool {
	return e.cfg.Codec.HasDelay()
}

// Stats returns counters for the session.
func (e *VideoEncoder) Stats() Stats {
	return e.session.stats()
}

func (e *VideoEncoder) pending() []Packet {
	if e.packets == nil {
		return nil
	}
	return e.packets.take()
}
