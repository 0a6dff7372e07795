package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/avkit/internal/codec"
	"github.com/jmylchreest/avkit/internal/ffmpeg"
	"github.com/jmylchreest/avkit/internal/media"
)

// AudioEncoderConfig configures an AudioEncoder.
type AudioEncoderConfig struct {
	Codec   codec.Audio
	Encoder string // overrides the registry's ffmpeg encoder

	SampleRate int
	Layout     media.ChannelLayout

	// InputFormat is the packed sample format handed to Encode. Default: s16.
	InputFormat media.SampleFormat
	// SampleFormat requests the encoder sample format; ffmpeg converts.
	// Empty leaves the choice to ffmpeg.
	SampleFormat media.SampleFormat

	Bitrate int

	// Output makes ffmpeg write the file itself, see VideoEncoderConfig.
	Output string
	Format string

	LogLevel     string
	ExtraOptions string
	Logger       *slog.Logger
}

func (c *AudioEncoderConfig) applyDefaults() {
	if c.InputFormat == "" {
		c.InputFormat = media.SampleFmtS16
	}
	if c.Encoder == "" {
		c.Encoder = c.Codec.Encoder()
	}
	if c.SampleRate == 0 {
		c.SampleRate = codec.DefaultSampleRate
	}
	if c.Layout.Channels == 0 {
		c.Layout = codec.DefaultLayout
	}
}

func (c *AudioEncoderConfig) validate() error {
	if c.Encoder == "" {
		return fmt.Errorf("audio codec %q: %w", c.Codec, codec.ErrUnsupportedCodec)
	}
	if c.InputFormat.IsPlanar() || c.InputFormat.BytesPerSample() == 0 {
		return fmt.Errorf("input sample format %q must be packed: %w", c.InputFormat, media.ErrUnsupportedFormat)
	}
	if c.Output == "" && (c.Codec.RawMuxer() == "" || c.Codec.Splitter() == nil) {
		return fmt.Errorf("audio codec %q has no elementary stream parser, set an output file", c.Codec)
	}
	return nil
}

func buildAudioEncoderCommand(ffmpegPath string, cfg AudioEncoderConfig) *ffmpeg.Command {
	b := ffmpeg.NewCommandBuilder(ffmpegPath).
		LogLevel(cfg.LogLevel).
		HideBanner().
		RawAudioInput(cfg.InputFormat.RawFormat(), cfg.SampleRate, cfg.Layout.Channels).
		Input(ffmpeg.PipeInput).
		AudioCodec(cfg.Encoder).
		AudioBitrate(cfg.Bitrate)
	if cfg.SampleFormat != "" {
		b.SampleFormat(string(cfg.SampleFormat))
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
	return b.Overwrite().Output(cfg.Output).Build()
}

// AudioEncoder feeds interleaved PCM frames to an ffmpeg encoder and returns
// the encoded frames cut from its output.
type AudioEncoder struct {
	cfg     AudioEncoderConfig
	session *session
	packets *queue[Packet]
}

// NewAudioEncoder starts an encoder session.
func NewAudioEncoder(ctx context.Context, ffmpegPath string, cfg AudioEncoderConfig) (*AudioEncoder, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s, err := startSession(ctx, buildAudioEncoderCommand(ffmpegPath, cfg), cfg.Logger, "audio_encoder")
	if err != nil {
		return nil, err
	}
	enc := &AudioEncoder{cfg: cfg, session: s}
	if cfg.Output == "" {
		enc.packets = newQueue[Packet]()
		attach(s, enc.packets)
		go readPackets(s, s.proc.Stdout(), cfg.Codec.Splitter(), func([]byte) bool { return true }, enc.packets)
	}

	s.logger.Debug("audio encoder ready",
		slog.String("encoder", cfg.Encoder),
		slog.Int("sample_rate", cfg.SampleRate),
		slog.String("layout", cfg.Layout.Name),
		slog.Int("frame_size", cfg.Codec.FrameSize()))
	return enc, nil
}

// Encode sends one frame of samples and returns the packets produced so far.
// Planar frames are interleaved first.
func (e *AudioEncoder) Encode(frame *media.AudioFrame) ([]Packet, error) {
	if frame.Format.Packed() != e.cfg.InputFormat {
		return nil, fmt.Errorf("frame format %s does not match encoder input %s: %w",
			frame.Format, e.cfg.InputFormat, media.ErrUnsupportedFormat)
	}
	if frame.Layout.Channels != e.cfg.Layout.Channels {
		return nil, fmt.Errorf("frame has %d channels, encoder expects %d",
			frame.Layout.Channels, e.cfg.Layout.Channels)
	}
	if err := e.session.write(frame.Interleave()); err != nil {
		return nil, err
	}
	return e.pending(), nil
}

// Flush signals end of input and returns the delayed packets.
func (e *AudioEncoder) Flush() ([]Packet, error) {
	if e.session.closed.Load() {
		return nil, ErrClosed
	}
	err := e.session.finish()
	if e.packets == nil {
		return nil, err
	}
	rest, rerr := e.packets.wait()
	e.packets.take()
	return rest, errors.Join(rerr, err)
}

// Close stops the encoder, discarding pending output.
func (e *AudioEncoder) Close() error {
	e.session.kill()
	return nil
}

// FrameSize returns the samples per channel in one encoded frame.
func (e *AudioEncoder) FrameSize() int {
	return e.cfg.Codec.FrameSize()
}

// HasDelay reports whether the codec holds samples back until Flush.
func (e *AudioEncoder) HasDelay() bool {
	return e.cfg.Codec.HasDelay()
}

// SampleRate returns the input sample rate.
func (e *AudioEncoder) SampleRate() int {
	return e.cfg.SampleRate
}

// Layout returns the input channel layout.
func (e *AudioEncoder) Layout() media.ChannelLayout {
	return e.cfg.Layout
}

// Stats returns counters for the session.
func (e *AudioEncoder) Stats() Stats {
	return e.session.stats()
}

func (e *AudioEncoder) pending() []Packet {
	if e.packets == nil {
		return nil
	}
	return e.packets.take()
}
