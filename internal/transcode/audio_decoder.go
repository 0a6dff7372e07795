package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmylchreest/avkit/internal/codec"
	"github.com/jmylchreest/avkit/internal/ffmpeg"
	"github.com/jmylchreest/avkit/internal/media"
)

// AudioDecoderConfig configures an AudioDecoder.
type AudioDecoderConfig struct {
	Codec codec.Audio

	// OutputFormat of the decoded samples. Default: the packed form of the
	// decoder's native format, f32le for AAC and s16le for MP2.
	OutputFormat media.SampleFormat

	LogLevel string
	Logger   *slog.Logger
}

func buildAudioDecoderCommand(ffmpegPath string, cfg AudioDecoderConfig) *ffmpeg.Command {
	return ffmpeg.NewCommandBuilder(ffmpegPath).
		LogLevel(cfg.LogLevel).
		HideBanner().
		InputFormat(cfg.Codec.RawDemuxer()).
		Input(ffmpeg.PipeInput).
		RawAudioOutput(cfg.OutputFormat.RawFormat()).
		Output(ffmpeg.PipeOutput).
		Build()
}

// AudioDecoder feeds encoded audio frames to an ffmpeg decoder and returns
// the interleaved PCM it writes back.
type AudioDecoder struct {
	cfg     AudioDecoderConfig
	session *session
	samples *queue[[]byte]
}

// NewAudioDecoder starts a decoder session.
func NewAudioDecoder(ctx context.Context, ffmpegPath string, cfg AudioDecoderConfig) (*AudioDecoder, error) {
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = cfg.Codec.DecodedFormat().Packed()
	}
	if cfg.Codec.RawDemuxer() == "" {
		return nil, fmt.Errorf("audio codec %q: %w", cfg.Codec, codec.ErrUnsupportedCodec)
	}
	if cfg.OutputFormat.RawFormat() == "" {
		return nil, fmt.Errorf("output sample format %q: %w", cfg.OutputFormat, media.ErrUnsupportedFormat)
	}

	s, err := startSession(ctx, buildAudioDecoderCommand(ffmpegPath, cfg), cfg.Logger, "audio_decoder")
	if err != nil {
		return nil, err
	}
	dec := &AudioDecoder{cfg: cfg, session: s, samples: newQueue[[]byte]()}
	attach(s, dec.samples)
	go dec.readSamples(s.proc.Stdout())
	return dec, nil
}

func (d *AudioDecoder) readSamples(r io.Reader) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			d.session.itemsOut.Add(1)
			d.samples.push(bytes.Clone(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			d.samples.finish(nil)
			return
		}
		if err != nil {
			d.samples.finish(fmt.Errorf("reading decoded samples: %w", err))
			return
		}
	}
}

// Decode sends one packet and returns the PCM decoded so far.
func (d *AudioDecoder) Decode(packet []byte) ([]byte, error) {
	if len(packet) > 0 {
		if err := d.session.write(packet); err != nil {
			return nil, err
		}
	}
	return bytes.Join(d.samples.take(), nil), nil
}

// Flush signals end of input and returns the remaining PCM.
func (d *AudioDecoder) Flush() ([]byte, error) {
	if d.session.closed.Load() {
		return nil, ErrClosed
	}
	err := d.session.finish()
	rest, rerr := d.samples.wait()
	d.samples.take()
	return bytes.Join(rest, nil), errors.Join(rerr, err)
}

// Close stops the decoder, discarding pending output.
func (d *AudioDecoder) Close() error {
	d.session.kill()
	return nil
}

// OutputFormat returns the sample format of the returned PCM.
func (d *AudioDecoder) OutputFormat() media.SampleFormat {
	return d.cfg.OutputFormat
}

// Stats returns counters for the session.
func (d *AudioDecoder) Stats() Stats {
	return d.session.stats()
}
