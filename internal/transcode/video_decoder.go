package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmylchreest/avkit/internal/codec"
	"github.com/jmylchreest/avkit/internal/ffmpeg"
	"github.com/jmylchreest/avkit/internal/media"
)

// VideoDecoderConfig configures a VideoDecoder.
type VideoDecoderConfig struct {
	Codec codec.Video

	// Picture size of the stream, e.g. from bitstream.ParseSequenceHeader.
	// ffmpeg scales to it if the stream disagrees.
	Width  int
	Height int

	// PixelFormat of the decoded frames. Default: yuv420p.
	PixelFormat media.PixelFormat

	LogLevel string
	Logger   *slog.Logger
}

func buildVideoDecoderCommand(ffmpegPath string, cfg VideoDecoderConfig) *ffmpeg.Command {
	return ffmpeg.NewCommandBuilder(ffmpegPath).
		LogLevel(cfg.LogLevel).
		HideBanner().
		InputFormat(cfg.Codec.RawDemuxer()).
		Input(ffmpeg.PipeInput).
		VideoSize(cfg.Width, cfg.Height).
		RawVideoOutput(string(cfg.PixelFormat)).
		Output(ffmpeg.PipeOutput).
		Build()
}

// VideoDecoder feeds encoded packets to an ffmpeg decoder and returns the
// fixed size raw frames it writes back.
type VideoDecoder struct {
	cfg     VideoDecoderConfig
	session *session
	frames  *queue[*media.VideoFrame]
}

// NewVideoDecoder starts a decoder session.
func NewVideoDecoder(ctx context.Context, ffmpegPath string, cfg VideoDecoderConfig) (*VideoDecoder, error) {
	if cfg.PixelFormat == "" {
		cfg.PixelFormat = media.PixFmtYUV420P
	}
	if cfg.Codec.RawDemuxer() == "" {
		return nil, fmt.Errorf("video codec %q: %w", cfg.Codec, codec.ErrUnsupportedCodec)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid video size %dx%d", cfg.Width, cfg.Height)
	}

	s, err := startSession(ctx, buildVideoDecoderCommand(ffmpegPath, cfg), cfg.Logger, "video_decoder")
	if err != nil {
		return nil, err
	}
	dec := &VideoDecoder{cfg: cfg, session: s, frames: newQueue[*media.VideoFrame]()}
	attach(s, dec.frames)
	go dec.readFrames(s.proc.Stdout())
	return dec, nil
}

// readFrames reads whole raw frames until ffmpeg closes stdout.
func (d *VideoDecoder) readFrames(r io.Reader) {
	var pts int64
	for {
		frame, err := media.NewVideoFrame(d.cfg.Width, d.cfg.Height, d.cfg.PixelFormat, 1)
		if err != nil {
			_, _ = io.Copy(io.Discard, r)
			d.frames.finish(err)
			return
		}
		if err := frame.ReadFull(r); err != nil {
			if errors.Is(err, io.EOF) {
				d.frames.finish(nil)
				return
			}
			_, _ = io.Copy(io.Discard, r)
			d.frames.finish(fmt.Errorf("reading decoded frame %d: %w", pts, err))
			return
		}
		frame.PTS = pts
		pts++
		d.session.itemsOut.Add(1)
		d.frames.push(frame)
	}
}

// Decode sends one packet and returns the frames decoded so far.
func (d *VideoDecoder) Decode(packet []byte) ([]*media.VideoFrame, error) {
	if len(packet) == 0 {
		return d.frames.take(), nil
	}
	if err := d.session.write(packet); err != nil {
		return nil, err
	}
	return d.frames.take(), nil
}

// Flush signals end of input and returns the remaining frames.
func (d *VideoDecoder) Flush() ([]*media.VideoFrame, error) {
	if d.session.closed.Load() {
		return nil, ErrClosed
	}
	err := d.session.finish()
	rest, rerr := d.frames.wait()
	d.frames.take()
	return rest, errors.Join(rerr, err)
}

// Close stops the decoder, discarding pending output.
func (d *VideoDecoder) Close() error {
	d.session.kill()
	return nil
}

// Stats returns counters for the session.
func (d *VideoDecoder) Stats() Stats {
	return d.session.stats()
}
