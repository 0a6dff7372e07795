package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmylchreest/avkit/internal/ffmpeg"
	"github.com/jmylchreest/avkit/internal/media"
)

// FrameScaler converts frames to another size and pixel format. Scale may
// return fewer frames than it was given when the implementation pipelines;
// Flush returns the rest.
type FrameScaler interface {
	Scale(src *media.VideoFrame) ([]*media.VideoFrame, error)
	Flush() ([]*media.VideoFrame, error)
	Close() error
}

// ScalerConfig configures an ffmpeg Scaler.
type ScalerConfig struct {
	SrcWidth  int
	SrcHeight int
	SrcFormat media.PixelFormat // default yuv420p

	DstWidth  int
	DstHeight int
	DstFormat media.PixelFormat // default rgb24

	// Flags are the swscale flags. Default: bilinear.
	Flags string

	LogLevel string
	Logger   *slog.Logger
}

func buildScalerCommand(ffmpegPath string, cfg ScalerConfig) *ffmpeg.Command {
	return ffmpeg.NewCommandBuilder(ffmpegPath).
		LogLevel(cfg.LogLevel).
		HideBanner().
		RawVideoInput(string(cfg.SrcFormat), cfg.SrcWidth, cfg.SrcHeight, 0).
		Input(ffmpeg.PipeInput).
		VideoFilter(fmt.Sprintf("scale=%d:%d:flags=%s", cfg.DstWidth, cfg.DstHeight, cfg.Flags)).
		RawVideoOutput(string(cfg.DstFormat)).
		FlushPackets().
		Output(ffmpeg.PipeOutput).
		Build()
}

// Scaler runs swscale in an ffmpeg child over rawvideo pipes.
type Scaler struct {
	cfg     ScalerConfig
	session *session
	frames  *queue[*media.VideoFrame]
}

var _ FrameScaler = (*Scaler)(nil)

// NewScaler starts an ffmpeg scaler session.
func NewScaler(ctx context.Context, ffmpegPath string, cfg ScalerConfig) (*Scaler, error) {
	if cfg.SrcFormat == "" {
		cfg.SrcFormat = media.PixFmtYUV420P
	}
	if cfg.DstFormat == "" {
		cfg.DstFormat = media.PixFmtRGB24
	}
	if cfg.Flags == "" {
		cfg.Flags = "bilinear"
	}
	if cfg.SrcWidth <= 0 || cfg.SrcHeight <= 0 || cfg.DstWidth <= 0 || cfg.DstHeight <= 0 {
		return nil, fmt.Errorf("invalid scale %dx%d to %dx%d: %w",
			cfg.SrcWidth, cfg.SrcHeight, cfg.DstWidth, cfg.DstHeight, media.ErrInvalidSize)
	}

	s, err := startSession(ctx, buildScalerCommand(ffmpegPath, cfg), cfg.Logger, "scaler")
	if err != nil {
		return nil, err
	}
	sc := &Scaler{cfg: cfg, session: s, frames: newQueue[*media.VideoFrame]()}
	attach(s, sc.frames)
	go sc.readFrames(s.proc.Stdout())
	return sc, nil
}

func (s *Scaler) readFrames(r io.Reader) {
	var pts int64
	for {
		frame, err := media.NewVideoFrame(s.cfg.DstWidth, s.cfg.DstHeight, s.cfg.DstFormat, 1)
		if err != nil {
			_, _ = io.Copy(io.Discard, r)
			s.frames.finish(err)
			return
		}
		if err := frame.ReadFull(r); err != nil {
			if errors.Is(err, io.EOF) {
				s.frames.finish(nil)
				return
			}
			_, _ = io.Copy(io.Discard, r)
			s.frames.finish(fmt.Errorf("reading scaled frame %d: %w", pts, err))
			return
		}
		frame.PTS = pts
		pts++
		s.session.itemsOut.Add(1)
		s.frames.push(frame)
	}
}

// Scale sends one source frame and returns the scaled frames available so far.
func (s *Scaler) Scale(src *media.VideoFrame) ([]*media.VideoFrame, error) {
	if src.Width != s.cfg.SrcWidth || src.Height != s.cfg.SrcHeight || src.Format != s.cfg.SrcFormat {
		return nil, fmt.Errorf("frame %s %dx%d does not match scaler input %s %dx%d",
			src.Format, src.Width, src.Height, s.cfg.SrcFormat, s.cfg.SrcWidth, s.cfg.SrcHeight)
	}
	if err := s.session.write(src.Bytes()); err != nil {
		return nil, err
	}
	return s.frames.take(), nil
}

// Flush signals end of input and returns the remaining frames.
func (s *Scaler) Flush() ([]*media.VideoFrame, error) {
	if s.session.closed.Load() {
		return nil, ErrClosed
	}
	err := s.session.finish()
	rest, rerr := s.frames.wait()
	s.frames.take()
	return rest, errors.Join(rerr, err)
}

// Close stops the scaler, discarding pending output.
func (s *Scaler) Close() error {
	s.session.kill()
	return nil
}

// NativeScaler adapts media.Scaler to FrameScaler. It converts synchronously.
type NativeScaler struct {
	scaler *media.Scaler
}

var _ FrameScaler = (*NativeScaler)(nil)

// NewNativeScaler returns a Go scaler producing dstWidth x dstHeight RGB24 frames.
func NewNativeScaler(dstWidth, dstHeight int) (*NativeScaler, error) {
	sc, err := media.NewScaler(dstWidth, dstHeight)
	if err != nil {
		return nil, err
	}
	return &NativeScaler{scaler: sc}, nil
}

// Scale converts src and returns exactly one frame.
func (n *NativeScaler) Scale(src *media.VideoFrame) ([]*media.VideoFrame, error) {
	dst, err := n.scaler.Scale(src)
	if err != nil {
		return nil, err
	}
	dst.PTS = src.PTS
	return []*media.VideoFrame{dst}, nil
}

// Flush returns nothing; the native scaler keeps no frames back.
func (n *NativeScaler) Flush() ([]*media.VideoFrame, error) {
	return nil, nil
}

// Close is a no-op.
func (n *NativeScaler) Close() error {
	return nil
}
