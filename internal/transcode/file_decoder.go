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

// FileVideoDecoderConfig configures a FileVideoDecoder.
type FileVideoDecoderConfig struct {
	Input string
	// StreamIndex is the absolute stream index, e.g. ProbeStream.Index.
	StreamIndex int

	// Source size; frames are converted at this size.
	Width  int
	Height int

	// PixelFormat of the returned frames. Default: rgb24.
	PixelFormat media.PixelFormat
	// MaxFrames stops decoding after that many frames, 0 decodes everything.
	MaxFrames int

	LogLevel string
	Logger   *slog.Logger
}

func buildFileDecoderCommand(ffmpegPath string, cfg FileVideoDecoderConfig) *ffmpeg.Command {
	return ffmpeg.NewCommandBuilder(ffmpegPath).
		LogLevel(cfg.LogLevel).
		HideBanner().
		NoStdin().
		Input(cfg.Input).
		Map(fmt.Sprintf("0:%d", cfg.StreamIndex)).
		VideoFilter(fmt.Sprintf("scale=%d:%d:flags=bilinear", cfg.Width, cfg.Height)).
		Frames(cfg.MaxFrames).
		RawVideoOutput(string(cfg.PixelFormat)).
		Output(ffmpeg.PipeOutput).
		Build()
}

// FileVideoDecoder decodes one video stream of a file into raw frames,
// converting them like sws_scale with bilinear filtering.
type FileVideoDecoder struct {
	cfg     FileVideoDecoderConfig
	session *session
	out     io.Reader
	pts     int64
	done    chan struct{}
	eof     bool
}

// NewFileVideoDecoder starts decoding cfg.Input.
func NewFileVideoDecoder(ctx context.Context, ffmpegPath string, cfg FileVideoDecoderConfig) (*FileVideoDecoder, error) {
	if cfg.PixelFormat == "" {
		cfg.PixelFormat = media.PixFmtRGB24
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid video size %dx%d", cfg.Width, cfg.Height)
	}

	s, err := startSession(ctx, buildFileDecoderCommand(ffmpegPath, cfg), cfg.Logger, "file_decoder")
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	s.readerDone = done
	return &FileVideoDecoder{cfg: cfg, session: s, out: s.proc.Stdout(), done: done}, nil
}

// Next returns the next decoded frame, or io.EOF after the last one once
// ffmpeg has exited cleanly.
func (d *FileVideoDecoder) Next() (*media.VideoFrame, error) {
	if d.eof {
		return nil, io.EOF
	}
	frame, err := media.NewVideoFrame(d.cfg.Width, d.cfg.Height, d.cfg.PixelFormat, 1)
	if err != nil {
		return nil, err
	}
	if err := frame.ReadFull(d.out); err != nil {
		d.eof = true
		if errors.Is(err, io.EOF) {
			return nil, d.finish(io.EOF)
		}
		return nil, d.finish(fmt.Errorf("reading frame %d: %w", d.pts, err))
	}
	frame.PTS = d.pts
	d.pts++
	d.session.itemsOut.Add(1)
	return frame, nil
}

// finish reaps ffmpeg; its failure takes precedence over the read result.
func (d *FileVideoDecoder) finish(readResult error) error {
	_, _ = io.Copy(io.Discard, d.out)
	close(d.done)
	if err := d.session.finish(); err != nil {
		return err
	}
	return readResult
}

// Close stops decoding early.
func (d *FileVideoDecoder) Close() error {
	if !d.eof {
		d.eof = true
		close(d.done)
	}
	d.session.kill()
	return nil
}

// Stats returns counters for the session.
func (d *FileVideoDecoder) Stats() Stats {
	return d.session.stats()
}
