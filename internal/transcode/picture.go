package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmylchreest/avkit/internal/codec"
	"github.com/jmylchreest/avkit/internal/media"
)

// ErrNoPacket is returned when an encoder produced no output for a picture.
var ErrNoPacket = errors.New("encoder produced no packet")

// PictureEncoderConfig configures a PictureEncoder.
type PictureEncoderConfig struct {
	Width  int
	Height int
	// InputFormat of the frame handed to Encode. Default: yuv420p.
	InputFormat media.PixelFormat
	// Quality from 1 (worst) to 100 (best), 0 leaves the encoder default.
	Quality int

	LogLevel string
	Logger   *slog.Logger
}

// PictureEncoder encodes single frames to JPEG with ffmpeg's mjpeg encoder.
type PictureEncoder struct {
	ffmpegPath string
	cfg        PictureEncoderConfig
}

// NewPictureEncoder returns an encoder for pictures of the configured size.
func NewPictureEncoder(ffmpegPath string, cfg PictureEncoderConfig) (*PictureEncoder, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid picture size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Quality < 0 || cfg.Quality > 100 {
		return nil, fmt.Errorf("jpeg quality %d out of range 1-100", cfg.Quality)
	}
	return &PictureEncoder{ffmpegPath: ffmpegPath, cfg: cfg}, nil
}

// qscale maps a 1-100 quality onto mjpeg's 2-31 quantiser scale.
func qscale(quality int) int {
	return 2 + (100-quality)*29/99
}

// Encode runs one encoder session for frame and returns its single packet.
func (p *PictureEncoder) Encode(ctx context.Context, frame *media.VideoFrame) (Packet, error) {
	cfg := VideoEncoderConfig{
		Codec:       codec.VideoMJPEG,
		Width:       p.cfg.Width,
		Height:      p.cfg.Height,
		InputFormat: p.cfg.InputFormat,
		TimeBaseNum: 1,
		TimeBaseDen: 25,
		MaxBFrames:  -1,
		LogLevel:    p.cfg.LogLevel,
		Logger:      p.cfg.Logger,
	}
	if p.cfg.Quality > 0 {
		cfg.Options = []Option{{Key: "q:v", Value: strconv.Itoa(qscale(p.cfg.Quality))}}
	}

	enc, err := NewVideoEncoder(ctx, p.ffmpegPath, cfg)
	if err != nil {
		return Packet{}, err
	}
	defer enc.Close()

	packets, err := enc.Encode(frame)
	if err != nil {
		return Packet{}, err
	}
	rest, err := enc.Flush()
	if err != nil {
		return Packet{}, err
	}
	packets = append(packets, rest...)
	if len(packets) == 0 {
		return Packet{}, ErrNoPacket
	}
	return packets[0], nil
}
