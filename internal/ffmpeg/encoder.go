package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jmylchreest/avkit/internal/media"
)

// ErrUnknownEncoder is returned when ffmpeg does not know the encoder name.
var ErrUnknownEncoder = errors.New("unknown encoder")

// EncoderInfo describes an encoder as reported by `ffmpeg -h encoder=<name>`.
// Empty lists mean the encoder accepts anything.
type EncoderInfo struct {
	Name           string                `json:"name"`
	LongName       string                `json:"long_name,omitempty"`
	Capabilities   []string              `json:"capabilities,omitempty"`
	PixelFormats   []string              `json:"pixel_formats,omitempty"`
	SampleFormats  []media.SampleFormat  `json:"sample_formats,omitempty"`
	SampleRates    []int                 `json:"sample_rates,omitempty"`
	ChannelLayouts []media.ChannelLayout `json:"channel_layouts,omitempty"`
}

// HasDelay reports whether the encoder buffers frames and must be flushed.
func (e *EncoderInfo) HasDelay() bool {
	return slices.Contains(e.Capabilities, "delay")
}

// SupportsPixelFormat reports whether the encoder accepts the pixel format.
func (e *EncoderInfo) SupportsPixelFormat(format media.PixelFormat) bool {
	return len(e.PixelFormats) == 0 || slices.Contains(e.PixelFormats, format.String())
}

// QueryEncoder runs `ffmpeg -h encoder=<name>` and parses the result.
func QueryEncoder(ctx context.Context, ffmpegPath, name string) (*EncoderInfo, error) {
	out, err := run(ctx, ffmpegPath, "-hide_banner", "-h", "encoder="+name)
	if err != nil {
		return nil, fmt.Errorf("querying encoder %s: %w", name, err)
	}
	info, err := parseEncoderHelp(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return info, nil
}

// parseEncoderHelp parses the header block of `ffmpeg -h encoder=<name>`.
// Unknown sample formats and channel layouts are skipped.
func parseEncoderHelp(output string) (*EncoderInfo, error) {
	var info *EncoderInfo

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "Encoder ") {
			// Encoder libx264 [libx264 H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10]:
			rest := strings.TrimSuffix(strings.TrimPrefix(line, "Encoder "), ":")
			name, long, _ := strings.Cut(rest, " ")
			info = &EncoderInfo{
				Name:     name,
				LongName: strings.Trim(long, "[]"),
			}
			continue
		}
		if info == nil {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields := strings.Fields(value)

		switch key {
		case "General capabilities":
			if !slices.Contains(fields, "none") {
				info.Capabilities = fields
			}
		case "Supported pixel formats":
			info.PixelFormats = fields
		case "Supported sample formats":
			for _, f := range fields {
				if sf, err := media.ParseSampleFormat(f); err == nil {
					info.SampleFormats = append(info.SampleFormats, sf)
				}
			}
		case "Supported sample rates":
			for _, f := range fields {
				if rate, err := strconv.Atoi(f); err == nil {
					info.SampleRates = append(info.SampleRates, rate)
				}
			}
		case "Supported channel layouts":
			for _, f := range fields {
				if l, err := media.ParseChannelLayout(f); err == nil {
					info.ChannelLayouts = append(info.ChannelLayouts, l)
				}
			}
		}
	}

	if info == nil {
		return nil, ErrUnknownEncoder
	}
	return info, nil
}
