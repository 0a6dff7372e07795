// Package media holds raw frame types and the pure-Go helpers that produce,
// convert and persist them: synthetic sources, PNM writers, size parsing,
// scaling and still-picture encoding.
package media

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormat is returned for pixel or sample formats a helper cannot handle.
var ErrUnsupportedFormat = errors.New("unsupported format")

// PixelFormat names a raw video layout using ffmpeg's pix_fmt identifiers.
type PixelFormat string

const (
	PixFmtYUV420P  PixelFormat = "yuv420p"  // planar 4:2:0, limited range
	PixFmtYUVJ420P PixelFormat = "yuvj420p" // planar 4:2:0, full range (JPEG)
	PixFmtRGB24    PixelFormat = "rgb24"    // packed RGB, 3 bytes per pixel
	PixFmtGray     PixelFormat = "gray"     // single 8-bit luma plane
)

// planeSpec describes one plane relative to the frame size.
type planeSpec struct {
	bytesPerPixel int
	shiftX        uint
	shiftY        uint
}

var pixelFormatPlanes = map[PixelFormat][]planeSpec{
	PixFmtYUV420P:  {{1, 0, 0}, {1, 1, 1}, {1, 1, 1}},
	PixFmtYUVJ420P: {{1, 0, 0}, {1, 1, 1}, {1, 1, 1}},
	PixFmtRGB24:    {{3, 0, 0}},
	PixFmtGray:     {{1, 0, 0}},
}

// ParsePixelFormat validates an ffmpeg pixel format name.
func ParsePixelFormat(s string) (PixelFormat, error) {
	p := PixelFormat(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := pixelFormatPlanes[p]; !ok {
		return "", fmt.Errorf("pixel format %q: %w", s, ErrUnsupportedFormat)
	}
	return p, nil
}

// String returns the ffmpeg name of the format.
func (p PixelFormat) String() string { return string(p) }

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	return len(pixelFormatPlanes[p])
}

// IsYUV420 reports whether the format is one of the planar 4:2:0 layouts.
func (p PixelFormat) IsYUV420() bool {
	return p == PixFmtYUV420P || p == PixFmtYUVJ420P
}

// PlaneSize returns the row width in bytes and the row count of plane i for a
// width x height picture. Chroma dimensions round up, as in libavutil.
func (p PixelFormat) PlaneSize(i, width, height int) (rowBytes, rows int) {
	planes := pixelFormatPlanes[p]
	if i < 0 || i >= len(planes) {
		return 0, 0
	}
	spec := planes[i]
	w := ceilShift(width, spec.shiftX)
	h := ceilShift(height, spec.shiftY)
	return w * spec.bytesPerPixel, h
}

// FrameSize returns the tightly packed size of one picture in bytes.
func (p PixelFormat) FrameSize(width, height int) int {
	total := 0
	for i := range pixelFormatPlanes[p] {
		rowBytes, rows := p.PlaneSize(i, width, height)
		total += rowBytes * rows
	}
	return total
}

func ceilShift(v int, shift uint) int {
	return (v + (1 << shift) - 1) >> shift
}

// SampleFormat names a raw audio sample layout using ffmpeg's sample_fmt identifiers.
type SampleFormat string

const (
	SampleFmtU8   SampleFormat = "u8"
	SampleFmtS16  SampleFormat = "s16"
	SampleFmtS32  SampleFormat = "s32"
	SampleFmtFlt  SampleFormat = "flt"
	SampleFmtDbl  SampleFormat = "dbl"
	SampleFmtU8P  SampleFormat = "u8p"
	SampleFmtS16P SampleFormat = "s16p"
	SampleFmtS32P SampleFormat = "s32p"
	SampleFmtFltP SampleFormat = "fltp"
	SampleFmtDblP SampleFormat = "dblp"
)

type sampleSpec struct {
	bytes  int
	planar bool
	packed SampleFormat
	raw    string // ffmpeg raw demuxer/muxer name for the packed variant
}

var sampleFormats = map[SampleFormat]sampleSpec{
	SampleFmtU8:   {1, false, SampleFmtU8, "u8"},
	SampleFmtS16:  {2, false, SampleFmtS16, "s16le"},
	SampleFmtS32:  {4, false, SampleFmtS32, "s32le"},
	SampleFmtFlt:  {4, false, SampleFmtFlt, "f32le"},
	SampleFmtDbl:  {8, false, SampleFmtDbl, "f64le"},
	SampleFmtU8P:  {1, true, SampleFmtU8, "u8"},
	SampleFmtS16P: {2, true, SampleFmtS16, "s16le"},
	SampleFmtS32P: {4, true, SampleFmtS32, "s32le"},
	SampleFmtFltP: {4, true, SampleFmtFlt, "f32le"},
	SampleFmtDblP: {8, true, SampleFmtDbl, "f64le"},
}

// ParseSampleFormat validates an ffmpeg sample format name.
func ParseSampleFormat(s string) (SampleFormat, error) {
	f := SampleFormat(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := sampleFormats[f]; !ok {
		return "", fmt.Errorf("sample format %q: %w", s, ErrUnsupportedFormat)
	}
	return f, nil
}

// String returns the ffmpeg name of the format.
func (s SampleFormat) String() string { return string(s) }

// BytesPerSample returns the size of one sample of one channel.
func (s SampleFormat) BytesPerSample() int { return sampleFormats[s].bytes }

// IsPlanar reports whether each channel is stored in its own plane.
func (s SampleFormat) IsPlanar() bool { return sampleFormats[s].planar }

// Packed returns the interleaved variant of the format.
func (s SampleFormat) Packed() SampleFormat { return sampleFormats[s].packed }

// RawFormat returns the ffmpeg raw PCM format name (s16le, f32le...) of the packed variant.
func (s SampleFormat) RawFormat() string { return sampleFormats[s].raw }

// SamplesBufferSize returns the byte size of nbSamples samples for all channels.
func SamplesBufferSize(format SampleFormat, channels, nbSamples int) int {
	return format.BytesPerSample() * channels * nbSamples
}

// ChannelLayout is a named speaker arrangement.
type ChannelLayout struct {
	Name     string
	Channels int
}

// Common channel layouts, named as ffmpeg prints them.
var (
	LayoutMono      = ChannelLayout{"mono", 1}
	LayoutStereo    = ChannelLayout{"stereo", 2}
	Layout2Point1   = ChannelLayout{"2.1", 3}
	Layout3Point0   = ChannelLayout{"3.0", 3}
	LayoutQuad      = ChannelLayout{"quad", 4}
	Layout4Point0   = ChannelLayout{"4.0", 4}
	Layout5Point0   = ChannelLayout{"5.0", 5}
	Layout5Point1   = ChannelLayout{"5.1", 6}
	Layout6Point1   = ChannelLayout{"6.1", 7}
	Layout7Point1   = ChannelLayout{"7.1", 8}
	layoutsByName   = map[string]ChannelLayout{}
	defaultByNumber = map[int]ChannelLayout{}
)

func init() {
	for _, l := range []ChannelLayout{
		LayoutMono, LayoutStereo, Layout2Point1, Layout3Point0, LayoutQuad,
		Layout4Point0, Layout5Point0, Layout5Point1, Layout6Point1, Layout7Point1,
	} {
		layoutsByName[l.Name] = l
		if _, ok := defaultByNumber[l.Channels]; !ok {
			defaultByNumber[l.Channels] = l
		}
	}
	// ffmpeg spells some layouts with a (side) suffix in encoder help output
	layoutsByName["5.0(side)"] = Layout5Point0
	layoutsByName["5.1(side)"] = Layout5Point1
	layoutsByName["7.1(wide)"] = Layout7Point1
}

// ParseChannelLayout resolves an ffmpeg layout name.
func ParseChannelLayout(name string) (ChannelLayout, error) {
	l, ok := layoutsByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return ChannelLayout{}, fmt.Errorf("channel layout %q: %w", name, ErrUnsupportedFormat)
	}
	return l, nil
}

// LayoutForChannels returns the default layout for a channel count.
func LayoutForChannels(n int) ChannelLayout {
	if l, ok := defaultByNumber[n]; ok {
		return l
	}
	return ChannelLayout{Name: fmt.Sprintf("%dc", n), Channels: n}
}

// String returns the layout name.
func (l ChannelLayout) String() string { return l.Name }
