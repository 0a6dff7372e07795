package media

import (
	"errors"
	"fmt"
	"io"
)

// ErrShortFrame is returned when raw input ends in the middle of a frame.
var ErrShortFrame = errors.New("short frame")

// VideoFrame is a raw picture with one slice per plane.
// Strides may exceed the visible row width when the frame was allocated with alignment.
type VideoFrame struct {
	Width   int
	Height  int
	Format  PixelFormat
	Planes  [][]byte
	Strides []int
	PTS     int64
}

// NewVideoFrame allocates a frame whose plane strides are rounded up to align bytes
// (1 packs rows tightly).
func NewVideoFrame(width, height int, format PixelFormat, align int) (*VideoFrame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if format.PlaneCount() == 0 {
		return nil, fmt.Errorf("pixel format %q: %w", format, ErrUnsupportedFormat)
	}
	if align < 1 {
		align = 1
	}

	f := &VideoFrame{
		Width:   width,
		Height:  height,
		Format:  format,
		Planes:  make([][]byte, format.PlaneCount()),
		Strides: make([]int, format.PlaneCount()),
	}
	for i := range f.Planes {
		rowBytes, rows := format.PlaneSize(i, width, height)
		stride := (rowBytes + align - 1) / align * align
		f.Strides[i] = stride
		f.Planes[i] = make([]byte, stride*rows)
	}
	return f, nil
}

// Size returns the tightly packed size of the frame in bytes.
func (f *VideoFrame) Size() int {
	return f.Format.FrameSize(f.Width, f.Height)
}

// Row returns the visible bytes of row y in plane i.
func (f *VideoFrame) Row(i, y int) []byte {
	rowBytes, _ := f.Format.PlaneSize(i, f.Width, f.Height)
	start := y * f.Strides[i]
	return f.Planes[i][start : start+rowBytes]
}

// ReadFull fills the frame from a tightly packed raw picture.
// It returns io.EOF when r is exhausted before the first byte and
// ErrShortFrame when it ends mid-frame.
func (f *VideoFrame) ReadFull(r io.Reader) error {
	read := 0
	for i := range f.Planes {
		_, rows := f.Format.PlaneSize(i, f.Width, f.Height)
		for y := 0; y < rows; y++ {
			n, err := io.ReadFull(r, f.Row(i, y))
			read += n
			if err != nil {
				if read == 0 && errors.Is(err, io.EOF) {
					return io.EOF
				}
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					return fmt.Errorf("read %d of %d bytes: %w", read, f.Size(), ErrShortFrame)
				}
				return err
			}
		}
	}
	return nil
}

// SetBytes copies a tightly packed raw picture into the frame planes.
func (f *VideoFrame) SetBytes(data []byte) error {
	if len(data) < f.Size() {
		return fmt.Errorf("got %d of %d bytes: %w", len(data), f.Size(), ErrShortFrame)
	}
	off := 0
	for i := range f.Planes {
		rowBytes, rows := f.Format.PlaneSize(i, f.Width, f.Height)
		for y := 0; y < rows; y++ {
			copy(f.Row(i, y), data[off:off+rowBytes])
			off += rowBytes
		}
	}
	return nil
}

// Bytes returns the frame tightly packed, plane after plane.
func (f *VideoFrame) Bytes() []byte {
	out := make([]byte, 0, f.Size())
	for i := range f.Planes {
		_, rows := f.Format.PlaneSize(i, f.Width, f.Height)
		for y := 0; y < rows; y++ {
			out = append(out, f.Row(i, y)...)
		}
	}
	return out
}

// WriteTo writes the frame tightly packed. It implements io.WriterTo.
func (f *VideoFrame) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i := range f.Planes {
		_, rows := f.Format.PlaneSize(i, f.Width, f.Height)
		for y := 0; y < rows; y++ {
			n, err := w.Write(f.Row(i, y))
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// AudioFrame is a block of raw samples. Packed formats use a single plane with
// interleaved channels, planar formats one plane per channel.
type AudioFrame struct {
	Format     SampleFormat
	Layout     ChannelLayout
	SampleRate int
	NbSamples  int
	Data       [][]byte
	PTS        int64
}

// NewAudioFrame allocates a frame for nbSamples samples per channel.
func NewAudioFrame(format SampleFormat, layout ChannelLayout, sampleRate, nbSamples int) (*AudioFrame, error) {
	if format.BytesPerSample() == 0 {
		return nil, fmt.Errorf("sample format %q: %w", format, ErrUnsupportedFormat)
	}
	if layout.Channels < 1 || nbSamples < 1 {
		return nil, fmt.Errorf("invalid audio frame: %d channels, %d samples", layout.Channels, nbSamples)
	}

	f := &AudioFrame{Format: format, Layout: layout, SampleRate: sampleRate, NbSamples: nbSamples}
	if format.IsPlanar() {
		f.Data = make([][]byte, layout.Channels)
		for ch := range f.Data {
			f.Data[ch] = make([]byte, format.BytesPerSample()*nbSamples)
		}
	} else {
		f.Data = [][]byte{make([]byte, SamplesBufferSize(format, layout.Channels, nbSamples))}
	}
	return f, nil
}

// Size returns the byte size of all samples of all channels.
func (f *AudioFrame) Size() int {
	return SamplesBufferSize(f.Format, f.Layout.Channels, f.NbSamples)
}

// Interleave returns the samples packed as sample by sample, channel by channel.
// Packed frames are returned as is.
func (f *AudioFrame) Interleave() []byte {
	if !f.Format.IsPlanar() {
		return f.Data[0][:f.Size()]
	}
	bps := f.Format.BytesPerSample()
	out := make([]byte, 0, f.Size())
	for i := 0; i < f.NbSamples; i++ {
		for ch := 0; ch < f.Layout.Channels; ch++ {
			out = append(out, f.Data[ch][bps*i:bps*(i+1)]...)
		}
	}
	return out
}

// ReadFull fills a packed frame from raw interleaved PCM. A trailing partial
// frame is zero padded and NbSamples is reduced to the samples actually read.
func (f *AudioFrame) ReadFull(r io.Reader) error {
	if f.Format.IsPlanar() {
		return fmt.Errorf("reading planar %s: %w", f.Format, ErrUnsupportedFormat)
	}
	buf := f.Data[0]
	n, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		frameBytes := f.Format.BytesPerSample() * f.Layout.Channels
		f.NbSamples = n / frameBytes
		clear(buf[n:])
		if f.NbSamples == 0 {
			return io.EOF
		}
		return nil
	default:
		return err
	}
}
