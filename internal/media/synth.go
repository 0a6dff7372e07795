package media

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Pattern selects one of the moving gradients used as synthetic video input.
type Pattern int

const (
	// PatternEncode is the gradient of the codec round trip:
	// Y = x+y+3i, Cb = 128+y+2i, Cr = 64+y+2i.
	PatternEncode Pattern = iota
	// PatternScale is the gradient of the scaling example:
	// Y = x+y+3i, Cb = 128+y+2i, Cr = 64+x+5i.
	PatternScale
)

// FillPattern paints frame index i of the pattern into a 4:2:0 frame.
// Values wrap at 256 like the uint8 stores they stand for.
func FillPattern(f *VideoFrame, i int, p Pattern) error {
	if !f.Format.IsYUV420() {
		return fmt.Errorf("pattern needs a 4:2:0 frame, got %s: %w", f.Format, ErrUnsupportedFormat)
	}

	for y := 0; y < f.Height; y++ {
		row := f.Row(0, y)
		for x := range row {
			row[x] = byte(x + y + i*3)
		}
	}

	_, chromaRows := f.Format.PlaneSize(1, f.Width, f.Height)
	for y := 0; y < chromaRows; y++ {
		cb := f.Row(1, y)
		cr := f.Row(2, y)
		for x := range cb {
			cb[x] = byte(128 + y + i*2)
			switch p {
			case PatternScale:
				cr[x] = byte(64 + x + i*5)
			default:
				cr[x] = byte(64 + y + i*2)
			}
		}
	}
	f.PTS = int64(i)
	return nil
}

// Tone generates a continuous sine wave across successive frames.
type Tone struct {
	Frequency float64
	Amplitude float64
	phase     float64
}

// NewTone returns a sine generator, e.g. NewTone(440, 10000).
func NewTone(frequency, amplitude float64) *Tone {
	return &Tone{Frequency: frequency, Amplitude: amplitude}
}

// Fill writes the next NbSamples samples into f, the same value on every channel.
func (t *Tone) Fill(f *AudioFrame) error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("tone needs a sample rate, got %d", f.SampleRate)
	}
	incr := 2 * math.Pi * t.Frequency / float64(f.SampleRate)
	bps := f.Format.BytesPerSample()
	channels := f.Layout.Channels

	for j := 0; j < f.NbSamples; j++ {
		v := math.Sin(t.phase) * t.Amplitude
		for ch := 0; ch < channels; ch++ {
			var dst []byte
			if f.Format.IsPlanar() {
				dst = f.Data[ch][j*bps : (j+1)*bps]
			} else {
				off := (j*channels + ch) * bps
				dst = f.Data[0][off : off+bps]
			}
			if err := putSample(dst, f.Format.Packed(), v); err != nil {
				return err
			}
		}
		t.phase += incr
	}
	return nil
}

// putSample stores v, expressed on the s16 scale, in the packed sample format.
func putSample(dst []byte, format SampleFormat, v float64) error {
	switch format {
	case SampleFmtS16:
		binary.LittleEndian.PutUint16(dst, uint16(int16(clamp(v, math.MinInt16, math.MaxInt16))))
	case SampleFmtS32:
		binary.LittleEndian.PutUint32(dst, uint32(int32(clamp(v*65536, math.MinInt32, math.MaxInt32))))
	case SampleFmtU8:
		dst[0] = byte(clamp(v/256+128, 0, 255))
	case SampleFmtFlt:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v/32768)))
	case SampleFmtDbl:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(v/32768))
	default:
		return fmt.Errorf("sample format %q: %w", format, ErrUnsupportedFormat)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
