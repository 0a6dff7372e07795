package media

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillPattern(t *testing.T) {
	f, err := NewVideoFrame(352, 288, PixFmtYUV420P, 32)
	require.NoError(t, err)

	require.NoError(t, FillPattern(f, 2, PatternEncode))
	assert.Equal(t, byte(20+10+6), f.Row(0, 10)[20])
	assert.Equal(t, byte(128+5+4), f.Row(1, 5)[7])
	assert.Equal(t, byte(64+5+4), f.Row(2, 5)[7])
	assert.Equal(t, byte((300+200+6)%256), f.Row(0, 200)[300], "values wrap")
	assert.Equal(t, int64(2), f.PTS)

	require.NoError(t, FillPattern(f, 2, PatternScale))
	assert.Equal(t, byte(64+7+10), f.Row(2, 5)[7])
	assert.Equal(t, byte(128+5+4), f.Row(1, 5)[7])
}

func TestFillPattern_RejectsPacked(t *testing.T) {
	f, err := NewVideoFrame(4, 4, PixFmtRGB24, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, FillPattern(f, 0, PatternEncode), ErrUnsupportedFormat)
}

func s16At(f *AudioFrame, sample, ch int) int16 {
	off := (sample*f.Layout.Channels + ch) * 2
	return int16(binary.LittleEndian.Uint16(f.Data[0][off:]))
}

func TestTone_S16(t *testing.T) {
	f, err := NewAudioFrame(SampleFmtS16, LayoutStereo, 44100, 4)
	require.NoError(t, err)

	require.NoError(t, NewTone(440, 10000).Fill(f))

	want := []int16{0, 626, 1250, 1869}
	for i, v := range want {
		assert.Equal(t, v, s16At(f, i, 0), "sample %d", i)
		assert.Equal(t, v, s16At(f, i, 1), "channels carry the same sample")
	}
}

func TestTone_PhaseContinuity(t *testing.T) {
	whole, err := NewAudioFrame(SampleFmtS16, LayoutMono, 44100, 4)
	require.NoError(t, err)
	require.NoError(t, NewTone(440, 10000).Fill(whole))

	tone := NewTone(440, 10000)
	first, err := NewAudioFrame(SampleFmtS16, LayoutMono, 44100, 2)
	require.NoError(t, err)
	second, err := NewAudioFrame(SampleFmtS16, LayoutMono, 44100, 2)
	require.NoError(t, err)
	require.NoError(t, tone.Fill(first))
	require.NoError(t, tone.Fill(second))

	assert.Equal(t, whole.Data[0], append(append([]byte{}, first.Data[0]...), second.Data[0]...))
}

func TestTone_Planar(t *testing.T) {
	f, err := NewAudioFrame(SampleFmtFltP, LayoutStereo, 48000, 8)
	require.NoError(t, err)
	require.NoError(t, NewTone(440, 10000).Fill(f))

	assert.Equal(t, f.Data[0], f.Data[1])
	assert.Len(t, f.Interleave(), 8*2*4)
}

func TestTone_RequiresSampleRate(t *testing.T) {
	f, err := NewAudioFrame(SampleFmtS16, LayoutMono, 0, 4)
	require.NoError(t, err)
	assert.Error(t, NewTone(440, 10000).Fill(f))
}
