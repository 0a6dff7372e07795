package media

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixelFormat_FrameSize(t *testing.T) {
	tests := []struct {
		format PixelFormat
		w, h   int
		want   int
	}{
		{PixFmtYUV420P, 480, 272, 480 * 272 * 3 / 2},
		{PixFmtYUVJ420P, 352, 288, 352 * 288 * 3 / 2},
		{PixFmtYUV420P, 5, 3, 15 + 6 + 6},
		{PixFmtRGB24, 320, 240, 320 * 240 * 3},
		{PixFmtGray, 7, 7, 49},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.format.FrameSize(tt.w, tt.h))
		})
	}
}

func TestParsePixelFormat(t *testing.T) {
	p, err := ParsePixelFormat(" YUV420P ")
	require.NoError(t, err)
	assert.Equal(t, PixFmtYUV420P, p)

	_, err = ParsePixelFormat("nv12")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNewVideoFrame_Alignment(t *testing.T) {
	f, err := NewVideoFrame(5, 3, PixFmtYUV420P, 16)
	require.NoError(t, err)

	assert.Equal(t, []int{16, 16, 16}, f.Strides)
	assert.Len(t, f.Planes[0], 48)
	assert.Len(t, f.Planes[1], 32)
	assert.Len(t, f.Row(0, 2), 5)
	assert.Len(t, f.Row(1, 1), 3)
	assert.Equal(t, 27, f.Size())

	_, err = NewVideoFrame(0, 3, PixFmtYUV420P, 1)
	assert.Error(t, err)
	_, err = NewVideoFrame(4, 4, PixelFormat("bayer"), 1)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestVideoFrame_ReadFullRoundTrip(t *testing.T) {
	f, err := NewVideoFrame(6, 4, PixFmtYUV420P, 32)
	require.NoError(t, err)

	raw := make([]byte, f.Size())
	for i := range raw {
		raw[i] = byte(i)
	}

	require.NoError(t, f.ReadFull(bytes.NewReader(raw)))
	assert.Equal(t, raw, f.Bytes())
	assert.Equal(t, byte(6), f.Row(0, 1)[0])

	var out bytes.Buffer
	n, err := f.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(raw)), n)
	assert.Equal(t, raw, out.Bytes())

	clone, err := NewVideoFrame(6, 4, PixFmtYUV420P, 1)
	require.NoError(t, err)
	require.NoError(t, clone.SetBytes(raw))
	assert.Equal(t, f.Bytes(), clone.Bytes())
}

func TestVideoFrame_ReadFullEndOfInput(t *testing.T) {
	f, err := NewVideoFrame(4, 4, PixFmtYUV420P, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, f.ReadFull(bytes.NewReader(nil)), io.EOF)
	assert.ErrorIs(t, f.ReadFull(bytes.NewReader(make([]byte, 10))), ErrShortFrame)
	assert.ErrorIs(t, f.SetBytes(make([]byte, 3)), ErrShortFrame)
}

func TestAudioFrame_Interleave(t *testing.T) {
	f, err := NewAudioFrame(SampleFmtS16P, LayoutStereo, 44100, 3)
	require.NoError(t, err)
	copy(f.Data[0], []byte{1, 0, 2, 0, 3, 0})
	copy(f.Data[1], []byte{9, 0, 8, 0, 7, 0})

	assert.Equal(t, []byte{1, 0, 9, 0, 2, 0, 8, 0, 3, 0, 7, 0}, f.Interleave())
	assert.Equal(t, 12, f.Size())
}

func TestAudioFrame_ReadFull(t *testing.T) {
	f, err := NewAudioFrame(SampleFmtS16, LayoutStereo, 44100, 4)
	require.NoError(t, err)

	r := bytes.NewReader(make([]byte, 16+10))
	require.NoError(t, f.ReadFull(r))
	assert.Equal(t, 4, f.NbSamples)

	require.NoError(t, f.ReadFull(r))
	assert.Equal(t, 2, f.NbSamples, "partial frame keeps whole samples only")

	assert.ErrorIs(t, f.ReadFull(r), io.EOF)

	planar, err := NewAudioFrame(SampleFmtFltP, LayoutStereo, 44100, 4)
	require.NoError(t, err)
	assert.ErrorIs(t, planar.ReadFull(r), ErrUnsupportedFormat)
}

func TestSampleFormat(t *testing.T) {
	assert.Equal(t, 2, SampleFmtS16.BytesPerSample())
	assert.Equal(t, 4, SampleFmtFltP.BytesPerSample())
	assert.True(t, SampleFmtFltP.IsPlanar())
	assert.False(t, SampleFmtS16.IsPlanar())
	assert.Equal(t, SampleFmtFlt, SampleFmtFltP.Packed())
	assert.Equal(t, "f32le", SampleFmtFltP.RawFormat())
	assert.Equal(t, "s16le", SampleFmtS16P.RawFormat())
	assert.Equal(t, 4096, SamplesBufferSize(SampleFmtS16, 2, 1024))

	_, err := ParseSampleFormat("s24")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestChannelLayout(t *testing.T) {
	l, err := ParseChannelLayout("5.1(side)")
	require.NoError(t, err)
	assert.Equal(t, 6, l.Channels)

	assert.Equal(t, LayoutStereo, LayoutForChannels(2))
	assert.Equal(t, LayoutMono, LayoutForChannels(1))
	assert.Equal(t, "16c", LayoutForChannels(16).Name)

	_, err = ParseChannelLayout("22.2")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
