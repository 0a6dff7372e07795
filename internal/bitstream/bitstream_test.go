package bitstream

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

// feedChunks pushes data through a parser in fixed size chunks.
func feedChunks(t *testing.T, split SplitFunc, data []byte, chunk int) [][]byte {
	t.Helper()
	p := NewParser(split)
	var out [][]byte
	for len(data) > 0 {
		n := min(chunk, len(data))
		packets, err := p.Feed(data[:n])
		require.NoError(t, err)
		out = append(out, packets...)
		data = data[n:]
	}
	rest, err := p.Flush()
	require.NoError(t, err)
	assert.Zero(t, p.Buffered())
	return append(out, rest...)
}

var (
	h264AU1 = join(
		[]byte{0, 0, 0, 1, 0x67, 0x42, 0x00, 0x1e},
		[]byte{0, 0, 0, 1, 0x68, 0xce, 0x3c, 0x80},
		[]byte{0, 0, 1, 0x65, 0x88, 0x84, 0x10},
	)
	h264AU2 = join(
		[]byte{0, 0, 0, 1, 0x41, 0x9a, 0x02},
		[]byte{0, 0, 1, 0x41, 0x00, 0x11}, // second slice of the same picture
	)
	h264AU3 = join(
		[]byte{0, 0, 0, 1, 0x09, 0xf0},
		[]byte{0, 0, 1, 0x41, 0x9a, 0x03},
	)
)

func TestSplitH264(t *testing.T) {
	stream := join(h264AU1, h264AU2, h264AU3)
	want := [][]byte{h264AU1, h264AU2, h264AU3}

	packets, err := SplitAll(stream, SplitH264)
	require.NoError(t, err)
	assert.Equal(t, want, packets)

	for _, chunk := range []int{1, 3, 7, 4096} {
		assert.Equal(t, want, feedChunks(t, SplitH264, stream, chunk), "chunk %d", chunk)
	}
}

func TestSplitH264_SkipsLeadingGarbage(t *testing.T) {
	packets, err := SplitAll(join([]byte{0xde, 0xad}, h264AU2), SplitH264)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{h264AU2}, packets)
}

func TestH264Keyframe(t *testing.T) {
	assert.True(t, IsH264Keyframe(h264AU1))
	assert.False(t, IsH264Keyframe(h264AU2))

	units, err := NALUnits(h264AU1)
	require.NoError(t, err)
	require.Len(t, units, 3)
	assert.Equal(t, []byte{0x67, 0x42, 0x00, 0x1e}, units[0])

	marshaled, err := MarshalAnnexB(units)
	require.NoError(t, err)
	again, err := NALUnits(marshaled)
	require.NoError(t, err)
	assert.Equal(t, units, again)
}

func TestSplitH265(t *testing.T) {
	au1 := join(
		[]byte{0, 0, 0, 1, 0x40, 0x01, 0x0c, 0x01},
		[]byte{0, 0, 0, 1, 0x42, 0x01, 0x01, 0x01},
		[]byte{0, 0, 0, 1, 0x44, 0x01, 0xc0, 0xf7},
		[]byte{0, 0, 0, 1, 0x26, 0x01, 0xaf, 0x09},
	)
	au2 := join(
		[]byte{0, 0, 0, 1, 0x02, 0x01, 0xd0, 0x09},
		[]byte{0, 0, 1, 0x02, 0x01, 0x50, 0x01},
	)
	au3 := join(
		[]byte{0, 0, 0, 1, 0x46, 0x01, 0x50},
		[]byte{0, 0, 1, 0x02, 0x01, 0xd0, 0x0a},
	)

	want := [][]byte{au1, au2, au3}
	assert.Equal(t, want, feedChunks(t, SplitH265, join(au1, au2, au3), 5))

	assert.True(t, IsH265Keyframe(au1))
	assert.False(t, IsH265Keyframe(au2))
}

var (
	mpegSeqHeader = []byte{0, 0, 1, 0xb3, 0x16, 0x01, 0x20, 0x13, 0x00, 0xfa, 0x20, 0x00}
	mpegGOP       = []byte{0, 0, 1, 0xb8, 0x00, 0x08, 0x00, 0x40}
	mpegPicture1  = []byte{0, 0, 1, 0x00, 0x00, 0x0f, 0xff, 0xf8}
	mpegSlice1    = []byte{0, 0, 1, 0x01, 0x12, 0x34}
	mpegPicture2  = []byte{0, 0, 1, 0x00, 0x00, 0x50, 0xff, 0xf8}
	mpegSlice2    = []byte{0, 0, 1, 0x01, 0x56, 0x78}
)

func TestSplitMPEGVideo(t *testing.T) {
	first := join(mpegSeqHeader, mpegGOP, mpegPicture1, mpegSlice1)
	second := join(mpegPicture2, mpegSlice2, SequenceEndCode)

	want := [][]byte{first, second}
	assert.Equal(t, want, feedChunks(t, SplitMPEGVideo, join(first, second), 4))
	assert.True(t, HasSequenceEnd(second))
	assert.False(t, HasSequenceEnd(first))

	assert.True(t, IsMPEGVideoKeyframe(first))
	assert.False(t, IsMPEGVideoKeyframe(second))
	assert.False(t, IsMPEGVideoKeyframe(mpegSeqHeader))
}

func TestParseSequenceHeader(t *testing.T) {
	h, err := ParseSequenceHeader(join([]byte{0xaa}, mpegSeqHeader, mpegGOP))
	require.NoError(t, err)

	assert.Equal(t, 352, h.Width)
	assert.Equal(t, 288, h.Height)
	assert.Equal(t, 1, h.AspectRatio)
	assert.Equal(t, 25, h.FrameRateNum)
	assert.Equal(t, 1, h.FrameRateDen)
	assert.InDelta(t, 25.0, h.FrameRate(), 0.001)
	assert.Equal(t, 400000, h.BitRate)

	_, err = ParseSequenceHeader(mpegGOP)
	assert.ErrorIs(t, err, ErrInvalidBitstream)
}

func TestADTSHeader(t *testing.T) {
	cfg := mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectTypeAACLC,
		SampleRate:   44100,
		ChannelCount: 2,
	}
	frame, err := EncodeADTS(cfg, make([]byte, 10))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xf1, 0x50, 0x80, 0x02, 0x3f, 0xfc}, frame[:7])
	assert.Len(t, frame, 17)

	h, err := ParseADTSHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, 2, h.ObjectType)
	assert.Equal(t, 44100, h.SampleRate)
	assert.Equal(t, 2, h.ChannelCount)
	assert.Equal(t, 17, h.FrameLength)
	assert.Equal(t, 0x7ff, h.BufferFullness)
	assert.Equal(t, 1, h.RawDataBlocks)
	assert.Equal(t, 7, h.HeaderLen())
	assert.Equal(t, cfg, h.Config())

	_, err = EncodeADTS(mpeg4audio.AudioSpecificConfig{Type: 2, SampleRate: 44000, ChannelCount: 2}, nil)
	assert.ErrorIs(t, err, ErrInvalidBitstream)

	_, err = ParseADTSHeader([]byte{0xff, 0xf1, 0x7c, 0x80, 0x02, 0x3f, 0xfc})
	assert.ErrorIs(t, err, ErrInvalidBitstream, "sampling frequency index 15")
}

func TestSplitADTS(t *testing.T) {
	cfg := mpeg4audio.AudioSpecificConfig{Type: 2, SampleRate: 48000, ChannelCount: 1}
	f1, err := EncodeADTS(cfg, bytes.Repeat([]byte{0x11}, 20))
	require.NoError(t, err)
	f2, err := EncodeADTS(cfg, bytes.Repeat([]byte{0x22}, 33))
	require.NoError(t, err)

	stream := join([]byte{0x00, 0x12, 0xff, 0xff}, f1, f2, []byte{0xff, 0xf1, 0x4c})
	want := [][]byte{f1, f2}

	packets, err := SplitAll(stream, SplitADTS)
	require.NoError(t, err)
	assert.Equal(t, want, packets)
	assert.Equal(t, want, feedChunks(t, SplitADTS, stream, 6))
}

func TestSplitMPEGAudio(t *testing.T) {
	// MPEG-1 Layer III, 128 kbit/s, 44100 Hz, no padding
	header := []byte{0xff, 0xfb, 0x90, 0x04}
	frame := func(fill byte) []byte {
		return join(header, bytes.Repeat([]byte{fill}, 417-len(header)))
	}
	f1, f2 := frame(0x01), frame(0x02)

	h, err := ParseMPEGAudioHeader(f1)
	require.NoError(t, err)
	assert.Equal(t, 417, h.FrameLen())
	assert.Equal(t, 1152, h.SampleCount())
	assert.Equal(t, 44100, h.SampleRate)

	want := [][]byte{f1, f2}
	packets, err := SplitAll(join(f1, f2), SplitMPEGAudio)
	require.NoError(t, err)
	assert.Equal(t, want, packets)

	assert.Equal(t, want, feedChunks(t, SplitMPEGAudio, join([]byte{0x49, 0x44}, f1, f2), 100))
	assert.Equal(t, want, feedChunks(t, SplitMPEGAudio, join(f1, f2), 3))

	// a bare 4 byte header is not enough to decode
	_, err = ParseMPEGAudioHeader(header)
	assert.ErrorIs(t, err, ErrInvalidBitstream)
	_, err = ParseMPEGAudioHeader([]byte{0xff, 0xfb})
	assert.ErrorIs(t, err, ErrInvalidBitstream)
}

func testJPEG(t *testing.T, c color.Gray) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 8))
	for i := range img.Pix {
		img.Pix[i] = c.Y + byte(i)
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}))
	return buf.Bytes()
}

func TestSplitJPEG(t *testing.T) {
	p1 := testJPEG(t, color.Gray{Y: 10})
	p2 := testJPEG(t, color.Gray{Y: 200})

	// a comment segment holding EOI bytes must not end the picture
	withComment := join(p1[:2], []byte{0xff, 0xfe, 0x00, 0x06, 0xff, 0xd9, 0xff, 0xd9}, p1[2:])

	stream := join([]byte{0x00, 0x00}, withComment, p2)
	want := [][]byte{withComment, p2}
	assert.Equal(t, want, feedChunks(t, SplitJPEG, stream, 64))

	for _, pkt := range want {
		_, err := jpeg.Decode(bytes.NewReader(pkt))
		require.NoError(t, err)
	}
}

func TestSplitJPEG_Corrupt(t *testing.T) {
	_, err := SplitAll([]byte{0xff, 0xd8, 0x12, 0x34, 0x56}, SplitJPEG)
	assert.ErrorIs(t, err, ErrInvalidBitstream)
}

func TestParser_HoldsPartialPacket(t *testing.T) {
	p := NewParser(SplitH264)

	packets, err := p.Feed(h264AU1)
	require.NoError(t, err)
	assert.Empty(t, packets, "last access unit is open until the next one starts")
	assert.Equal(t, len(h264AU1), p.Buffered())

	packets, err = p.Feed(h264AU2)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{h264AU1}, packets)

	packets, err = p.Flush()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{h264AU2}, packets)
	assert.Zero(t, p.Buffered())
}
