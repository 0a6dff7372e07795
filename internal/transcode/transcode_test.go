package transcode

import (
	"bytes"
	"context"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/avkit/internal/bitstream"
	"github.com/jmylchreest/avkit/internal/codec"
	"github.com/jmylchreest/avkit/internal/ffmpeg"
	"github.com/jmylchreest/avkit/internal/media"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not installed.
func skipIfNoFFmpeg(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	return path
}

// skipIfNoEncoder skips the test if ffmpeg lacks the encoder.
func skipIfNoEncoder(t *testing.T, path, name string) {
	t.Helper()
	info, err := ffmpeg.NewBinaryDetector().WithPaths(path, "").Detect(context.Background())
	require.NoError(t, err)
	if !info.HasEncoder(name) {
		t.Skipf("ffmpeg built without %s", name)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	return ctx
}

func syntheticFrames(t *testing.T, w, h, n int) []*media.VideoFrame {
	t.Helper()
	frames := make([]*media.VideoFrame, n)
	for i := range frames {
		f, err := media.NewVideoFrame(w, h, media.PixFmtYUV420P, 32)
		require.NoError(t, err)
		require.NoError(t, media.FillPattern(f, i, media.PatternEncode))
		frames[i] = f
	}
	return frames
}

func encodeAll(t *testing.T, enc *VideoEncoder, frames []*media.VideoFrame) []Packet {
	t.Helper()
	var out []Packet
	for _, f := range frames {
		packets, err := enc.Encode(f)
		require.NoError(t, err)
		out = append(out, packets...)
	}
	rest, err := enc.Flush()
	require.NoError(t, err)
	return append(out, rest...)
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.NotEqual(t, a, b)

	id, err := ulid.Parse(a)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ulid.Time(id.Time()), time.Minute)
}

func TestQueue(t *testing.T) {
	q := newQueue[int]()
	q.push()
	q.push(1, 2)
	assert.Nil(t, q.readErr())
	assert.Equal(t, []int{1, 2}, q.take())
	assert.Empty(t, q.take())

	q.push(3)
	q.finish(io.ErrUnexpectedEOF)
	rest, err := q.wait()
	assert.Equal(t, []int{3}, rest)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.ErrorIs(t, q.readErr(), io.ErrUnexpectedEOF)
}

func TestBuildVideoEncoderCommand(t *testing.T) {
	cfg := VideoEncoderConfig{
		Codec:       codec.VideoH264,
		Width:       480,
		Height:      272,
		Bitrate:     400000,
		GOPSize:     250,
		MaxBFrames:  3,
		QMin:        10,
		QMax:        51,
		TimeBaseNum: 1,
		TimeBaseDen: 25,
		Options:     []Option{{"preset", "slow"}, {"tune", "zerolatency"}},
	}
	cfg.applyDefaults()
	require.NoError(t, cfg.validate())

	cmd := buildVideoEncoderCommand("ffmpeg", cfg)
	assert.Equal(t,
		"ffmpeg -loglevel error -hide_banner -f rawvideo -pix_fmt yuv420p -s 480x272 -framerate 25 -i pipe:0 "+
			"-c:v libx264 -pix_fmt yuv420p -b:v 400000 -g 250 -bf 3 -qmin 10 -qmax 51 -r 25/1 "+
			"-preset slow -tune zerolatency -f h264 -flush_packets 1 pipe:1",
		cmd.String())
	assert.Equal(t, ffmpeg.PipeInput, cmd.Input)
	assert.Equal(t, ffmpeg.PipeOutput, cmd.Output)
}

func TestBuildVideoEncoderCommand_HEVCAndFile(t *testing.T) {
	cfg := VideoEncoderConfig{
		Codec:      codec.VideoH265,
		Width:      64,
		Height:     48,
		MaxBFrames: -1,
		Output:     "out.mkv",
	}
	cfg.applyDefaults()
	require.NoError(t, cfg.validate())

	args := buildVideoEncoderCommand("ffmpeg", cfg).Args
	assert.Contains(t, args, "-x265-params")
	assert.Contains(t, args, "-stats")
	assert.Contains(t, args, "-y")
	assert.NotContains(t, args, "-bf")
	assert.Equal(t, "out.mkv", args[len(args)-1])
}

func TestVideoEncoderConfig_Validate(t *testing.T) {
	cfg := VideoEncoderConfig{Codec: "vp8", Width: 16, Height: 16}
	cfg.applyDefaults()
	assert.ErrorIs(t, cfg.validate(), codec.ErrUnsupportedCodec)

	cfg = VideoEncoderConfig{Codec: codec.VideoMPEG1}
	cfg.applyDefaults()
	assert.Error(t, cfg.validate())
}

func TestBuildAudioCommands(t *testing.T) {
	enc := AudioEncoderConfig{Codec: codec.AudioAAC, Bitrate: 64000}
	enc.applyDefaults()
	require.NoError(t, enc.validate())
	assert.Equal(t,
		"ffmpeg -loglevel error -hide_banner -f s16le -ar 44100 -ac 2 -i pipe:0 -c:a aac -b:a 64000 -f adts -flush_packets 1 pipe:1",
		buildAudioEncoderCommand("ffmpeg", enc).String())

	dec := AudioDecoderConfig{Codec: codec.AudioMP2, OutputFormat: codec.AudioMP2.DecodedFormat().Packed()}
	assert.Equal(t,
		"ffmpeg -loglevel error -hide_banner -f mp3 -i pipe:0 -f s16le pipe:1",
		buildAudioDecoderCommand("ffmpeg", dec).String())

	ac3 := AudioEncoderConfig{Codec: codec.AudioAC3}
	ac3.applyDefaults()
	assert.Error(t, ac3.validate(), "ac3 has no packet parser")
}

func TestBuildVideoDecoderCommand(t *testing.T) {
	cmd := buildVideoDecoderCommand("ffmpeg", VideoDecoderConfig{
		Codec: codec.VideoMPEG1, Width: 352, Height: 288, PixelFormat: media.PixFmtYUV420P,
	})
	assert.Equal(t,
		"ffmpeg -loglevel error -hide_banner -f mpegvideo -i pipe:0 -s 352x288 -f rawvideo -pix_fmt yuv420p pipe:1",
		cmd.String())
}

func TestQScale(t *testing.T) {
	assert.Equal(t, 2, qscale(100))
	assert.Equal(t, 31, qscale(1))
	assert.Less(t, qscale(90), qscale(50))
}

func TestVideoEncoder_MPEG1RoundTrip(t *testing.T) {
	path := skipIfNoFFmpeg(t)
	ctx := testContext(t)

	enc, err := NewVideoEncoder(ctx, path, VideoEncoderConfig{
		Codec:      codec.VideoMPEG1,
		Width:      64,
		Height:     48,
		Bitrate:    400000,
		GOPSize:    10,
		MaxBFrames: 1,
	})
	require.NoError(t, err)
	defer enc.Close()
	assert.True(t, enc.HasDelay())
	assert.Equal(t, 64*48*3/2, enc.FrameSize())

	packets := encodeAll(t, enc, syntheticFrames(t, 64, 48, 12))
	require.NotEmpty(t, packets)
	assert.True(t, packets[0].Keyframe)
	for i, p := range packets {
		assert.Equal(t, i, p.Index)
	}
	assert.Equal(t, uint64(12), enc.Stats().ItemsIn)

	var stream []byte
	for _, p := range packets {
		stream = append(stream, p.Data...)
	}
	hdr, err := bitstream.ParseSequenceHeader(stream)
	require.NoError(t, err)
	assert.Equal(t, 64, hdr.Width)
	assert.Equal(t, 48, hdr.Height)

	dec, err := NewVideoDecoder(ctx, path, VideoDecoderConfig{
		Codec: codec.VideoMPEG1, Width: hdr.Width, Height: hdr.Height,
	})
	require.NoError(t, err)
	defer dec.Close()

	var frames []*media.VideoFrame
	for _, p := range packets {
		got, err := dec.Decode(p.Data)
		require.NoError(t, err)
		frames = append(frames, got...)
	}
	rest, err := dec.Flush()
	require.NoError(t, err)
	frames = append(frames, rest...)

	require.Len(t, frames, 12)
	assert.Equal(t, 64, frames[0].Width)
	assert.Equal(t, int64(11), frames[11].PTS)
}

func TestVideoEncoder_H264(t *testing.T) {
	path := skipIfNoFFmpeg(t)
	skipIfNoEncoder(t, path, "libx264")

	enc, err := NewVideoEncoder(testContext(t), path, VideoEncoderConfig{
		Codec:      codec.VideoH264,
		Width:      64,
		Height:     48,
		Bitrate:    400000,
		GOPSize:    10,
		MaxBFrames: 1,
		Options:    []Option{{"preset", "ultrafast"}},
	})
	require.NoError(t, err)
	defer enc.Close()

	packets := encodeAll(t, enc, syntheticFrames(t, 64, 48, 10))
	require.NotEmpty(t, packets)
	assert.LessOrEqual(t, len(packets), 10)
	assert.True(t, packets[0].Keyframe)
	assert.True(t, bytes.HasPrefix(packets[0].Data, []byte{0, 0, 0, 1}) ||
		bytes.HasPrefix(packets[0].Data, []byte{0, 0, 1}))
}

func TestVideoEncoder_ContainerOutput(t *testing.T) {
	path := skipIfNoFFmpeg(t)
	out := filepath.Join(t.TempDir(), "out.ts")

	enc, err := NewVideoEncoder(testContext(t), path, VideoEncoderConfig{
		Codec:  codec.VideoMPEG1,
		Width:  64,
		Height: 48,
		Output: out,
	})
	require.NoError(t, err)
	defer enc.Close()

	packets := encodeAll(t, enc, syntheticFrames(t, 64, 48, 5))
	assert.Empty(t, packets)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestVideoEncoder_RejectsMismatchedFrame(t *testing.T) {
	path := skipIfNoFFmpeg(t)

	enc, err := NewVideoEncoder(testContext(t), path, VideoEncoderConfig{
		Codec: codec.VideoMPEG1, Width: 64, Height: 48,
	})
	require.NoError(t, err)
	defer enc.Close()

	_, err = enc.Encode(syntheticFrames(t, 32, 32, 1)[0])
	assert.Error(t, err)
}

func TestAudioEncoder_MP2RoundTrip(t *testing.T) {
	path := skipIfNoFFmpeg(t)
	ctx := testContext(t)

	enc, err := NewAudioEncoder(ctx, path, AudioEncoderConfig{
		Codec:   codec.AudioMP2,
		Bitrate: 64000,
	})
	require.NoError(t, err)
	defer enc.Close()
	assert.Equal(t, 1152, enc.FrameSize())

	tone := media.NewTone(440, 10000)
	var packets []Packet
	for i := 0; i < 20; i++ {
		frame, err := media.NewAudioFrame(media.SampleFmtS16, enc.Layout(), enc.SampleRate(), enc.FrameSize())
		require.NoError(t, err)
		require.NoError(t, tone.Fill(frame))
		got, err := enc.Encode(frame)
		require.NoError(t, err)
		packets = append(packets, got...)
	}
	rest, err := enc.Flush()
	require.NoError(t, err)
	packets = append(packets, rest...)
	require.NotEmpty(t, packets)

	hdr, err := bitstream.ParseMPEGAudioHeader(packets[0].Data)
	require.NoError(t, err)
	assert.Equal(t, 44100, hdr.SampleRate)

	dec, err := NewAudioDecoder(ctx, path, AudioDecoderConfig{Codec: codec.AudioMP2})
	require.NoError(t, err)
	defer dec.Close()
	assert.Equal(t, media.SampleFmtS16, dec.OutputFormat())

	var pcm []byte
	for _, p := range packets {
		got, err := dec.Decode(p.Data)
		require.NoError(t, err)
		pcm = append(pcm, got...)
	}
	tail, err := dec.Flush()
	require.NoError(t, err)
	pcm = append(pcm, tail...)

	// whole stereo s16 samples, at least the input minus encoder priming
	assert.Zero(t, len(pcm)%4)
	assert.GreaterOrEqual(t, len(pcm), 18*1152*4)
}

func TestAudioEncoder_AAC(t *testing.T) {
	path := skipIfNoFFmpeg(t)

	enc, err := NewAudioEncoder(testContext(t), path, AudioEncoderConfig{
		Codec:   codec.AudioAAC,
		Bitrate: 64000,
	})
	require.NoError(t, err)
	defer enc.Close()

	tone := media.NewTone(440, 10000)
	for i := 0; i < 10; i++ {
		frame, err := media.NewAudioFrame(media.SampleFmtS16, enc.Layout(), enc.SampleRate(), enc.FrameSize())
		require.NoError(t, err)
		require.NoError(t, tone.Fill(frame))
		_, err = enc.Encode(frame)
		require.NoError(t, err)
	}
	_, err = enc.Flush()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), enc.Stats().ItemsIn)
	assert.Positive(t, enc.Stats().ItemsOut)
}

func TestScaler_FFmpegMatchesSize(t *testing.T) {
	path := skipIfNoFFmpeg(t)

	sc, err := NewScaler(testContext(t), path, ScalerConfig{
		SrcWidth: 32, SrcHeight: 24, DstWidth: 16, DstHeight: 12,
	})
	require.NoError(t, err)
	defer sc.Close()

	var out []*media.VideoFrame
	for _, f := range syntheticFrames(t, 32, 24, 3) {
		got, err := sc.Scale(f)
		require.NoError(t, err)
		out = append(out, got...)
	}
	rest, err := sc.Flush()
	require.NoError(t, err)
	out = append(out, rest...)

	require.Len(t, out, 3)
	assert.Equal(t, media.PixFmtRGB24, out[0].Format)
	assert.Equal(t, 16*12*3, out[0].Size())
}

func TestNativeScaler(t *testing.T) {
	sc, err := NewNativeScaler(16, 12)
	require.NoError(t, err)

	src := syntheticFrames(t, 32, 24, 1)[0]
	src.PTS = 7
	out, err := sc.Scale(src)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(7), out[0].PTS)
	assert.Equal(t, 16, out[0].Width)

	rest, err := sc.Flush()
	assert.NoError(t, err)
	assert.Empty(t, rest)
	assert.NoError(t, sc.Close())
}

func TestPictureEncoder(t *testing.T) {
	path := skipIfNoFFmpeg(t)

	enc, err := NewPictureEncoder(path, PictureEncoderConfig{Width: 48, Height: 32, Quality: 90})
	require.NoError(t, err)

	pkt, err := enc.Encode(testContext(t), syntheticFrames(t, 48, 32, 1)[0])
	require.NoError(t, err)
	assert.True(t, pkt.Keyframe)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(pkt.Data))
	require.NoError(t, err)
	assert.Equal(t, 48, cfg.Width)
	assert.Equal(t, 32, cfg.Height)

	_, err = NewPictureEncoder(path, PictureEncoderConfig{Width: 48, Height: 32, Quality: 101})
	assert.Error(t, err)
}

func TestFileVideoDecoder(t *testing.T) {
	path := skipIfNoFFmpeg(t)
	ctx := testContext(t)

	enc, err := NewVideoEncoder(ctx, path, VideoEncoderConfig{
		Codec: codec.VideoMPEG1, Width: 64, Height: 48, GOPSize: 5,
	})
	require.NoError(t, err)
	defer enc.Close()

	var stream bytes.Buffer
	for _, p := range encodeAll(t, enc, syntheticFrames(t, 64, 48, 8)) {
		stream.Write(p.Data)
	}
	input := filepath.Join(t.TempDir(), "in.m1v")
	require.NoError(t, os.WriteFile(input, stream.Bytes(), 0o600))

	dec, err := NewFileVideoDecoder(ctx, path, FileVideoDecoderConfig{
		Input: input, Width: 64, Height: 48, MaxFrames: 5,
	})
	require.NoError(t, err)
	defer dec.Close()

	count := 0
	for {
		frame, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, media.PixFmtRGB24, frame.Format)
		assert.Equal(t, int64(count), frame.PTS)
		count++
	}
	assert.Equal(t, 5, count)
}

func TestFileVideoDecoder_MissingInput(t *testing.T) {
	path := skipIfNoFFmpeg(t)

	dec, err := NewFileVideoDecoder(testContext(t), path, FileVideoDecoderConfig{
		Input: filepath.Join(t.TempDir(), "missing.mp4"), Width: 16, Height: 16,
	})
	require.NoError(t, err)
	defer dec.Close()

	_, err = dec.Next()
	var exitErr *ffmpeg.ExitError
	assert.ErrorAs(t, err, &exitErr)
}
