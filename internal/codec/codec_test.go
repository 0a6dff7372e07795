package codec

import (
	"errors"
	"testing"

	"github.com/jmylchreest/avkit/internal/media"
)

func TestParseVideo(t *testing.T) {
	tests := []struct {
		input    string
		expected Video
		ok       bool
	}{
		// Canonical names
		{"h264", VideoH264, true},
		{"h265", VideoH265, true},
		{"mpeg1", VideoMPEG1, true},
		{"mjpeg", VideoMJPEG, true},
		// Aliases
		{"hevc", VideoH265, true},
		{"avc", VideoH264, true},
		{"mpg", VideoMPEG1, true},
		{"mpeg2video", VideoMPEG2, true},
		{"jpeg", VideoMJPEG, true},
		// Encoder names
		{"libx264", VideoH264, true},
		{"libx265", VideoH265, true},
		{"mpeg1video", VideoMPEG1, true},
		// Case insensitive
		{"H264", VideoH264, true},
		{" HEVC ", VideoH265, true},
		// Invalid
		{"", "", false},
		{"vp9", "", false},
		{"aac", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseVideo(tt.input)
			if ok != tt.ok {
				t.Errorf("ParseVideo(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if got != tt.expected {
				t.Errorf("ParseVideo(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseAudio(t *testing.T) {
	tests := []struct {
		input    string
		expected Audio
		ok       bool
	}{
		{"aac", AudioAAC, true},
		{"adts", AudioAAC, true},
		{"mp2", AudioMP2, true},
		{"MP2", AudioMP2, true},
		{"libmp3lame", AudioMP3, true},
		{"a52", AudioAC3, true},
		{"libopus", AudioOpus, true},
		{"", "", false},
		{"h264", "", false},
		{"flac", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseAudio(tt.input)
			if ok != tt.ok {
				t.Errorf("ParseAudio(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if got != tt.expected {
				t.Errorf("ParseAudio(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	if _, err := LookupVideo("theora"); !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("LookupVideo(theora) error = %v, want ErrUnsupportedCodec", err)
	}
	if _, err := LookupAudio("vorbis"); !errors.Is(err, ErrUnsupportedCodec) {
		t.Errorf("LookupAudio(vorbis) error = %v, want ErrUnsupportedCodec", err)
	}
	if v, err := LookupVideo("avc1"); err != nil || v != VideoH264 {
		t.Errorf("LookupVideo(avc1) = %v, %v", v, err)
	}
}

func TestNormalizeAndMatch(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"libx264", "h264"},
		{"hevc", "h265"},
		{"mp3float", "mp3"},
		{"unknown", "unknown"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.expected {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}

	if !Match("libx265", "HEVC") {
		t.Error("Match(libx265, HEVC) = false, want true")
	}
	if Match("h264", "h265") {
		t.Error("Match(h264, h265) = true, want false")
	}
}

func TestVideoProperties(t *testing.T) {
	tests := []struct {
		codec     Video
		encoder   string
		decoder   string
		muxer     string
		demuxer   string
		extension string
		pixFmt    media.PixelFormat
		delay     bool
	}{
		{VideoH264, "libx264", "h264", "h264", "h264", ".h264", media.PixFmtYUV420P, true},
		{VideoH265, "libx265", "hevc", "hevc", "hevc", ".hevc", media.PixFmtYUV420P, true},
		{VideoMPEG1, "mpeg1video", "mpeg1video", "mpeg1video", "mpegvideo", ".mpg", media.PixFmtYUV420P, true},
		{VideoMJPEG, "mjpeg", "mjpeg", "mjpeg", "mjpeg", ".jpg", media.PixFmtYUVJ420P, false},
	}

	for _, tt := range tests {
		t.Run(tt.codec.String(), func(t *testing.T) {
			if got := tt.codec.Encoder(); got != tt.encoder {
				t.Errorf("Encoder() = %q, want %q", got, tt.encoder)
			}
			if got := tt.codec.Decoder(); got != tt.decoder {
				t.Errorf("Decoder() = %q, want %q", got, tt.decoder)
			}
			if got := tt.codec.RawMuxer(); got != tt.muxer {
				t.Errorf("RawMuxer() = %q, want %q", got, tt.muxer)
			}
			if got := tt.codec.RawDemuxer(); got != tt.demuxer {
				t.Errorf("RawDemuxer() = %q, want %q", got, tt.demuxer)
			}
			if got := tt.codec.Extension(); got != tt.extension {
				t.Errorf("Extension() = %q, want %q", got, tt.extension)
			}
			if got := tt.codec.PixelFormat(); got != tt.pixFmt {
				t.Errorf("PixelFormat() = %q, want %q", got, tt.pixFmt)
			}
			if got := tt.codec.HasDelay(); got != tt.delay {
				t.Errorf("HasDelay() = %v, want %v", got, tt.delay)
			}
			if tt.codec.Splitter() == nil {
				t.Error("Splitter() = nil")
			}
		})
	}

	if Video("vp8").Encoder() != "" || Video("vp8").Splitter() != nil {
		t.Error("unknown codec should have no encoder or splitter")
	}
	if !VideoMJPEG.IsKeyframe([]byte{0xff, 0xd8}) {
		t.Error("MJPEG packets should all be keyframes")
	}
	if VideoH264.IsKeyframe([]byte{0, 0, 1, 0x41, 0x9a}) {
		t.Error("H.264 non-IDR slice reported as keyframe")
	}
}

func TestAudioProperties(t *testing.T) {
	tests := []struct {
		codec     Audio
		encoder   string
		muxer     string
		demuxer   string
		frameSize int
		decoded   media.SampleFormat
		delay     bool
	}{
		{AudioAAC, "aac", "adts", "aac", 1024, media.SampleFmtFltP, true},
		{AudioMP2, "mp2", "mp2", "mp3", 1152, media.SampleFmtS16P, false},
		{AudioMP3, "libmp3lame", "mp3", "mp3", 1152, media.SampleFmtFltP, true},
		{AudioAC3, "ac3", "ac3", "ac3", 1536, media.SampleFmtFltP, false},
	}

	for _, tt := range tests {
		t.Run(tt.codec.String(), func(t *testing.T) {
			if got := tt.codec.Encoder(); got != tt.encoder {
				t.Errorf("Encoder() = %q, want %q", got, tt.encoder)
			}
			if got := tt.codec.RawMuxer(); got != tt.muxer {
				t.Errorf("RawMuxer() = %q, want %q", got, tt.muxer)
			}
			if got := tt.codec.RawDemuxer(); got != tt.demuxer {
				t.Errorf("RawDemuxer() = %q, want %q", got, tt.demuxer)
			}
			if got := tt.codec.FrameSize(); got != tt.frameSize {
				t.Errorf("FrameSize() = %d, want %d", got, tt.frameSize)
			}
			if got := tt.codec.DecodedFormat(); got != tt.decoded {
				t.Errorf("DecodedFormat() = %q, want %q", got, tt.decoded)
			}
			if got := tt.codec.HasDelay(); got != tt.delay {
				t.Errorf("HasDelay() = %v, want %v", got, tt.delay)
			}
			if len(tt.codec.SampleRates()) == 0 || len(tt.codec.ChannelLayouts()) == 0 {
				t.Error("expected default sample rates and layouts")
			}
		})
	}
}

func TestMPEGTSStreamType(t *testing.T) {
	if got := VideoH264.MPEGTSStreamType(); got != StreamTypeH264 {
		t.Errorf("VideoH264.MPEGTSStreamType() = %#x, want %#x", got, StreamTypeH264)
	}
	if got := AudioAAC.MPEGTSStreamType(); got != StreamTypeAAC {
		t.Errorf("AudioAAC.MPEGTSStreamType() = %#x, want %#x", got, StreamTypeAAC)
	}
	if got := VideoMJPEG.MPEGTSStreamType(); got != 0 {
		t.Errorf("VideoMJPEG.MPEGTSStreamType() = %#x, want 0", got)
	}
}

func TestGuessFormat(t *testing.T) {
	tests := []struct {
		filename  string
		name      string
		video     Video
		audio     Audio
		container bool
	}{
		{"ds.h264", "h264", VideoH264, "", false},
		{"out.264", "h264", VideoH264, "", false},
		{"clip.HEVC", "hevc", VideoH265, "", false},
		{"test.mpg", "mpeg1video", VideoMPEG1, "", false},
		{"/tmp/dir.with.dots/a.m2v", "mpeg2video", VideoMPEG2, "", false},
		{"cuc_view_encode.jpg", "mjpeg", VideoMJPEG, "", false},
		{"tdjm.aac", "adts", "", AudioAAC, false},
		{"test.mp2", "mp2", "", AudioMP2, false},
		{"song.mp3", "mp3", "", AudioMP3, false},
		{"movie.mp4", "mp4", "", "", true},
		{"movie.mkv", "matroska", "", "", true},
		{"cuc_ieschool.ts", "mpegts", "", "", true},
		{"cuc_ieschool.flv", "flv", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := GuessFormat(tt.filename)
			if err != nil {
				t.Fatalf("GuessFormat(%q) error = %v", tt.filename, err)
			}
			if got.Name != tt.name || got.Video != tt.video || got.Audio != tt.audio || got.Container != tt.container {
				t.Errorf("GuessFormat(%q) = %+v", tt.filename, got)
			}
			if got.IsElementary() == tt.container {
				t.Errorf("IsElementary() = %v for container %v", got.IsElementary(), tt.container)
			}
		})
	}

	for _, name := range []string{"noext", "file.xyz"} {
		if _, err := GuessFormat(name); !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("GuessFormat(%q) error = %v, want ErrUnknownFormat", name, err)
		}
	}
}

func TestSelectSampleRate(t *testing.T) {
	if got := SelectSampleRate(nil); got != 44100 {
		t.Errorf("SelectSampleRate(nil) = %d, want 44100", got)
	}
	if got := SelectSampleRate([]int{22050, 48000, 44100}); got != 48000 {
		t.Errorf("SelectSampleRate() = %d, want 48000", got)
	}
	if got := SelectSampleRate(AudioAAC.SampleRates()); got != 96000 {
		t.Errorf("SelectSampleRate(aac) = %d, want 96000", got)
	}
}

func TestSelectChannelLayout(t *testing.T) {
	if got := SelectChannelLayout(nil); got != media.LayoutStereo {
		t.Errorf("SelectChannelLayout(nil) = %v, want stereo", got)
	}
	got := SelectChannelLayout([]media.ChannelLayout{media.LayoutMono, media.Layout5Point1, media.LayoutStereo})
	if got != media.Layout5Point1 {
		t.Errorf("SelectChannelLayout() = %v, want 5.1", got)
	}
	// 2.1 and 3.0 both have three channels; the first listed wins
	got = SelectChannelLayout([]media.ChannelLayout{media.Layout2Point1, media.Layout3Point0})
	if got != media.Layout2Point1 {
		t.Errorf("SelectChannelLayout() = %v, want 2.1", got)
	}
}

func TestSupportsSampleFormat(t *testing.T) {
	if SupportsSampleFormat(AudioAAC.SampleFormats(), media.SampleFmtS16) {
		t.Error("aac encoder should not list s16")
	}
	if !SupportsSampleFormat(AudioMP2.SampleFormats(), media.SampleFmtS16) {
		t.Error("mp2 encoder should list s16")
	}
}
