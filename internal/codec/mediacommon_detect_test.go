package codec

import (
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
)

func TestMediacommonCodecDetection(t *testing.T) {
	tests := []struct {
		name     string
		codec    string
		expected bool
	}{
		{"H264", "h264", true},
		{"H265", "h265", true},
		{"MPEG1", "mpeg1", true},
		{"AAC", "aac", true},
		{"AC3", "ac3", true},
		{"MP3", "mp3", true},
		{"MP2", "mp2", true},
		{"Opus", "opus", true},

		// JPEG is not carried in MPEG-TS
		{"MJPEG", "mjpeg", false},
		{"Unknown", "vorbis", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsMediacommonCodecSupported(tt.codec)
			if got != tt.expected {
				t.Errorf("IsMediacommonCodecSupported(%q) = %v, want %v", tt.codec, got, tt.expected)
			}
		})
	}
}

func TestFromTrack(t *testing.T) {
	tests := []struct {
		name  string
		codec mpegts.Codec
		video Video
		audio Audio
	}{
		{"h264", &mpegts.CodecH264{}, VideoH264, ""},
		{"h265", &mpegts.CodecH265{}, VideoH265, ""},
		{"mpeg1video", &mpegts.CodecMPEG1Video{}, VideoMPEG1, ""},
		{"aac", &mpegts.CodecMPEG4Audio{}, "", AudioAAC},
		{"mpeg1audio", &mpegts.CodecMPEG1Audio{}, "", AudioMP3},
		{"ac3", &mpegts.CodecAC3{}, "", AudioAC3},
		{"unsupported", &mpegts.CodecUnsupported{}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			video, audio := FromTrack(tt.codec)
			if video != tt.video || audio != tt.audio {
				t.Errorf("FromTrack() = (%q, %q), want (%q, %q)", video, audio, tt.video, tt.audio)
			}
		})
	}
}
