// Package codec provides the codec registry avkit drives: ffmpeg encoder,
// decoder and muxer names, elementary stream splitters, frame sizes and the
// default capabilities used when ffmpeg cannot be asked.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmylchreest/avkit/internal/bitstream"
	"github.com/jmylchreest/avkit/internal/media"
)

// ErrUnsupportedCodec is returned for codec names the registry does not know.
var ErrUnsupportedCodec = errors.New("unsupported codec")

// Video represents a video codec.
type Video string

// Video codec constants.
const (
	VideoH264  Video = "h264"  // H.264/AVC
	VideoH265  Video = "h265"  // H.265/HEVC
	VideoMPEG1 Video = "mpeg1" // MPEG-1 video
	VideoMPEG2 Video = "mpeg2" // MPEG-2 video
	VideoMJPEG Video = "mjpeg" // Motion JPEG, also used for single pictures
)

// Audio represents an audio codec.
type Audio string

// Audio codec constants.
const (
	AudioAAC  Audio = "aac"  // AAC
	AudioMP2  Audio = "mp2"  // MPEG-1 Layer II
	AudioMP3  Audio = "mp3"  // MPEG-1 Layer III
	AudioAC3  Audio = "ac3"  // Dolby Digital (AC-3)
	AudioOpus Audio = "opus" // Opus
)

// String returns the string representation of the video codec.
func (v Video) String() string {
	return string(v)
}

// String returns the string representation of the audio codec.
func (a Audio) String() string {
	return string(a)
}

// MPEG-TS stream type constants.
const (
	StreamTypeMPEG1Video uint8 = 0x01
	StreamTypeMPEG2Video uint8 = 0x02
	StreamTypeMPEG1Audio uint8 = 0x03
	StreamTypeMPEG2Audio uint8 = 0x04
	StreamTypeAAC        uint8 = 0x0F
	StreamTypeH264       uint8 = 0x1B
	StreamTypeH265       uint8 = 0x24
	StreamTypeAC3        uint8 = 0x81
)

// videoInfo contains metadata about a video codec.
type videoInfo struct {
	Name Video
	// All known aliases and encoder names that map to this codec
	Aliases []string
	// ffmpeg software encoder and decoder
	Encoder string
	Decoder string
	// ffmpeg muxer writing the bare elementary stream and the demuxer reading it
	RawMuxer   string
	RawDemuxer string
	// File extensions of the elementary stream, default first
	Extensions []string
	// Pixel format the encoder is fed
	PixelFormat media.PixelFormat
	// Whether the encoder holds frames back (AV_CODEC_CAP_DELAY)
	Delay    bool
	Split    bitstream.SplitFunc
	Keyframe func([]byte) bool
	// Whether this codec can be demuxed by mediacommon MPEG-TS demuxer
	Demuxable        bool
	MPEGTSStreamType uint8
}

// audioInfo contains metadata about an audio codec.
type audioInfo struct {
	Name       Audio
	Aliases    []string
	Encoder    string
	Decoder    string
	RawMuxer   string
	RawDemuxer string
	Extensions []string
	// Samples per channel in one encoded frame
	FrameSize int
	// Encoder defaults used when ffmpeg capabilities are unavailable
	SampleFormats []media.SampleFormat
	SampleRates   []int
	Layouts       []media.ChannelLayout
	// Sample format the decoder produces natively
	DecodedFormat    media.SampleFormat
	Delay            bool
	Split            bitstream.SplitFunc
	Demuxable        bool
	MPEGTSStreamType uint8
}

// videoRegistry contains all video codec definitions.
var videoRegistry = map[Video]*videoInfo{
	VideoH264: {
		Name:             VideoH264,
		Aliases:          []string{"h264", "avc", "avc1", "h.264", "libx264", "libopenh264"},
		Encoder:          "libx264",
		Decoder:          "h264",
		RawMuxer:         "h264",
		RawDemuxer:       "h264",
		Extensions:       []string{".h264", ".264"},
		PixelFormat:      media.PixFmtYUV420P,
		Delay:            true,
		Split:            bitstream.SplitH264,
		Keyframe:         bitstream.IsH264Keyframe,
		Demuxable:        true,
		MPEGTSStreamType: StreamTypeH264,
	},
	VideoH265: {
		Name:             VideoH265,
		Aliases:          []string{"h265", "hevc", "hev1", "hvc1", "h.265", "libx265"},
		Encoder:          "libx265",
		Decoder:          "hevc",
		RawMuxer:         "hevc",
		RawDemuxer:       "hevc",
		Extensions:       []string{".hevc", ".h265", ".265"},
		PixelFormat:      media.PixFmtYUV420P,
		Delay:            true,
		Split:            bitstream.SplitH265,
		Keyframe:         bitstream.IsH265Keyframe,
		Demuxable:        true,
		MPEGTSStreamType: StreamTypeH265,
	},
	VideoMPEG1: {
		Name:             VideoMPEG1,
		Aliases:          []string{"mpeg1", "mpeg1video", "mpg", "mpeg-1"},
		Encoder:          "mpeg1video",
		Decoder:          "mpeg1video",
		RawMuxer:         "mpeg1video",
		RawDemuxer:       "mpegvideo",
		Extensions:       []string{".mpg", ".m1v", ".mpeg"},
		PixelFormat:      media.PixFmtYUV420P,
		Delay:            true,
		Split:            bitstream.SplitMPEGVideo,
		Keyframe:         bitstream.IsMPEGVideoKeyframe,
		Demuxable:        true,
		MPEGTSStreamType: StreamTypeMPEG1Video,
	},
	VideoMPEG2: {
		Name:             VideoMPEG2,
		Aliases:          []string{"mpeg2", "mpeg2video", "mpeg-2"},
		Encoder:          "mpeg2video",
		Decoder:          "mpeg2video",
		RawMuxer:         "mpeg2video",
		RawDemuxer:       "mpegvideo",
		Extensions:       []string{".m2v"},
		PixelFormat:      media.PixFmtYUV420P,
		Delay:            true,
		Split:            bitstream.SplitMPEGVideo,
		Keyframe:         bitstream.IsMPEGVideoKeyframe,
		Demuxable:        true,
		MPEGTSStreamType: StreamTypeMPEG2Video,
	},
	VideoMJPEG: {
		Name:        VideoMJPEG,
		Aliases:     []string{"mjpeg", "jpeg", "jpg", "mjpg"},
		Encoder:     "mjpeg",
		Decoder:     "mjpeg",
		RawMuxer:    "mjpeg",
		RawDemuxer:  "mjpeg",
		Extensions:  []string{".jpg", ".jpeg", ".mjpeg", ".mjpg"},
		PixelFormat: media.PixFmtYUVJ420P,
		Split:       bitstream.SplitJPEG,
		Keyframe:    func([]byte) bool { return true },
	},
}

// aacSampleRates are the rates of the MPEG-4 sampling frequency table.
var aacSampleRates = []int{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}

// audioRegistry contains all audio codec definitions.
var audioRegistry = map[Audio]*audioInfo{
	AudioAAC: {
		Name:          AudioAAC,
		Aliases:       []string{"aac", "mp4a", "aac_lc", "libfdk_aac", "adts"},
		Encoder:       "aac",
		Decoder:       "aac",
		RawMuxer:      "adts",
		RawDemuxer:    "aac",
		Extensions:    []string{".aac", ".adts"},
		FrameSize:     1024,
		SampleFormats: []media.SampleFormat{media.SampleFmtFltP},
		SampleRates:   aacSampleRates,
		Layouts: []media.ChannelLayout{
			media.LayoutMono, media.LayoutStereo, media.Layout3Point0, media.Layout4Point0,
			media.Layout5Point0, media.Layout5Point1, media.Layout7Point1,
		},
		DecodedFormat:    media.SampleFmtFltP,
		Delay:            true,
		Split:            bitstream.SplitADTS,
		Demuxable:        true,
		MPEGTSStreamType: StreamTypeAAC,
	},
	AudioMP2: {
		Name:             AudioMP2,
		Aliases:          []string{"mp2", "mp2fixed", "mpeg1audio", "mpa"},
		Encoder:          "mp2",
		Decoder:          "mp2",
		RawMuxer:         "mp2",
		RawDemuxer:       "mp3",
		Extensions:       []string{".mp2", ".m2a"},
		FrameSize:        1152,
		SampleFormats:    []media.SampleFormat{media.SampleFmtS16},
		SampleRates:      []int{44100, 48000, 32000, 22050, 24000, 16000},
		Layouts:          []media.ChannelLayout{media.LayoutMono, media.LayoutStereo},
		DecodedFormat:    media.SampleFmtS16P,
		Split:            bitstream.SplitMPEGAudio,
		Demuxable:        true,
		MPEGTSStreamType: StreamTypeMPEG1Audio,
	},
	AudioMP3: {
		Name:             AudioMP3,
		Aliases:          []string{"mp3", "libmp3lame", "mp3float"},
		Encoder:          "libmp3lame",
		Decoder:          "mp3float",
		RawMuxer:         "mp3",
		RawDemuxer:       "mp3",
		Extensions:       []string{".mp3"},
		FrameSize:        1152,
		SampleFormats:    []media.SampleFormat{media.SampleFmtS32P, media.SampleFmtFltP, media.SampleFmtS16P},
		SampleRates:      []int{44100, 48000, 32000, 22050, 24000, 16000, 11025, 12000, 8000},
		Layouts:          []media.ChannelLayout{media.LayoutMono, media.LayoutStereo},
		DecodedFormat:    media.SampleFmtFltP,
		Delay:            true,
		Split:            bitstream.SplitMPEGAudio,
		Demuxable:        true,
		MPEGTSStreamType: StreamTypeMPEG1Audio,
	},
	AudioAC3: {
		Name:          AudioAC3,
		Aliases:       []string{"ac3", "a52", "ac-3", "ac3_fixed"},
		Encoder:       "ac3",
		Decoder:       "ac3",
		RawMuxer:      "ac3",
		RawDemuxer:    "ac3",
		Extensions:    []string{".ac3"},
		FrameSize:     1536,
		SampleFormats: []media.SampleFormat{media.SampleFmtFltP},
		SampleRates:   []int{48000, 44100, 32000},
		Layouts: []media.ChannelLayout{
			media.LayoutMono, media.LayoutStereo, media.Layout3Point0, media.Layout5Point0, media.Layout5Point1,
		},
		DecodedFormat:    media.SampleFmtFltP,
		Demuxable:        true,
		MPEGTSStreamType: StreamTypeAC3,
	},
	AudioOpus: {
		Name:          AudioOpus,
		Aliases:       []string{"opus", "libopus"},
		Encoder:       "libopus",
		Decoder:       "opus",
		RawMuxer:      "opus",
		RawDemuxer:    "ogg",
		Extensions:    []string{".opus"},
		FrameSize:     960,
		SampleFormats: []media.SampleFormat{media.SampleFmtS16, media.SampleFmtFlt},
		SampleRates:   []int{48000, 24000, 16000, 12000, 8000},
		Layouts:       []media.ChannelLayout{media.LayoutMono, media.LayoutStereo},
		DecodedFormat: media.SampleFmtFlt,
		Delay:         true,
		Demuxable:     true,
	},
}

// videoAliasIndex maps all aliases to their canonical codec.
var videoAliasIndex map[string]Video

// audioAliasIndex maps all aliases to their canonical codec.
var audioAliasIndex map[string]Audio

func init() {
	videoAliasIndex = make(map[string]Video)
	for codec, info := range videoRegistry {
		videoAliasIndex[string(codec)] = codec
		for _, alias := range info.Aliases {
			videoAliasIndex[strings.ToLower(alias)] = codec
		}
	}

	audioAliasIndex = make(map[string]Audio)
	for codec, info := range audioRegistry {
		audioAliasIndex[string(codec)] = codec
		for _, alias := range info.Aliases {
			audioAliasIndex[strings.ToLower(alias)] = codec
		}
	}
}

// ParseVideo parses a string (codec name, alias, or encoder) to a Video codec.
// Returns the canonical codec and whether the parse was successful.
func ParseVideo(s string) (Video, bool) {
	v, ok := videoAliasIndex[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

// ParseAudio parses a string (codec name, alias, or encoder) to an Audio codec.
// Returns the canonical codec and whether the parse was successful.
func ParseAudio(s string) (Audio, bool) {
	a, ok := audioAliasIndex[strings.ToLower(strings.TrimSpace(s))]
	return a, ok
}

// LookupVideo is ParseVideo with an ErrUnsupportedCodec error.
func LookupVideo(s string) (Video, error) {
	v, ok := ParseVideo(s)
	if !ok {
		return "", fmt.Errorf("video codec %q: %w", s, ErrUnsupportedCodec)
	}
	return v, nil
}

// LookupAudio is ParseAudio with an ErrUnsupportedCodec error.
func LookupAudio(s string) (Audio, error) {
	a, ok := ParseAudio(s)
	if !ok {
		return "", fmt.Errorf("audio codec %q: %w", s, ErrUnsupportedCodec)
	}
	return a, nil
}

// Normalize converts any codec string (encoder name, alias) to its canonical form.
// Returns the input unchanged if not recognized.
func Normalize(name string) string {
	if v, ok := ParseVideo(name); ok {
		return string(v)
	}
	if a, ok := ParseAudio(name); ok {
		return string(a)
	}
	return name
}

// Match returns true if two codec strings represent the same codec.
func Match(a, b string) bool {
	return strings.EqualFold(Normalize(a), Normalize(b))
}

// Encoder returns the ffmpeg software encoder for the codec.
func (v Video) Encoder() string {
	if info, ok := videoRegistry[v]; ok {
		return info.Encoder
	}
	return ""
}

// Decoder returns the ffmpeg decoder for the codec.
func (v Video) Decoder() string {
	if info, ok := videoRegistry[v]; ok {
		return info.Decoder
	}
	return ""
}

// RawMuxer returns the ffmpeg muxer that writes the bare elementary stream.
func (v Video) RawMuxer() string {
	if info, ok := videoRegistry[v]; ok {
		return info.RawMuxer
	}
	return ""
}

// RawDemuxer returns the ffmpeg demuxer that reads the bare elementary stream.
func (v Video) RawDemuxer() string {
	if info, ok := videoRegistry[v]; ok {
		return info.RawDemuxer
	}
	return ""
}

// IsKeyframe reports whether an encoded packet can be decoded on its own.
// Codecs without a detector report every packet as a keyframe.
func (v Video) IsKeyframe(packet []byte) bool {
	if info, ok := videoRegistry[v]; ok && info.Keyframe != nil {
		return info.Keyframe(packet)
	}
	return true
}

// Extension returns the default file extension of the elementary stream.
func (v Video) Extension() string {
	if info, ok := videoRegistry[v]; ok && len(info.Extensions) > 0 {
		return info.Extensions[0]
	}
	return ""
}

// PixelFormat returns the pixel format the encoder is fed.
func (v Video) PixelFormat() media.PixelFormat {
	if info, ok := videoRegistry[v]; ok {
		return info.PixelFormat
	}
	return media.PixFmtYUV420P
}

// HasDelay reports whether the encoder buffers frames and must be flushed.
func (v Video) HasDelay() bool {
	info, ok := videoRegistry[v]
	return ok && info.Delay
}

// Splitter returns the packet splitter for the elementary stream, nil if none.
func (v Video) Splitter() bitstream.SplitFunc {
	if info, ok := videoRegistry[v]; ok {
		return info.Split
	}
	return nil
}

// IsDemuxable returns true if the video codec can be demuxed by mediacommon.
func (v Video) IsDemuxable() bool {
	info, ok := videoRegistry[v]
	return ok && info.Demuxable
}

// MPEGTSStreamType returns the MPEG-TS stream type for the video codec.
// Returns 0 if not supported in MPEG-TS.
func (v Video) MPEGTSStreamType() uint8 {
	if info, ok := videoRegistry[v]; ok {
		return info.MPEGTSStreamType
	}
	return 0
}

// Encoder returns the ffmpeg encoder for the codec.
func (a Audio) Encoder() string {
	if info, ok := audioRegistry[a]; ok {
		return info.Encoder
	}
	return ""
}

// Decoder returns the ffmpeg decoder for the codec.
func (a Audio) Decoder() string {
	if info, ok := audioRegistry[a]; ok {
		return info.Decoder
	}
	return ""
}

// RawMuxer returns the ffmpeg muxer that writes the bare elementary stream.
func (a Audio) RawMuxer() string {
	if info, ok := audioRegistry[a]; ok {
		return info.RawMuxer
	}
	return ""
}

// RawDemuxer returns the ffmpeg demuxer that reads the bare elementary stream.
func (a Audio) RawDemuxer() string {
	if info, ok := audioRegistry[a]; ok {
		return info.RawDemuxer
	}
	return ""
}

// Extension returns the default file extension of the elementary stream.
func (a Audio) Extension() string {
	if info, ok := audioRegistry[a]; ok && len(info.Extensions) > 0 {
		return info.Extensions[0]
	}
	return ""
}

// FrameSize returns the number of samples per channel in one encoded frame.
func (a Audio) FrameSize() int {
	if info, ok := audioRegistry[a]; ok {
		return info.FrameSize
	}
	return 0
}

// SampleFormats returns the default supported sample formats of the encoder.
func (a Audio) SampleFormats() []media.SampleFormat {
	if info, ok := audioRegistry[a]; ok {
		return info.SampleFormats
	}
	return nil
}

// SampleRates returns the default supported sample rates of the encoder.
func (a Audio) SampleRates() []int {
	if info, ok := audioRegistry[a]; ok {
		return info.SampleRates
	}
	return nil
}

// ChannelLayouts returns the default supported channel layouts of the encoder.
func (a Audio) ChannelLayouts() []media.ChannelLayout {
	if info, ok := audioRegistry[a]; ok {
		return info.Layouts
	}
	return nil
}

// DecodedFormat returns the sample format the decoder produces.
func (a Audio) DecodedFormat() media.SampleFormat {
	if info, ok := audioRegistry[a]; ok {
		return info.DecodedFormat
	}
	return media.SampleFmtS16
}

// HasDelay reports whether the encoder buffers samples and must be flushed.
func (a Audio) HasDelay() bool {
	info, ok := audioRegistry[a]
	return ok && info.Delay
}

// Splitter returns the packet splitter for the elementary stream, nil if none.
func (a Audio) Splitter() bitstream.SplitFunc {
	if info, ok := audioRegistry[a]; ok {
		return info.Split
	}
	return nil
}

// IsDemuxable returns true if the audio codec can be demuxed by mediacommon.
func (a Audio) IsDemuxable() bool {
	info, ok := audioRegistry[a]
	return ok && info.Demuxable
}

// MPEGTSStreamType returns the MPEG-TS stream type for the audio codec.
// Returns 0 if not supported in MPEG-TS.
func (a Audio) MPEGTSStreamType() uint8 {
	if info, ok := audioRegistry[a]; ok {
		return info.MPEGTSStreamType
	}
	return 0
}

// VideoCodecs returns the registered video codecs.
func VideoCodecs() []Video {
	return []Video{VideoH264, VideoH265, VideoMPEG1, VideoMPEG2, VideoMJPEG}
}

// AudioCodecs returns the registered audio codecs.
func AudioCodecs() []Audio {
	return []Audio{AudioAAC, AudioMP2, AudioMP3, AudioAC3, AudioOpus}
}
