package codec

import (
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
)

// mediacommonSupportedCodecs tracks which codec types the mediacommon MPEG-TS
// reader can hand to the Go demuxer.
var mediacommonSupportedCodecs = struct {
	H264       bool
	H265       bool
	MPEG1Video bool
	AAC        bool
	AC3        bool
	MPEG1Audio bool
	Opus       bool
}{}

func init() {
	mediacommonSupportedCodecs.H264 = !isUnsupportedCodec(&mpegts.CodecH264{})
	mediacommonSupportedCodecs.H265 = !isUnsupportedCodec(&mpegts.CodecH265{})
	mediacommonSupportedCodecs.MPEG1Video = !isUnsupportedCodec(&mpegts.CodecMPEG1Video{})
	mediacommonSupportedCodecs.AAC = !isUnsupportedCodec(&mpegts.CodecMPEG4Audio{})
	mediacommonSupportedCodecs.AC3 = !isUnsupportedCodec(&mpegts.CodecAC3{})
	mediacommonSupportedCodecs.MPEG1Audio = !isUnsupportedCodec(&mpegts.CodecMPEG1Audio{})
	mediacommonSupportedCodecs.Opus = !isUnsupportedCodec(&mpegts.CodecOpus{})

	updateRegistryWithDetectedSupport()
}

// isUnsupportedCodec checks if a codec is the CodecUnsupported sentinel type
func isUnsupportedCodec(c mpegts.Codec) bool {
	_, isUnsupported := c.(*mpegts.CodecUnsupported)
	return isUnsupported
}

// updateRegistryWithDetectedSupport updates the Demuxable flags in registries
// based on what mediacommon actually supports.
func updateRegistryWithDetectedSupport() {
	videoRegistry[VideoH264].Demuxable = mediacommonSupportedCodecs.H264
	videoRegistry[VideoH265].Demuxable = mediacommonSupportedCodecs.H265
	// the TS reader exposes MPEG-1 and MPEG-2 video as one codec type
	videoRegistry[VideoMPEG1].Demuxable = mediacommonSupportedCodecs.MPEG1Video
	videoRegistry[VideoMPEG2].Demuxable = mediacommonSupportedCodecs.MPEG1Video

	audioRegistry[AudioAAC].Demuxable = mediacommonSupportedCodecs.AAC
	audioRegistry[AudioAC3].Demuxable = mediacommonSupportedCodecs.AC3
	audioRegistry[AudioMP2].Demuxable = mediacommonSupportedCodecs.MPEG1Audio
	audioRegistry[AudioMP3].Demuxable = mediacommonSupportedCodecs.MPEG1Audio
	audioRegistry[AudioOpus].Demuxable = mediacommonSupportedCodecs.Opus
}

// IsMediacommonCodecSupported returns whether mediacommon supports demuxing
// the specified codec.
func IsMediacommonCodecSupported(codecName string) bool {
	if video, ok := ParseVideo(codecName); ok {
		return video.IsDemuxable()
	}
	if audio, ok := ParseAudio(codecName); ok {
		return audio.IsDemuxable()
	}
	return false
}

// FromTrack maps a mediacommon MPEG-TS codec to the registry. Exactly one of
// the results is set for known codecs; both are empty otherwise.
func FromTrack(c mpegts.Codec) (Video, Audio) {
	switch c.(type) {
	case *mpegts.CodecH264:
		return VideoH264, ""
	case *mpegts.CodecH265:
		return VideoH265, ""
	case *mpegts.CodecMPEG1Video:
		return VideoMPEG1, ""
	case *mpegts.CodecMPEG4Audio:
		return "", AudioAAC
	case *mpegts.CodecMPEG1Audio:
		return "", AudioMP3
	case *mpegts.CodecAC3:
		return "", AudioAC3
	case *mpegts.CodecOpus:
		return "", AudioOpus
	}
	return "", ""
}
