package bitstream

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg1audio"
)

// mpegAudioHeaderLen is the header window handed to mpeg1audio, which wants
// one byte past the 4 byte frame header.
const mpegAudioHeaderLen = 5

// ParseMPEGAudioHeader decodes the MPEG-1/2 audio frame header at the start of b.
func ParseMPEGAudioHeader(b []byte) (mpeg1audio.FrameHeader, error) {
	var h mpeg1audio.FrameHeader
	if len(b) < mpegAudioHeaderLen {
		return h, fmt.Errorf("mpeg audio header needs %d bytes, got %d: %w", mpegAudioHeaderLen, len(b), ErrInvalidBitstream)
	}
	if err := h.Unmarshal(b); err != nil {
		return h, fmt.Errorf("mpeg audio header: %w: %w", ErrInvalidBitstream, err)
	}
	return h, nil
}

// SplitMPEGAudio splits an MP1/MP2/MP3 stream into frames, header included.
func SplitMPEGAudio(data []byte, atEOF bool) (int, []byte, error) {
	return splitSyncFrames(data, atEOF, 0xe0, mpegAudioHeaderLen, func(b []byte) (int, error) {
		h, err := ParseMPEGAudioHeader(b)
		if err != nil {
			return 0, err
		}
		return h.FrameLen(), nil
	})
}
