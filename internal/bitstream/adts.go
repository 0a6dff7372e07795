package bitstream

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
)

const (
	adtsHeaderLen   = 7
	adtsCRCLen      = 2
	adtsMaxFrameLen = 1<<13 - 1
	adtsVBRFullness = 0x7ff
)

var adtsSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// ADTSHeader is the fixed and variable header of one ADTS frame.
type ADTSHeader struct {
	MPEG2            bool
	ProtectionAbsent bool
	ObjectType       int // audio object type, profile + 1 (2 is AAC-LC)
	SampleRate       int
	ChannelCount     int
	FrameLength      int // header and payload
	BufferFullness   int
	RawDataBlocks    int // number_of_raw_data_blocks_in_frame + 1
}

// ParseADTSHeader decodes the header at the start of b.
func ParseADTSHeader(b []byte) (ADTSHeader, error) {
	if len(b) < adtsHeaderLen {
		return ADTSHeader{}, fmt.Errorf("adts header needs %d bytes, got %d: %w", adtsHeaderLen, len(b), ErrInvalidBitstream)
	}
	if b[0] != 0xff || b[1]&0xf0 != 0xf0 {
		return ADTSHeader{}, fmt.Errorf("adts sync word missing: %w", ErrInvalidBitstream)
	}
	if b[1]&0x06 != 0 {
		return ADTSHeader{}, fmt.Errorf("adts layer must be 0: %w", ErrInvalidBitstream)
	}

	h := ADTSHeader{
		MPEG2:            b[1]&0x08 != 0,
		ProtectionAbsent: b[1]&0x01 != 0,
		ObjectType:       int(b[2]>>6) + 1,
		ChannelCount:     int(b[2]&0x01)<<2 | int(b[3]>>6),
		FrameLength:      int(b[3]&0x03)<<11 | int(b[4])<<3 | int(b[5]>>5),
		BufferFullness:   int(b[5]&0x1f)<<6 | int(b[6]>>2),
		RawDataBlocks:    int(b[6]&0x03) + 1,
	}

	sfi := int(b[2]>>2) & 0x0f
	if sfi >= len(adtsSampleRates) {
		return ADTSHeader{}, fmt.Errorf("adts sampling frequency index %d: %w", sfi, ErrInvalidBitstream)
	}
	h.SampleRate = adtsSampleRates[sfi]

	if h.FrameLength < h.HeaderLen() {
		return ADTSHeader{}, fmt.Errorf("adts frame length %d: %w", h.FrameLength, ErrInvalidBitstream)
	}
	return h, nil
}

// HeaderLen returns 7, or 9 when a CRC follows the header.
func (h ADTSHeader) HeaderLen() int {
	if h.ProtectionAbsent {
		return adtsHeaderLen
	}
	return adtsHeaderLen + adtsCRCLen
}

// Marshal encodes the header without CRC. ProtectionAbsent is implied.
func (h ADTSHeader) Marshal() ([]byte, error) {
	sfi := -1
	for i, rate := range adtsSampleRates {
		if rate == h.SampleRate {
			sfi = i
			break
		}
	}
	switch {
	case sfi < 0:
		return nil, fmt.Errorf("adts sample rate %d: %w", h.SampleRate, ErrInvalidBitstream)
	case h.ObjectType < 1 || h.ObjectType > 4:
		return nil, fmt.Errorf("adts object type %d: %w", h.ObjectType, ErrInvalidBitstream)
	case h.ChannelCount < 0 || h.ChannelCount > 7:
		return nil, fmt.Errorf("adts channel count %d: %w", h.ChannelCount, ErrInvalidBitstream)
	case h.FrameLength < adtsHeaderLen || h.FrameLength > adtsMaxFrameLen:
		return nil, fmt.Errorf("adts frame length %d: %w", h.FrameLength, ErrInvalidBitstream)
	}

	fullness := h.BufferFullness
	if fullness == 0 {
		fullness = adtsVBRFullness
	}
	blocks := max(h.RawDataBlocks, 1) - 1

	b := make([]byte, adtsHeaderLen)
	b[0] = 0xff
	b[1] = 0xf1
	if h.MPEG2 {
		b[1] |= 0x08
	}
	b[2] = byte(h.ObjectType-1)<<6 | byte(sfi)<<2 | byte(h.ChannelCount>>2)&0x01
	b[3] = byte(h.ChannelCount&0x03)<<6 | byte(h.FrameLength>>11)&0x03
	b[4] = byte(h.FrameLength >> 3)
	b[5] = byte(h.FrameLength&0x07)<<5 | byte(fullness>>6)&0x1f
	b[6] = byte(fullness&0x3f)<<2 | byte(blocks)&0x03
	return b, nil
}

// Config returns the MPEG-4 audio configuration the header describes.
func (h ADTSHeader) Config() mpeg4audio.AudioSpecificConfig {
	return mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectType(h.ObjectType),
		SampleRate:   h.SampleRate,
		ChannelCount: h.ChannelCount,
	}
}

// EncodeADTS prefixes a raw AAC access unit with an ADTS header built from cfg.
func EncodeADTS(cfg mpeg4audio.AudioSpecificConfig, au []byte) ([]byte, error) {
	h := ADTSHeader{
		ProtectionAbsent: true,
		ObjectType:       int(cfg.Type),
		SampleRate:       cfg.SampleRate,
		ChannelCount:     cfg.ChannelCount,
		FrameLength:      adtsHeaderLen + len(au),
		RawDataBlocks:    1,
	}
	hdr, err := h.Marshal()
	if err != nil {
		return nil, err
	}
	return append(hdr, au...), nil
}

// SplitADTS splits an ADTS stream into frames, header included. Bytes that do
// not start a valid header are skipped.
func SplitADTS(data []byte, atEOF bool) (int, []byte, error) {
	return splitSyncFrames(data, atEOF, 0xf0, adtsHeaderLen, func(b []byte) (int, error) {
		h, err := ParseADTSHeader(b)
		return h.FrameLength, err
	})
}
