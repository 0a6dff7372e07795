package bitstream

import (
	"bytes"
	"fmt"
)

// MPEG-1/2 video start code values.
const (
	mpegPictureStart  = 0x00
	mpegSequenceStart = 0xb3
	mpegSequenceEnd   = 0xb7
	mpegGOPStart      = 0xb8
)

// SequenceEndCode terminates an MPEG-1/2 video elementary stream.
var SequenceEndCode = []byte{0x00, 0x00, 0x01, mpegSequenceEnd}

// frameRates maps frame_rate_code to numerator and denominator.
var frameRates = [...][2]int{
	1: {24000, 1001},
	2: {24, 1},
	3: {25, 1},
	4: {30000, 1001},
	5: {30, 1},
	6: {50, 1},
	7: {60000, 1001},
	8: {60, 1},
}

// SequenceHeader holds the fields of an MPEG video sequence header avkit needs.
type SequenceHeader struct {
	Width        int
	Height       int
	AspectRatio  int
	FrameRateNum int
	FrameRateDen int
	BitRate      int // bits per second, 0 when variable
}

// FrameRate returns the frame rate as a float.
func (h SequenceHeader) FrameRate() float64 {
	if h.FrameRateDen == 0 {
		return 0
	}
	return float64(h.FrameRateNum) / float64(h.FrameRateDen)
}

// ParseSequenceHeader finds the first sequence header in data and decodes it.
func ParseSequenceHeader(data []byte) (SequenceHeader, error) {
	idx := bytes.Index(data, []byte{0x00, 0x00, 0x01, mpegSequenceStart})
	if idx < 0 || len(data) < idx+12 {
		return SequenceHeader{}, fmt.Errorf("no sequence header: %w", ErrInvalidBitstream)
	}
	b := data[idx+4:]

	h := SequenceHeader{
		Width:       int(b[0])<<4 | int(b[1])>>4,
		Height:      int(b[1]&0x0f)<<8 | int(b[2]),
		AspectRatio: int(b[3] >> 4),
	}
	if code := int(b[3] & 0x0f); code > 0 && code < len(frameRates) {
		h.FrameRateNum, h.FrameRateDen = frameRates[code][0], frameRates[code][1]
	}
	// 18 bits in units of 400 bit/s; all ones means variable
	if rate := int(b[4])<<10 | int(b[5])<<2 | int(b[6])>>6; rate != 0x3ffff {
		h.BitRate = rate * 400
	}
	if h.Width == 0 || h.Height == 0 {
		return h, fmt.Errorf("sequence header with size %dx%d: %w", h.Width, h.Height, ErrInvalidBitstream)
	}
	return h, nil
}

// HasSequenceEnd reports whether data ends with the sequence end code.
func HasSequenceEnd(data []byte) bool {
	return bytes.HasSuffix(data, SequenceEndCode)
}

func classifyMPEGVideo(unit []byte) (picture, opensPacket bool) {
	switch unit[0] {
	case mpegPictureStart:
		return true, true
	case mpegSequenceStart, mpegGOPStart:
		return false, true
	}
	return false, false
}

// SplitMPEGVideo splits an MPEG-1/2 video elementary stream into pictures.
// Sequence and GOP headers travel with the picture that follows them and the
// sequence end code with the picture before it.
func SplitMPEGVideo(data []byte, atEOF bool) (int, []byte, error) {
	return splitOnStartCodes(data, atEOF, 1, classifyMPEGVideo)
}

// IsMPEGVideoKeyframe reports whether the packet carries an intra coded picture.
func IsMPEGVideoKeyframe(packet []byte) bool {
	idx := bytes.Index(packet, []byte{0x00, 0x00, 0x01, mpegPictureStart})
	if idx < 0 || len(packet) < idx+6 {
		return false
	}
	// 10 bits temporal_reference then 3 bits picture_coding_type
	return (packet[idx+5]>>3)&0x07 == 1
}
