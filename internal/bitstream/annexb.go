package bitstream

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
)

// startCodeIndex returns the offset of the next 00 00 01 start code at or after
// from, including one leading zero byte of a four byte start code, or -1.
func startCodeIndex(data []byte, from int) int {
	for i := from; i+2 < len(data); i++ {
		if data[i+2] > 1 {
			i += 2
			continue
		}
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			if i > from && data[i-1] == 0 {
				return i - 1
			}
			return i
		}
	}
	return -1
}

// startCodeLen returns 3 or 4 for data beginning with a start code, 0 otherwise.
func startCodeLen(data []byte) int {
	switch {
	case len(data) >= 3 && data[0] == 0 && data[1] == 0 && data[2] == 1:
		return 3
	case len(data) >= 4 && data[0] == 0 && data[1] == 0 && data[2] == 0 && data[3] == 1:
		return 4
	}
	return 0
}

// unitClassifier inspects one unit payload (after the start code) and reports
// whether it carries picture data and whether it opens a new packet once the
// current packet already holds picture data.
type unitClassifier func(unit []byte) (picture, opensPacket bool)

// splitOnStartCodes groups start-code delimited units into packets. headerLen is
// the number of payload bytes classify needs.
func splitOnStartCodes(data []byte, atEOF bool, headerLen int, classify unitClassifier) (int, []byte, error) {
	start := startCodeIndex(data, 0)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// keep a possible partial start code
		if len(data) > 3 {
			return len(data) - 3, nil, nil
		}
		return 0, nil, nil
	}
	if start > 0 {
		return start, nil, nil
	}

	pos := 0
	seenPicture := false
	for {
		payload := pos + startCodeLen(data[pos:])
		if payload+headerLen > len(data) {
			if atEOF {
				return len(data), data, nil
			}
			return 0, nil, nil
		}

		picture, opens := classify(data[payload:])
		if seenPicture && opens {
			return pos, data[:pos], nil
		}
		if picture {
			seenPicture = true
		}

		next := startCodeIndex(data, payload)
		if next < 0 {
			if atEOF {
				return len(data), data, nil
			}
			return 0, nil, nil
		}
		pos = next
	}
}

func classifyH264(unit []byte) (picture, opensPacket bool) {
	switch typ := h264.NALUType(unit[0] & 0x1f); typ {
	case h264.NALUTypeNonIDR, h264.NALUTypeIDR:
		// first_mb_in_slice == 0 is coded as a single 1 bit
		return true, unit[1]&0x80 != 0
	case h264.NALUTypeSEI, h264.NALUTypeSPS, h264.NALUTypePPS, h264.NALUTypeAccessUnitDelimiter:
		return false, true
	default:
		return false, typ >= 14 && typ <= 18
	}
}

func classifyH265(unit []byte) (picture, opensPacket bool) {
	switch typ := h265.NALUType((unit[0] >> 1) & 0x3f); {
	case typ < 32:
		// first_slice_segment_in_pic_flag
		return true, unit[2]&0x80 != 0
	case typ == h265.NALUType_VPS_NUT, typ == h265.NALUType_SPS_NUT, typ == h265.NALUType_PPS_NUT,
		typ == h265.NALUType_AUD_NUT, typ == h265.NALUType_PREFIX_SEI_NUT:
		return false, true
	default:
		return false, (typ >= 41 && typ <= 44) || (typ >= 48 && typ <= 55)
	}
}

// SplitH264 splits an Annex B H.264 stream into access units.
func SplitH264(data []byte, atEOF bool) (int, []byte, error) {
	return splitOnStartCodes(data, atEOF, 2, classifyH264)
}

// SplitH265 splits an Annex B HEVC stream into access units.
func SplitH265(data []byte, atEOF bool) (int, []byte, error) {
	return splitOnStartCodes(data, atEOF, 3, classifyH265)
}

// NALUnits unmarshals an Annex B access unit into its NAL units.
func NALUnits(au []byte) ([][]byte, error) {
	var units h264.AnnexB
	if err := units.Unmarshal(au); err != nil {
		return nil, err
	}
	return units, nil
}

// IsH264Keyframe reports whether the Annex B access unit is a random access point.
func IsH264Keyframe(au []byte) bool {
	units, err := NALUnits(au)
	if err != nil {
		return false
	}
	return h264.IsRandomAccess(units)
}

// IsH265Keyframe reports whether the Annex B access unit is a random access point.
func IsH265Keyframe(au []byte) bool {
	units, err := NALUnits(au)
	if err != nil {
		return false
	}
	return h265.IsRandomAccess(units)
}

// MarshalAnnexB joins NAL units with start codes.
func MarshalAnnexB(units [][]byte) ([]byte, error) {
	return h264.AnnexB(units).Marshal()
}
