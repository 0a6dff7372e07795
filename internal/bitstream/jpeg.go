package bitstream

import "fmt"

// JPEG markers used while walking a picture.
const (
	jpegSOI = 0xd8
	jpegEOI = 0xd9
	jpegSOS = 0xda
	jpegTEM = 0x01
)

// SplitJPEG splits concatenated JPEG pictures (an MJPEG elementary stream)
// into SOI..EOI packets. Marker segments are walked by length so EOI bytes
// inside headers or thumbnails do not end the picture early.
func SplitJPEG(data []byte, atEOF bool) (int, []byte, error) {
	start := -1
	for i := 0; i+1 < len(data); i++ {
		if data[i] == 0xff && data[i+1] == jpegSOI {
			start = i
			break
		}
	}
	switch {
	case start < 0:
		if atEOF || len(data) < 2 {
			return len(data), nil, nil
		}
		return len(data) - 1, nil, nil
	case start > 0:
		return start, nil, nil
	}

	more := func() (int, []byte, error) {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}

	i := 2
	for {
		if i+2 > len(data) {
			return more()
		}
		if data[i] != 0xff {
			return 0, nil, fmt.Errorf("jpeg marker expected at offset %d: %w", i, ErrInvalidBitstream)
		}
		marker := data[i+1]
		switch {
		case marker == 0xff:
			// fill byte
			i++
			continue
		case marker == jpegEOI:
			return i + 2, data[:i+2], nil
		case marker == jpegTEM || (marker >= 0xd0 && marker <= 0xd7):
			i += 2
			continue
		}

		if i+4 > len(data) {
			return more()
		}
		segLen := int(data[i+2])<<8 | int(data[i+3])
		if segLen < 2 {
			return 0, nil, fmt.Errorf("jpeg segment length %d: %w", segLen, ErrInvalidBitstream)
		}
		i += 2 + segLen

		if marker == jpegSOS {
			// entropy coded data runs to the next marker that is neither a
			// stuffed 0x00 nor a restart marker
			for {
				if i+1 >= len(data) {
					return more()
				}
				if data[i] == 0xff {
					next := data[i+1]
					if next != 0x00 && (next < 0xd0 || next > 0xd7) {
						break
					}
				}
				i++
			}
		}
	}
}
