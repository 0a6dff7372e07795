package bitstream

// splitSyncFrames splits streams of self-delimiting frames that begin with a
// 0xff sync byte, as ADTS and MPEG audio do. syncMask selects the sync bits of
// the second byte and frameLen decodes the frame length from a header of
// headerLen bytes.
func splitSyncFrames(data []byte, atEOF bool, syncMask byte, headerLen int, frameLen func([]byte) (int, error)) (int, []byte, error) {
	i := syncIndex(data, syncMask)
	switch {
	case i < 0:
		if atEOF {
			return len(data), nil, nil
		}
		// a trailing 0xff may be the first half of a sync word
		if n := len(data); data[n-1] == 0xff {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	case i > 0:
		return i, nil, nil
	}

	if len(data) < headerLen {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	n, err := frameLen(data[:headerLen])
	if err != nil || n < headerLen {
		// false sync, resume the search on the next byte
		return 1, nil, nil
	}
	if n > len(data) {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return n, data[:n], nil
}

func syncIndex(data []byte, mask byte) int {
	for i := 0; i+1 < len(data); i++ {
		if data[i] == 0xff && data[i+1]&mask == mask {
			return i
		}
	}
	return -1
}
